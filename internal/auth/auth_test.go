package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vanta-access/internal/auth"
	apperrors "vanta-access/pkg/app_errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_RoundTrip(t *testing.T) {
	authn := auth.NewAuthenticator("secret", "vanta-test")
	want := auth.Actor{ID: "u-1", Email: "door@vanta.club", Role: auth.RoleDoor}

	signed, err := authn.Issue(want, time.Minute)
	require.NoError(t, err)

	got, err := authn.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAuthenticator_Rejects(t *testing.T) {
	authn := auth.NewAuthenticator("secret", "vanta-test")

	t.Run("WrongSecret", func(t *testing.T) {
		other := auth.NewAuthenticator("other", "vanta-test")
		signed, err := other.Issue(auth.Actor{ID: "u-1"}, time.Minute)
		require.NoError(t, err)
		_, err = authn.Parse(signed)
		assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		other := auth.NewAuthenticator("secret", "someone-else")
		signed, err := other.Issue(auth.Actor{ID: "u-1"}, time.Minute)
		require.NoError(t, err)
		_, err = authn.Parse(signed)
		assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	})

	t.Run("Expired", func(t *testing.T) {
		signed, err := authn.Issue(auth.Actor{ID: "u-1"}, -time.Minute)
		require.NoError(t, err)
		_, err = authn.Parse(signed)
		assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := authn.Parse("not-a-token")
		assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	})
}

func TestRequireActor(t *testing.T) {
	_, err := auth.RequireActor(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)

	ctx := auth.WithSystemActor(context.Background(), "sweeper")
	actor, err := auth.RequireActor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "system:sweeper", actor.Identity())
	assert.Equal(t, auth.RoleSystem, actor.Role)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	authn := auth.NewAuthenticator("secret", "vanta-test")

	router := gin.New()
	router.Use(auth.Middleware(authn))
	router.GET("/whoami", func(c *gin.Context) {
		actor, _ := auth.ActorFromContext(c.Request.Context())
		c.JSON(http.StatusOK, actor)
	})
	router.GET("/door", auth.RequireRole(auth.RoleDoor), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	t.Run("MissingToken", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/whoami", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("ValidToken", func(t *testing.T) {
		signed, err := authn.Issue(auth.Actor{ID: "p-1", Role: auth.RolePromoter}, time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest("GET", "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"id":"p-1"`)
	})

	t.Run("WrongRole", func(t *testing.T) {
		signed, err := authn.Issue(auth.Actor{ID: "p-1", Role: auth.RolePromoter}, time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest("GET", "/door", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
