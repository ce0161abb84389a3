package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"vanta-access/internal/auth"
	"vanta-access/internal/handler"
	"vanta-access/internal/model"
	"vanta-access/internal/service"
	apperrors "vanta-access/pkg/app_errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestListRules(t *testing.T) {
	r := setupTestRouter()
	r.events.On("ListRules", mock.Anything, "E1").Return([]model.RuleView{
		{GuestListRule: model.GuestListRule{ID: "R-DRINK"}, Status: model.RuleActive},
	}, nil).Once()
	r.events.On("ListRules", mock.Anything, "E404").Return(nil, apperrors.ErrEventNotFound).Once()

	w := r.do(t, http.MethodGet, "/api/v1/events/E1/rules", bearer(t, "U1", auth.RoleGuest), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ACTIVE"`)

	w = r.do(t, http.MethodGet, "/api/v1/events/E404/rules", bearer(t, "U1", auth.RoleGuest), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInventory(t *testing.T) {
	r := setupTestRouter()
	r.inventory.On("Availability", mock.Anything, "E1").Return([]model.VariationAvailability{
		{VariationID: "V-VIP-F", Limit: 20, Sold: 5, Remaining: 15},
	}, nil).Once()

	w := r.do(t, http.MethodGet, "/api/v1/events/E1/inventory", bearer(t, "U1", auth.RoleGuest), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remaining":15`)
}

func TestOpenForSale(t *testing.T) {
	r := setupTestRouter()
	r.inventory.On("OpenForSale", actorIs("A1"), "E1").Return(nil).Once()

	w := r.do(t, http.MethodPost, "/api/v1/events/E1/open", bearer(t, "A1", auth.RoleAdmin), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = r.do(t, http.MethodPost, "/api/v1/events/E1/open", bearer(t, "P1", auth.RolePromoter), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	r.inventory.AssertExpectations(t)
}

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

type auditStub struct{ failures int64 }

func (a auditStub) Record(context.Context, service.AuditEntry) {}
func (a auditStub) Failures() int64 { return a.failures }

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		store  handler.Pinger
		status int
		want   string
	}{
		{"memory driver", nil, http.StatusOK, `"status":"ok"`},
		{"store up", pinger{}, http.StatusOK, `"audit_failures":3`},
		{"store down", pinger{err: errors.New("dial tcp: refused")}, http.StatusServiceUnavailable, `"status":"degraded"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			handler.NewHealthHandler(tt.store, auditStub{failures: 3}).RegisterRoutes(router)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}
