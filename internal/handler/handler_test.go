package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vanta-access/internal/auth"
	"vanta-access/internal/handler"
	mocks "vanta-access/internal/mocks/services"
	"vanta-access/internal/model"
	apperrors "vanta-access/pkg/app_errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	InvalidJSON = `{"invalid": json}`
	authn       = auth.NewAuthenticator("test-secret", "vanta-test")
)

type testRouter struct {
	engine    *gin.Engine
	tickets   *mocks.TicketServiceMock
	guests    *mocks.GuestServiceMock
	events    *mocks.EventServiceMock
	inventory *mocks.InventoryServiceMock
}

func setupTestRouter() *testRouter {
	gin.SetMode(gin.TestMode)
	r := &testRouter{
		tickets:   mocks.NewTicketServiceMock(),
		guests:    mocks.NewGuestServiceMock(),
		events:    mocks.NewEventServiceMock(),
		inventory: mocks.NewInventoryServiceMock(),
	}
	r.engine = handler.NewRouter(authn, handler.Handlers{
		Events:  handler.NewEventHandler(r.events, r.inventory),
		Tickets: handler.NewTicketHandler(r.tickets),
		Guests:  handler.NewGuestHandler(r.guests),
	})
	return r
}

func bearer(t *testing.T, id string, role auth.Role) string {
	t.Helper()
	tok, err := authn.Issue(auth.Actor{ID: id, Email: id + "@vanta.club", Role: role}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (r *testRouter) do(t *testing.T, method, url, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = bytes.NewBuffer(nil)
	case string:
		buf = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		buf = bytes.NewBuffer(data)
	}
	req, err := http.NewRequest(method, url, buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// actorIs 驗證 service 收到的是 token 解析出的身分
func actorIs(id string) any {
	return mock.MatchedBy(func(ctx context.Context) bool {
		actor, ok := auth.ActorFromContext(ctx)
		return ok && actor.ID == id
	})
}

func activeTicket() *model.Ticket {
	user := "U1"
	return &model.Ticket{
		ID:      "T1",
		EventID: "E1",
		UserID:  &user,
		Status:  model.TicketStatusActive,
		Source:  model.SourcePurchase,
		Hash:    "ABCDEF123456",
	}
}

func TestIssueTicket(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		r := setupTestRouter()
		r.tickets.On("Issue", mock.Anything, mock.MatchedBy(func(req model.IssueTicketRequest) bool {
			return req.EventID == "E1" && req.Source == model.SourcePurchase && *req.VariationID == "V-VIP-F"
		})).Return(activeTicket(), nil).Once()

		w := r.do(t, http.MethodPost, "/api/v1/events/E1/tickets", bearer(t, "U1", auth.RoleGuest),
			map[string]any{"variation_id": "V-VIP-F", "source": "purchase"})

		assert.Equal(t, http.StatusCreated, w.Code)
		body := decode(t, w)
		assert.Equal(t, "VANTA_AUTH:ABCDEF123456", body["token"])
		assert.Equal(t, "T1", body["id"])
		r.tickets.AssertExpectations(t)
	})

	t.Run("Missing token", func(t *testing.T) {
		r := setupTestRouter()
		w := r.do(t, http.MethodPost, "/api/v1/events/E1/tickets", "", map[string]any{"source": "purchase"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		r.tickets.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		r := setupTestRouter()
		w := r.do(t, http.MethodPost, "/api/v1/events/E1/tickets", bearer(t, "U1", auth.RoleGuest), InvalidJSON)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_INPUT", decode(t, w)["code"])
	})

	t.Run("Sold out", func(t *testing.T) {
		r := setupTestRouter()
		r.tickets.On("Issue", mock.Anything, mock.Anything).
			Return(nil, apperrors.NewLimitError(apperrors.ErrOversold, 20, 20)).Once()

		w := r.do(t, http.MethodPost, "/api/v1/events/E1/tickets", bearer(t, "U1", auth.RoleGuest),
			map[string]any{"variation_id": "V-VIP-F", "source": "purchase"})

		assert.Equal(t, http.StatusConflict, w.Code)
		body := decode(t, w)
		assert.Equal(t, "SOLD_OUT", body["code"])
		assert.Equal(t, float64(20), body["limit"])
	})
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"quota", apperrors.NewLimitError(apperrors.ErrQuotaExceeded, 3, 3), http.StatusUnprocessableEntity, "QUOTA_EXCEEDED"},
		{"document", apperrors.NewLimitError(apperrors.ErrDocumentLimitExceeded, 2, 2), http.StatusUnprocessableEntity, "DOCUMENT_LIMIT_EXCEEDED"},
		{"not found", apperrors.ErrTicketNotFound, http.StatusNotFound, "TICKET_NOT_FOUND"},
		{"used", apperrors.ErrAlreadyUsed, http.StatusConflict, "ALREADY_USED"},
		{"cancelled", apperrors.ErrCancelled, http.StatusConflict, "CANCELLED"},
		{"pending", apperrors.ErrTransferPending, http.StatusConflict, "TRANSFER_PENDING"},
		{"bad token", apperrors.ErrInvalidToken, http.StatusBadRequest, "INVALID_TOKEN"},
		{"transient", apperrors.Transient(errors.New("conn reset")), http.StatusServiceUnavailable, "TRY_AGAIN"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupTestRouter()
			r.tickets.On("ValidateToken", mock.Anything, "VANTA_AUTH:X", "E1").Return(nil, tt.err).Once()

			w := r.do(t, http.MethodPost, "/api/v1/events/E1/validate", bearer(t, "D1", auth.RoleDoor),
				model.ValidateTicketRequest{Token: "VANTA_AUTH:X"})

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["code"])
		})
	}
}

func TestValidate_RequiresDoorRole(t *testing.T) {
	r := setupTestRouter()
	w := r.do(t, http.MethodPost, "/api/v1/events/E1/validate", bearer(t, "U1", auth.RoleGuest),
		model.ValidateTicketRequest{Token: "VANTA_AUTH:X"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	r.tickets.AssertNotCalled(t, "ValidateToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestRedeem_PassesSessionActor(t *testing.T) {
	r := setupTestRouter()
	used := activeTicket()
	used.Status = model.TicketStatusUsed
	r.tickets.On("Redeem", actorIs("D1"), "T1").Return(used, nil).Once()

	w := r.do(t, http.MethodPost, "/api/v1/tickets/T1/redeem", bearer(t, "D1", auth.RoleDoor), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "used", decode(t, w)["status"])
	r.tickets.AssertExpectations(t)
}

func TestTransfer_OptionalBody(t *testing.T) {
	r := setupTestRouter()
	pending := activeTicket()
	pending.Status = model.TicketStatusTransferPending
	r.tickets.On("InitiateTransfer", actorIs("U1"), "T1", (*string)(nil)).Return(pending, nil).Once()
	r.tickets.On("InitiateTransfer", actorIs("U1"), "T2", mock.MatchedBy(func(to *string) bool {
		return to != nil && *to == "U2"
	})).Return(pending, nil).Once()

	w := r.do(t, http.MethodPost, "/api/v1/tickets/T1/transfer", bearer(t, "U1", auth.RoleGuest), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = r.do(t, http.MethodPost, "/api/v1/tickets/T2/transfer", bearer(t, "U1", auth.RoleGuest),
		model.TransferTicketRequest{RecipientUserID: strPtr("U2")})
	assert.Equal(t, http.StatusOK, w.Code)
	r.tickets.AssertExpectations(t)
}

func TestClaimTicket(t *testing.T) {
	r := setupTestRouter()
	claimed := activeTicket()
	claimed.HolderName = strPtr("Ana")
	claimed.HolderDocument = strPtr("123")
	r.tickets.On("ClaimOwnership", actorIs("U1"), "T1", "Ana", "123").Return(claimed, nil).Once()

	w := r.do(t, http.MethodPost, "/api/v1/tickets/T1/claim", bearer(t, "U1", auth.RoleGuest),
		model.ClaimTicketRequest{Name: "Ana", Document: "123"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ana", decode(t, w)["holder_name"])

	w = r.do(t, http.MethodPost, "/api/v1/tickets/T1/claim", bearer(t, "U1", auth.RoleGuest), map[string]any{"name": "Ana"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func strPtr(s string) *string { return &s }

func TestListTickets_OmitsCredentials(t *testing.T) {
	r := setupTestRouter()
	ticket := activeTicket()
	ticket.HolderName = strPtr("Maria Silva")
	ticket.HolderDocument = strPtr("12345678900")
	r.tickets.On("ListTickets", actorIs("D1"), "E1").Return([]*model.Ticket{ticket}, nil).Once()

	w := r.do(t, http.MethodGet, "/api/v1/events/E1/tickets", bearer(t, "D1", auth.RoleDoor), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "ABCDEF123456")
	assert.NotContains(t, w.Body.String(), "12345678900")
	assert.NotContains(t, w.Body.String(), "VANTA_AUTH")

	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "T1", list[0]["id"])
	assert.Equal(t, true, list[0]["claimed"])
	assert.NotContains(t, list[0], "user_id")
	r.tickets.AssertExpectations(t)
}

func TestListTickets_NotStaff(t *testing.T) {
	r := setupTestRouter()
	r.tickets.On("ListTickets", actorIs("P9"), "E1").Return(nil, apperrors.ErrNotStaff).Once()

	w := r.do(t, http.MethodGet, "/api/v1/events/E1/tickets", bearer(t, "P9", auth.RolePromoter), nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_STAFF", decode(t, w)["code"])
}

func TestIssueTicket_SaleClosed(t *testing.T) {
	r := setupTestRouter()
	r.tickets.On("Issue", actorIs("U1"), mock.Anything).Return(nil, apperrors.ErrSaleWindowClosed).Once()

	w := r.do(t, http.MethodPost, "/api/v1/events/E1/tickets", bearer(t, "U1", auth.RoleGuest),
		map[string]any{"source": "purchase", "variation_id": "V-VIP-F"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SALE_CLOSED", decode(t, w)["code"])
}
