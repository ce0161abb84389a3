package handler_test

import (
	"net/http"
	"testing"

	"vanta-access/internal/auth"
	"vanta-access/internal/model"
	apperrors "vanta-access/pkg/app_errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestAddGuests(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		r := setupTestRouter()
		req := model.AddGuestsRequest{RuleID: "R-VIP", Names: []string{"ana", "bia"}}
		r.guests.On("AddGuests", actorIs("P1"), "E1", req).Return([]*model.GuestEntry{
			{ID: "G1", Name: "ANA"}, {ID: "G2", Name: "BIA"},
		}, nil).Once()

		w := r.do(t, http.MethodPost, "/api/v1/events/E1/guests", bearer(t, "P1", auth.RolePromoter), req)
		assert.Equal(t, http.StatusCreated, w.Code)
		r.guests.AssertExpectations(t)
	})

	t.Run("Door staff cannot nominate", func(t *testing.T) {
		r := setupTestRouter()
		w := r.do(t, http.MethodPost, "/api/v1/events/E1/guests", bearer(t, "D1", auth.RoleDoor),
			model.AddGuestsRequest{RuleID: "R-VIP", Names: []string{"ana"}})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Empty names", func(t *testing.T) {
		r := setupTestRouter()
		w := r.do(t, http.MethodPost, "/api/v1/events/E1/guests", bearer(t, "P1", auth.RolePromoter),
			map[string]any{"rule_id": "R-VIP", "names": []string{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Nomination limit", func(t *testing.T) {
		r := setupTestRouter()
		r.guests.On("AddGuests", mock.Anything, "E1", mock.Anything).
			Return(nil, apperrors.NewLimitError(apperrors.ErrNominationLimitExceeded, 5, 4)).Once()

		w := r.do(t, http.MethodPost, "/api/v1/events/E1/guests", bearer(t, "P1", auth.RolePromoter),
			model.AddGuestsRequest{RuleID: "R-VIP", Names: []string{"ana", "bia"}})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		body := decode(t, w)
		assert.Equal(t, "NOMINATION_LIMIT_EXCEEDED", body["code"])
		assert.Equal(t, float64(4), body["current"])
	})
}

func TestListGuests(t *testing.T) {
	r := setupTestRouter()
	r.guests.On("ListGuests", mock.Anything, "E1", "mar").Return([]model.GuestView{
		{GuestEntry: model.GuestEntry{ID: "G1", Name: "MARINA"}, RuleStatus: model.RuleActive},
	}, nil).Once()

	w := r.do(t, http.MethodGet, "/api/v1/events/E1/guests?q=mar", bearer(t, "D1", auth.RoleDoor), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "MARINA")
}

func TestCheckIn(t *testing.T) {
	r := setupTestRouter()
	r.guests.On("CheckIn", actorIs("D1"), "G1").Return(&model.GuestEntry{ID: "G1", CheckedIn: true}, nil).Once()
	r.guests.On("CheckIn", mock.Anything, "G2").Return(nil, apperrors.ErrAlreadyCheckedIn).Once()

	w := r.do(t, http.MethodPost, "/api/v1/guests/G1/checkin", bearer(t, "D1", auth.RoleDoor), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = r.do(t, http.MethodPost, "/api/v1/guests/G2/checkin", bearer(t, "D1", auth.RoleDoor), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_CHECKED_IN", decode(t, w)["code"])

	w = r.do(t, http.MethodPost, "/api/v1/guests/G1/checkin", bearer(t, "P1", auth.RolePromoter), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSetPriority(t *testing.T) {
	r := setupTestRouter()
	r.guests.On("TogglePriority", mock.Anything, "G1", false).Return(&model.GuestEntry{ID: "G1"}, nil).Once()

	w := r.do(t, http.MethodPut, "/api/v1/guests/G1/priority", bearer(t, "P1", auth.RolePromoter),
		map[string]any{"notify_on_arrival": false})
	assert.Equal(t, http.StatusOK, w.Code)

	// 缺少欄位
	w = r.do(t, http.MethodPut, "/api/v1/guests/G1/priority", bearer(t, "P1", auth.RolePromoter), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	r.guests.AssertExpectations(t)
}
