package service_test

import (
	"context"
	"fmt"
	"testing"

	"vanta-access/internal/auth"
	"vanta-access/internal/cache"
	"vanta-access/internal/service"
	apperrors "vanta-access/pkg/app_errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type gateMock struct {
	mock.Mock
}

func (m *gateMock) WarmUp(ctx context.Context, variationID string, limit, sold int) error {
	return m.Called(ctx, variationID, limit, sold).Error(0)
}

func (m *gateMock) GetStock(ctx context.Context, variationID string) (cache.VariationStock, error) {
	args := m.Called(ctx, variationID)
	return args.Get(0).(cache.VariationStock), args.Error(1)
}

func (m *gateMock) TryAcquire(ctx context.Context, variationID string) error {
	return m.Called(ctx, variationID).Error(0)
}

func (m *gateMock) Release(ctx context.Context, variationID string) error {
	return m.Called(ctx, variationID).Error(0)
}

func (h *harness) withGate(gate cache.VariationInventory) (service.InventoryService, service.TicketService) {
	inventory := service.NewInventoryService(h.store.TxManager(), h.store.Events(), h.store.Tickets(), gate, h.audit)
	quota := service.NewQuotaService(h.store.Tickets())
	tickets := service.NewTicketService(h.store.TxManager(), h.store.Events(), h.store.Tickets(), inventory, quota, gate, h.audit, h.clock)
	return inventory, tickets
}

func TestInventory_Availability(t *testing.T) {
	h := newHarness(t)
	h.buy(t, "U1")
	h.buy(t, "U2")

	sold, err := h.inventory.CurrentSold(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, 2, sold[pistaMale])

	availability, err := h.inventory.Availability(context.Background(), eventID)
	require.NoError(t, err)
	require.Len(t, availability, 2)
	assert.Equal(t, vipFemale, availability[0].VariationID)
	assert.Equal(t, "Pré-venda", availability[0].BatchName)
	assert.Equal(t, 20, availability[0].Remaining)
	assert.Equal(t, 98, availability[1].Remaining)

	_, err = h.inventory.Availability(context.Background(), "E404")
	assert.ErrorIs(t, err, apperrors.ErrEventNotFound)
}

func TestInventory_OpenForSale(t *testing.T) {
	h := newHarness(t)
	h.buy(t, "U1")

	gate := new(gateMock)
	gate.On("WarmUp", mock.Anything, vipFemale, 20, 0).Return(nil).Once()
	gate.On("WarmUp", mock.Anything, pistaMale, 100, 1).Return(nil).Once()

	inventory, _ := h.withGate(gate)
	require.NoError(t, inventory.OpenForSale(asAdmin(), eventID))
	gate.AssertExpectations(t)

	opened := h.audit.byAction("inventory.open")
	require.Len(t, opened, 1)
	assert.True(t, opened[0].entry.Success)
	assert.Equal(t, "admin@vanta.club", opened[0].actor)
}

func TestInventory_OpenForSale_GateDown(t *testing.T) {
	h := newHarness(t)

	gate := new(gateMock)
	gate.On("WarmUp", mock.Anything, vipFemale, 20, 0).Return(fmt.Errorf("connection refused"))

	inventory, _ := h.withGate(gate)
	err := inventory.OpenForSale(asAdmin(), eventID)
	assert.ErrorIs(t, err, apperrors.ErrTransientStore)
	assert.False(t, h.audit.byAction("inventory.open")[0].entry.Success)
}

func TestInventory_ReconcileOnlyWarmVariations(t *testing.T) {
	h := newHarness(t)
	h.buy(t, "U1")

	gate := new(gateMock)
	gate.On("GetStock", mock.Anything, vipFemale).Return(cache.VariationStock{}, apperrors.ErrInventoryNotWarm)
	gate.On("GetStock", mock.Anything, pistaMale).Return(cache.VariationStock{Remaining: 50, Limit: 100}, nil)
	gate.On("WarmUp", mock.Anything, pistaMale, 100, 1).Return(nil).Once()

	inventory, _ := h.withGate(gate)
	require.NoError(t, inventory.Reconcile(context.Background(), eventID))
	gate.AssertExpectations(t)
	gate.AssertNotCalled(t, "WarmUp", mock.Anything, vipFemale, mock.Anything, mock.Anything)
}

func TestIssue_GateSoldOutFastRejects(t *testing.T) {
	h := newHarness(t)

	gate := new(gateMock)
	gate.On("TryAcquire", mock.Anything, vipFemale).Return(apperrors.ErrOversold)

	_, tickets := h.withGate(gate)
	_, err := tickets.Issue(as("U1", auth.RoleGuest), purchase(vipFemale))
	assert.ErrorIs(t, err, apperrors.ErrOversold)

	sold, err := h.store.Tickets().CountSoldByVariation(context.Background(), vipFemale)
	require.NoError(t, err)
	assert.Zero(t, sold)
	gate.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestIssue_ReleasesGateWhenDatabaseRejects(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 20; i++ {
		_, err := h.tickets.Issue(as(fmt.Sprintf("U%d", i), auth.RoleGuest), purchase(vipFemale))
		require.NoError(t, err)
	}

	// 閘門與資料庫不一致時以資料庫為準，並歸還閘門名額
	gate := new(gateMock)
	gate.On("TryAcquire", mock.Anything, vipFemale).Return(nil).Once()
	gate.On("Release", mock.Anything, vipFemale).Return(nil).Once()

	_, tickets := h.withGate(gate)
	_, err := tickets.Issue(as("late", auth.RoleGuest), purchase(vipFemale))
	assert.ErrorIs(t, err, apperrors.ErrOversold)
	gate.AssertExpectations(t)
}

func TestIssue_ColdGateFallsBackToDatabase(t *testing.T) {
	h := newHarness(t)

	gate := new(gateMock)
	gate.On("TryAcquire", mock.Anything, vipFemale).Return(apperrors.ErrInventoryNotWarm)

	_, tickets := h.withGate(gate)
	_, err := tickets.Issue(as("U1", auth.RoleGuest), purchase(vipFemale))
	require.NoError(t, err)
	gate.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestCancel_ReleasesGate(t *testing.T) {
	h := newHarness(t)

	gate := new(gateMock)
	gate.On("TryAcquire", mock.Anything, vipFemale).Return(nil).Once()
	gate.On("Release", mock.Anything, vipFemale).Return(nil).Once()

	_, tickets := h.withGate(gate)
	ticket, err := tickets.Issue(as("U1", auth.RoleGuest), purchase(vipFemale))
	require.NoError(t, err)

	_, err = tickets.Cancel(as("U1", auth.RoleGuest), ticket.ID)
	require.NoError(t, err)
	gate.AssertExpectations(t)
}
