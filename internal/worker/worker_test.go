package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"vanta-access/internal/auth"
	mocks "vanta-access/internal/mocks/services"
	"vanta-access/internal/model"
	"vanta-access/internal/queue"
	"vanta-access/internal/repository"
	"vanta-access/internal/repository/memory"
	"vanta-access/internal/worker"
	apperrors "vanta-access/pkg/app_errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func record(id string) *model.AuditRecord {
	return &model.AuditRecord{
		ID:        id,
		Action:    "ticket.redeem",
		Category:  model.AuditCategoryTicket,
		Actor:     "door@vanta.club",
		TargetID:  "T1",
		Success:   true,
		CreatedAt: time.Now().UTC(),
	}
}

func TestAuditWorker_AppendsPublishedRecords(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := queue.NewAuditQueue(10)
	store := memory.NewStore()

	done := make(chan error, 1)
	go func() { done <- worker.NewAuditWorker(store.AuditLog(), q).Run(ctx) }()

	require.NoError(t, q.Publish(ctx, record("a1")))
	require.NoError(t, q.Publish(ctx, record("a2")))

	assert.Eventually(t, func() bool {
		records, err := store.AuditLog().ListByTarget(context.Background(), "T1")
		return err == nil && len(records) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

// flakyAuditRepo 前幾次回傳暫時性錯誤
type flakyAuditRepo struct {
	repository.AuditRepository
	failures atomic.Int32
	appended atomic.Int32
}

func (r *flakyAuditRepo) Append(ctx context.Context, record *model.AuditRecord) error {
	if r.failures.Add(-1) >= 0 {
		return apperrors.Transient(errors.New("connection reset"))
	}
	r.appended.Add(1)
	return nil
}

func TestAuditWorker_RequeuesTransientFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := queue.NewAuditQueue(10)
	repo := &flakyAuditRepo{}
	repo.failures.Store(2)

	go func() { _ = worker.NewAuditWorker(repo, q).Run(ctx) }()
	require.NoError(t, q.Publish(ctx, record("a1")))

	assert.Eventually(t, func() bool { return repo.appended.Load() == 1 }, time.Second, 10*time.Millisecond)
}

type eventIDs struct {
	repository.EventRepository
	ids []string
}

func (e eventIDs) ListIDs(ctx context.Context) ([]string, error) {
	return e.ids, nil
}

func TestReconcileWorker_RunOnce(t *testing.T) {
	inventory := mocks.NewInventoryServiceMock()
	inventory.On("Reconcile", mock.Anything, "E1").Return(nil).Once()
	inventory.On("Reconcile", mock.Anything, "E2").Return(apperrors.Transient(fmt.Errorf("redis down"))).Once()
	inventory.On("Reconcile", mock.Anything, "E3").Return(nil).Once()

	w := worker.NewReconcileWorker(eventIDs{ids: []string{"E1", "E2", "E3"}}, inventory, time.Minute)
	err := w.RunOnce(context.Background())

	// 單一活動失敗不影響其他活動
	assert.ErrorIs(t, err, apperrors.ErrTransientStore)
	inventory.AssertExpectations(t)
}

func TestReconcileWorker_RunStopsWithContext(t *testing.T) {
	var calls atomic.Int32
	inventory := mocks.NewInventoryServiceMock()
	inventory.On("Reconcile", mock.Anything, "E1").Return(nil).Run(func(mock.Arguments) { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.NewReconcileWorker(eventIDs{ids: []string{"E1"}}, inventory, 5*time.Millisecond).Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return calls.Load() > 0
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestTransferSweeper_RunsAsSystemActor(t *testing.T) {
	tickets := mocks.NewTicketServiceMock()
	tickets.On("RevertExpiredTransfers", mock.MatchedBy(func(ctx context.Context) bool {
		actor, ok := auth.ActorFromContext(ctx)
		return ok && actor.Role == auth.RoleSystem && actor.ID == "system:transfer-sweep"
	}), 30*time.Minute).Return(2, nil).Once()

	n, err := worker.NewTransferSweeper(tickets, 30*time.Minute, time.Minute).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	tickets.AssertExpectations(t)
}
