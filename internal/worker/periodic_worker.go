package worker

import (
	"context"
	"time"

	"vanta-access/internal/auth"
	"vanta-access/internal/repository"
	"vanta-access/internal/service"
	"vanta-access/pkg/logger"

	"go.uber.org/zap"
)

// runEvery calls fn on every tick until ctx is done.
func runEvery(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// ReconcileWorker overwrites warmed sold-out gates with database counts.
type ReconcileWorker struct {
	events    repository.EventRepository
	inventory service.InventoryService
	interval  time.Duration
}

func NewReconcileWorker(events repository.EventRepository, inventory service.InventoryService, interval time.Duration) *ReconcileWorker {
	return &ReconcileWorker{events: events, inventory: inventory, interval: interval}
}

func (w *ReconcileWorker) Run(ctx context.Context) error {
	return runEvery(ctx, w.interval, func(ctx context.Context) { _ = w.RunOnce(ctx) })
}

func (w *ReconcileWorker) RunOnce(ctx context.Context) error {
	log := logger.WithComponent("worker")

	ids, err := w.events.ListIDs(ctx)
	if err != nil {
		log.Error("reconcile: list events failed", zap.Error(err))
		return err
	}

	var firstErr error
	for _, id := range ids {
		if err := w.inventory.Reconcile(ctx, id); err != nil {
			log.Error("reconcile failed", zap.String("event_id", id), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// TransferSweeper returns stale pending transfers to their owners.
type TransferSweeper struct {
	tickets  service.TicketService
	ttl      time.Duration
	interval time.Duration
}

func NewTransferSweeper(tickets service.TicketService, ttl, interval time.Duration) *TransferSweeper {
	return &TransferSweeper{tickets: tickets, ttl: ttl, interval: interval}
}

func (w *TransferSweeper) Run(ctx context.Context) error {
	return runEvery(ctx, w.interval, func(ctx context.Context) { _, _ = w.RunOnce(ctx) })
}

func (w *TransferSweeper) RunOnce(ctx context.Context) (int, error) {
	ctx = auth.WithSystemActor(ctx, "transfer-sweep")

	n, err := w.tickets.RevertExpiredTransfers(ctx, w.ttl)
	if err != nil {
		logger.WithComponent("worker").Error("transfer sweep failed", zap.Int("reverted", n), zap.Error(err))
		return n, err
	}
	if n > 0 {
		logger.WithComponent("worker").Info("expired transfers reverted", zap.Int("count", n))
	}
	return n, nil
}
