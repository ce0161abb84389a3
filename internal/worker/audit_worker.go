package worker

import (
	"context"
	"errors"

	"vanta-access/internal/queue"
	"vanta-access/internal/repository"
	apperrors "vanta-access/pkg/app_errors"
	"vanta-access/pkg/logger"

	"go.uber.org/zap"
)

type AuditWorker interface {
	// Run 阻塞直到 ctx 結束
	Run(ctx context.Context) error
}

type AuditWorkerImpl struct {
	repo  repository.AuditRepository
	queue queue.AuditQueue
}

func NewAuditWorker(repo repository.AuditRepository, queue queue.AuditQueue) AuditWorker {
	return &AuditWorkerImpl{
		repo:  repo,
		queue: queue,
	}
}

func (w *AuditWorkerImpl) Run(ctx context.Context) error {
	log := logger.WithComponent("worker")

	msgs, err := w.queue.Subscribe(ctx)
	if err != nil {
		return err
	}
	log.Info("audit worker started")

	for msg := range msgs {
		// 把佇列裡的稽核紀錄寫進 audit_log
		err := w.repo.Append(ctx, msg.Data)
		switch {
		case err == nil:
			msg.Ack()
		case errors.Is(err, apperrors.ErrTransientStore):
			// 資料庫暫時連不上，交回佇列重試
			log.Warn("audit append failed, requeue", zap.String("id", msg.Data.ID), zap.Error(err))
			msg.Nack(true)
		default:
			log.Error("audit append rejected, not retrying", zap.String("id", msg.Data.ID), zap.Error(err))
			msg.Nack(false)
		}
	}

	log.Info("audit worker stopped")
	return nil
}
