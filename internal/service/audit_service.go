package service

import (
	"context"
	"sync/atomic"
	"time"

	"vanta-access/internal/auth"
	"vanta-access/internal/clock"
	"vanta-access/internal/model"
	"vanta-access/internal/queue"
	"vanta-access/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditEntry is what a component reports. There is no actor field: the
// recorder resolves it from the session carried by ctx.
type AuditEntry struct {
	Action   string
	Category model.AuditCategory
	TargetID string
	Success  bool
	Reason   string
	Details  map[string]any
}

const anonymousActor = "anonymous"

type AuditRecorder interface {
	// Record never fails the caller. Sink failures are logged and counted.
	Record(ctx context.Context, entry AuditEntry)
	Failures() int64
}

type AuditRecorderImpl struct {
	queue          queue.AuditQueue
	actors         auth.ActorResolver
	clock          clock.Clock
	publishTimeout time.Duration
	failures       atomic.Int64
}

func NewAuditRecorder(q queue.AuditQueue, actors auth.ActorResolver, clk clock.Clock, publishTimeout time.Duration) AuditRecorder {
	if publishTimeout <= 0 {
		publishTimeout = 500 * time.Millisecond
	}
	return &AuditRecorderImpl{
		queue:          q,
		actors:         actors,
		clock:          clk,
		publishTimeout: publishTimeout,
	}
}

func (r *AuditRecorderImpl) Record(ctx context.Context, entry AuditEntry) {
	log := logger.WithComponent("audit")

	actor := anonymousActor
	if a, err := r.actors.Resolve(ctx); err == nil {
		actor = a.Identity()
	} else {
		log.Warn("audit without authenticated actor", zap.String("action", entry.Action))
	}

	record := &model.AuditRecord{
		ID:        uuid.NewString(),
		Action:    entry.Action,
		Category:  entry.Category,
		Actor:     actor,
		TargetID:  entry.TargetID,
		Success:   entry.Success,
		Reason:    entry.Reason,
		Details:   entry.Details,
		CreatedAt: r.clock.Now().UTC(),
	}

	// 與 request 生命週期脫鉤：使用者取消請求不應讓稽核紀錄遺失
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.publishTimeout)
	defer cancel()

	if err := r.queue.Publish(pubCtx, record); err != nil {
		n := r.failures.Add(1)
		log.Error("failed to publish audit record",
			zap.String("action", record.Action),
			zap.String("target_id", record.TargetID),
			zap.String("actor", record.Actor),
			zap.Int64("failures_total", n),
			zap.Error(err),
		)
	}
}

func (r *AuditRecorderImpl) Failures() int64 {
	return r.failures.Load()
}

// reason renders an error for the audit trail; nil means success.
func reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
