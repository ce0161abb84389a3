package memory

import (
	"context"

	"vanta-access/internal/model"
)

type auditRepo struct {
	s *Store
}

func (r *auditRepo) Append(ctx context.Context, record *model.AuditRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.audit {
		if existing.ID == record.ID {
			return nil
		}
	}
	c := *record
	r.s.audit = append(r.s.audit, &c)
	return nil
}

func (r *auditRepo) ListByTarget(ctx context.Context, targetID string) ([]*model.AuditRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*model.AuditRecord, 0)
	for _, rec := range r.s.audit {
		if rec.TargetID == targetID {
			c := *rec
			out = append(out, &c)
		}
	}
	return out, nil
}
