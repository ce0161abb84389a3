package repository

import (
	"context"

	"vanta-access/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository is append-only: there is no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, record *model.AuditRecord) error
	ListByTarget(ctx context.Context, targetID string) ([]*model.AuditRecord, error)
}

type AuditRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &AuditRepositoryImpl{
		pool: pool,
	}
}

// Append is idempotent on the record id so redelivered queue messages do
// not duplicate rows.
func (r *AuditRepositoryImpl) Append(ctx context.Context, record *model.AuditRecord) error {
	query := `
		INSERT INTO audit_log (id, action, category, actor, target_id, success, reason, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		record.ID, record.Action, record.Category, record.Actor, record.TargetID,
		record.Success, record.Reason, record.Details, record.CreatedAt,
	)
	return wrapErr(err, nil)
}

func (r *AuditRepositoryImpl) ListByTarget(ctx context.Context, targetID string) ([]*model.AuditRecord, error) {
	query := `
		SELECT id, action, category, actor, target_id, success, reason, details, created_at
		FROM audit_log
		WHERE target_id = $1
		ORDER BY created_at, id
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, targetID)
	if err != nil {
		return nil, wrapErr(err, nil)
	}
	defer rows.Close()

	records := make([]*model.AuditRecord, 0)
	for rows.Next() {
		var rec model.AuditRecord
		err := rows.Scan(
			&rec.ID,
			&rec.Action,
			&rec.Category,
			&rec.Actor,
			&rec.TargetID,
			&rec.Success,
			&rec.Reason,
			&rec.Details,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, wrapErr(err, nil)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err, nil)
	}
	return records, nil
}
