package repository

import (
	"context"
	"errors"
	"time"

	"vanta-access/internal/model"
	apperrors "vanta-access/pkg/app_errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type GuestRepository interface {
	FindByID(ctx context.Context, id string) (*model.GuestEntry, error)
	ListByEvent(ctx context.Context, eventID, nameQuery string) ([]*model.GuestEntry, error)
	SetPriority(ctx context.Context, id string, notify bool) (*model.GuestEntry, error)

	// Transaction methods
	CreateBatch(ctx context.Context, entries []*model.GuestEntry) error
	CountByRuleAndStaff(ctx context.Context, eventID, ruleID, addedBy string) (int, error)
	CheckIn(ctx context.Context, id, staff string, at time.Time) (*model.GuestEntry, error)
}

type GuestRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewGuestRepository(pool *pgxpool.Pool) GuestRepository {
	return &GuestRepositoryImpl{
		pool: pool,
	}
}

const guestColumns = `id, event_id, rule_id, name, added_by, checked_in, checked_in_at,
		checked_in_by, notify_on_arrival, created_at`

func scanGuest(row pgx.Row) (*model.GuestEntry, error) {
	var entry model.GuestEntry
	err := row.Scan(
		&entry.ID,
		&entry.EventID,
		&entry.RuleID,
		&entry.Name,
		&entry.AddedBy,
		&entry.CheckedIn,
		&entry.CheckedInAt,
		&entry.CheckedInBy,
		&entry.NotifyOnArrival,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *GuestRepositoryImpl) FindByID(ctx context.Context, id string) (*model.GuestEntry, error) {
	entry, err := scanGuest(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+guestColumns+` FROM guest_entries WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr(err, apperrors.ErrGuestNotFound)
	}
	return entry, nil
}

// ListByEvent filters by a case-insensitive name fragment when nameQuery is set.
func (r *GuestRepositoryImpl) ListByEvent(ctx context.Context, eventID, nameQuery string) ([]*model.GuestEntry, error) {
	query := `
		SELECT ` + guestColumns + `
		FROM guest_entries
		WHERE event_id = $1 AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY name, id
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, eventID, nameQuery)
	if err != nil {
		return nil, wrapErr(err, nil)
	}
	defer rows.Close()

	entries := make([]*model.GuestEntry, 0)
	for rows.Next() {
		entry, err := scanGuest(rows)
		if err != nil {
			return nil, wrapErr(err, nil)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err, nil)
	}
	return entries, nil
}

// CreateBatch inserts all entries with one round trip. Any failure aborts
// the batch.
func (r *GuestRepositoryImpl) CreateBatch(ctx context.Context, entries []*model.GuestEntry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO guest_entries (id, event_id, rule_id, name, added_by, notify_on_arrival, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, e.ID, e.EventID, e.RuleID, e.Name, e.AddedBy, e.NotifyOnArrival, e.CreatedAt)
	}

	var results pgx.BatchResults
	if tx := txFromContext(ctx); tx != nil {
		results = tx.SendBatch(ctx, batch)
	} else {
		results = r.pool.SendBatch(ctx, batch)
	}

	for range entries {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return wrapErr(err, nil)
		}
	}
	return wrapErr(results.Close(), nil)
}

func (r *GuestRepositoryImpl) CountByRuleAndStaff(ctx context.Context, eventID, ruleID, addedBy string) (int, error) {
	var count int
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*) FROM guest_entries
		WHERE event_id = $1 AND rule_id = $2 AND added_by = $3
	`, eventID, ruleID, addedBy).Scan(&count)
	if err != nil {
		return 0, wrapErr(err, nil)
	}
	return count, nil
}

// CheckIn flips checked_in once. A second call returns ErrAlreadyCheckedIn.
func (r *GuestRepositoryImpl) CheckIn(ctx context.Context, id, staff string, at time.Time) (*model.GuestEntry, error) {
	entry, err := scanGuest(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE guest_entries
		SET checked_in = TRUE, checked_in_at = $2, checked_in_by = $3
		WHERE id = $1 AND checked_in = FALSE
		RETURNING `+guestColumns, id, at, staff))
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, wrapErr(err, nil)
	}

	if _, err := r.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, apperrors.ErrAlreadyCheckedIn
}

func (r *GuestRepositoryImpl) SetPriority(ctx context.Context, id string, notify bool) (*model.GuestEntry, error) {
	entry, err := scanGuest(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE guest_entries
		SET notify_on_arrival = $2
		WHERE id = $1
		RETURNING `+guestColumns, id, notify))
	if err != nil {
		return nil, wrapErr(err, apperrors.ErrGuestNotFound)
	}
	return entry, nil
}
