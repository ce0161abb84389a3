package repository

import (
	"context"

	"vanta-access/internal/model"
	apperrors "vanta-access/pkg/app_errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository reads the event aggregate the admin system owns. Save is
// the sync entry point used by fixtures and the admin import.
type EventRepository interface {
	FindByID(ctx context.Context, id string) (*model.Event, error)
	ListIDs(ctx context.Context) ([]string, error)
	Save(ctx context.Context, event *model.Event) error

	// Transaction methods
	FindVariationForUpdate(ctx context.Context, variationID string) (*model.Variation, error)
}

type EventRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &EventRepositoryImpl{
		pool: pool,
	}
}

func (r *EventRepositoryImpl) FindByID(ctx context.Context, id string) (*model.Event, error) {
	db := conn(ctx, r.pool)

	var event model.Event
	err := db.QueryRow(ctx, `
		SELECT id, name, capacity, starts_at
		FROM events
		WHERE id = $1
	`, id).Scan(&event.ID, &event.Name, &event.Capacity, &event.StartsAt)
	if err != nil {
		return nil, wrapErr(err, apperrors.ErrEventNotFound)
	}

	if err := r.loadBatches(ctx, &event); err != nil {
		return nil, err
	}
	if err := r.loadRules(ctx, &event); err != nil {
		return nil, err
	}
	if err := r.loadStaff(ctx, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *EventRepositoryImpl) loadBatches(ctx context.Context, event *model.Event) error {
	db := conn(ctx, r.pool)

	rows, err := db.Query(ctx, `
		SELECT id, name, sale_ends_at
		FROM batches
		WHERE event_id = $1
		ORDER BY position, id
	`, event.ID)
	if err != nil {
		return wrapErr(err, nil)
	}
	index := map[string]int{}
	for rows.Next() {
		var b model.Batch
		if err := rows.Scan(&b.ID, &b.Name, &b.SaleEndsAt); err != nil {
			rows.Close()
			return wrapErr(err, nil)
		}
		b.Variations = make([]model.Variation, 0)
		index[b.ID] = len(event.Batches)
		event.Batches = append(event.Batches, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return wrapErr(err, nil)
	}

	rows, err = db.Query(ctx, `
		SELECT id, event_id, batch_id, area, gender, price, sale_limit
		FROM variations
		WHERE event_id = $1
		ORDER BY position, id
	`, event.ID)
	if err != nil {
		return wrapErr(err, nil)
	}
	defer rows.Close()

	for rows.Next() {
		var v model.Variation
		if err := rows.Scan(&v.ID, &v.EventID, &v.BatchID, &v.Area, &v.Gender, &v.Price, &v.Limit); err != nil {
			return wrapErr(err, nil)
		}
		if i, ok := index[v.BatchID]; ok {
			event.Batches[i].Variations = append(event.Batches[i].Variations, v)
		}
	}
	return wrapErr(rows.Err(), nil)
}

func (r *EventRepositoryImpl) loadRules(ctx context.Context, event *model.Event) error {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, event_id, benefit_type, gender_scope, area, value, deadline
		FROM guest_list_rules
		WHERE event_id = $1
		ORDER BY id
	`, event.ID)
	if err != nil {
		return wrapErr(err, nil)
	}
	defer rows.Close()

	event.Rules = make([]model.GuestListRule, 0)
	for rows.Next() {
		var rule model.GuestListRule
		err := rows.Scan(
			&rule.ID,
			&rule.EventID,
			&rule.BenefitType,
			&rule.GenderScope,
			&rule.Area,
			&rule.Value,
			&rule.Deadline,
		)
		if err != nil {
			return wrapErr(err, nil)
		}
		event.Rules = append(event.Rules, rule)
	}
	return wrapErr(rows.Err(), nil)
}

func (r *EventRepositoryImpl) loadStaff(ctx context.Context, event *model.Event) error {
	db := conn(ctx, r.pool)

	rows, err := db.Query(ctx, `
		SELECT staff_id, email, role, promoter_quota
		FROM staff_assignments
		WHERE event_id = $1
		ORDER BY staff_id
	`, event.ID)
	if err != nil {
		return wrapErr(err, nil)
	}
	index := map[string]int{}
	event.Staff = make([]model.StaffAssignment, 0)
	for rows.Next() {
		var s model.StaffAssignment
		if err := rows.Scan(&s.StaffID, &s.Email, &s.Role, &s.PromoterQuota); err != nil {
			rows.Close()
			return wrapErr(err, nil)
		}
		index[s.StaffID] = len(event.Staff)
		event.Staff = append(event.Staff, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return wrapErr(err, nil)
	}

	rows, err = db.Query(ctx, `
		SELECT staff_id, rule_id, max_names
		FROM staff_rule_limits
		WHERE event_id = $1
	`, event.ID)
	if err != nil {
		return wrapErr(err, nil)
	}
	defer rows.Close()

	for rows.Next() {
		var staffID, ruleID string
		var maxNames int
		if err := rows.Scan(&staffID, &ruleID, &maxNames); err != nil {
			return wrapErr(err, nil)
		}
		i, ok := index[staffID]
		if !ok {
			continue
		}
		if event.Staff[i].RuleLimits == nil {
			event.Staff[i].RuleLimits = map[string]int{}
		}
		event.Staff[i].RuleLimits[ruleID] = maxNames
	}
	return wrapErr(rows.Err(), nil)
}

func (r *EventRepositoryImpl) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT id FROM events ORDER BY id`)
	if err != nil {
		return nil, wrapErr(err, nil)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr(err, nil)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err, nil)
	}
	return ids, nil
}

// Save upserts the event and its structure. Existing variations keep their
// id so issued tickets stay attached.
func (r *EventRepositoryImpl) Save(ctx context.Context, event *model.Event) error {
	tm := NewTxManager(r.pool)
	return tm.WithTx(ctx, func(ctx context.Context) error {
		db := conn(ctx, r.pool)

		_, err := db.Exec(ctx, `
			INSERT INTO events (id, name, capacity, starts_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, capacity = EXCLUDED.capacity, starts_at = EXCLUDED.starts_at
		`, event.ID, event.Name, event.Capacity, event.StartsAt)
		if err != nil {
			return wrapErr(err, nil)
		}

		for bi, b := range event.Batches {
			_, err := db.Exec(ctx, `
				INSERT INTO batches (id, event_id, name, position, sale_ends_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE
				SET name = EXCLUDED.name, position = EXCLUDED.position, sale_ends_at = EXCLUDED.sale_ends_at
			`, b.ID, event.ID, b.Name, bi, b.SaleEndsAt)
			if err != nil {
				return wrapErr(err, nil)
			}
			for vi, v := range b.Variations {
				_, err := db.Exec(ctx, `
					INSERT INTO variations (id, event_id, batch_id, position, area, gender, price, sale_limit)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
					ON CONFLICT (id) DO UPDATE
					SET area = EXCLUDED.area, gender = EXCLUDED.gender, price = EXCLUDED.price,
						sale_limit = EXCLUDED.sale_limit, position = EXCLUDED.position
				`, v.ID, event.ID, b.ID, vi, v.Area, v.Gender, v.Price, v.Limit)
				if err != nil {
					return wrapErr(err, nil)
				}
			}
		}

		for _, rule := range event.Rules {
			_, err := db.Exec(ctx, `
				INSERT INTO guest_list_rules (id, event_id, benefit_type, gender_scope, area, value, deadline)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO UPDATE
				SET benefit_type = EXCLUDED.benefit_type, gender_scope = EXCLUDED.gender_scope,
					area = EXCLUDED.area, value = EXCLUDED.value, deadline = EXCLUDED.deadline
			`, rule.ID, event.ID, rule.BenefitType, rule.GenderScope, rule.Area, rule.Value, rule.Deadline)
			if err != nil {
				return wrapErr(err, nil)
			}
		}

		if _, err := db.Exec(ctx, `DELETE FROM staff_rule_limits WHERE event_id = $1`, event.ID); err != nil {
			return wrapErr(err, nil)
		}
		for _, s := range event.Staff {
			_, err := db.Exec(ctx, `
				INSERT INTO staff_assignments (event_id, staff_id, email, role, promoter_quota)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (event_id, staff_id) DO UPDATE
				SET email = EXCLUDED.email, role = EXCLUDED.role, promoter_quota = EXCLUDED.promoter_quota
			`, event.ID, s.StaffID, s.Email, s.Role, s.PromoterQuota)
			if err != nil {
				return wrapErr(err, nil)
			}
			for ruleID, maxNames := range s.RuleLimits {
				_, err := db.Exec(ctx, `
					INSERT INTO staff_rule_limits (event_id, staff_id, rule_id, max_names)
					VALUES ($1, $2, $3, $4)
				`, event.ID, s.StaffID, ruleID, maxNames)
				if err != nil {
					return wrapErr(err, nil)
				}
			}
		}
		return nil
	})
}

func (r *EventRepositoryImpl) FindVariationForUpdate(ctx context.Context, variationID string) (*model.Variation, error) {
	query := `
		SELECT id, event_id, batch_id, area, gender, price, sale_limit
		FROM variations
		WHERE id = $1
		FOR UPDATE
	`

	var v model.Variation
	err := conn(ctx, r.pool).QueryRow(ctx, query, variationID).Scan(
		&v.ID,
		&v.EventID,
		&v.BatchID,
		&v.Area,
		&v.Gender,
		&v.Price,
		&v.Limit,
	)
	if err != nil {
		return nil, wrapErr(err, apperrors.ErrVariationNotFound)
	}
	return &v, nil
}
