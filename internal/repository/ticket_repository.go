package repository

import (
	"context"
	"time"

	"vanta-access/internal/model"
	apperrors "vanta-access/pkg/app_errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TicketRepository is the persistence port for tickets. The conditional
// updates return ErrInvalidTransition when no row matched the expected
// status; callers resolve the precise reason with FindByID.
type TicketRepository interface {
	FindByID(ctx context.Context, id string) (*model.Ticket, error)
	FindByHash(ctx context.Context, eventID, hash string) (*model.Ticket, error)
	ListByEvent(ctx context.Context, eventID string) ([]*model.Ticket, error)
	CountSoldByEvent(ctx context.Context, eventID string) (map[string]int, error)
	ListTransfersRequestedBefore(ctx context.Context, cutoff time.Time) ([]*model.Ticket, error)

	// Transaction methods
	Create(ctx context.Context, ticket *model.Ticket) (*model.Ticket, error)
	FindByIDForUpdate(ctx context.Context, id string) (*model.Ticket, error)
	CountSoldByVariation(ctx context.Context, variationID string) (int, error)
	CountComplimentaryByPromoter(ctx context.Context, eventID, promoterID string) (int, error)
	CountComplimentaryByDocument(ctx context.Context, eventID, document string) (int, error)
	Claim(ctx context.Context, id, ownerID, name, document string, at time.Time) (*model.Ticket, error)
	Redeem(ctx context.Context, id string, at time.Time) (*model.Ticket, error)
	Cancel(ctx context.Context, id string, at time.Time) (*model.Ticket, error)
	RequestTransfer(ctx context.Context, id string, recipient *string, at time.Time) (*model.Ticket, error)
	CompleteTransfer(ctx context.Context, id, newOwner string, at time.Time) (*model.Ticket, error)
	RevertTransfer(ctx context.Context, id string, cutoff, at time.Time) (*model.Ticket, error)
}

type TicketRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &TicketRepositoryImpl{
		pool: pool,
	}
}

const ticketColumns = `id, user_id, event_id, variation_id, status, source, hash, promoter_id,
		holder_name, holder_document, price, transfer_to, transfer_requested_at,
		used_at, cancelled_at, created_at, updated_at`

func scanTicket(row pgx.Row) (*model.Ticket, error) {
	var ticket model.Ticket
	err := row.Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.EventID,
		&ticket.VariationID,
		&ticket.Status,
		&ticket.Source,
		&ticket.Hash,
		&ticket.PromoterID,
		&ticket.HolderName,
		&ticket.HolderDocument,
		&ticket.Price,
		&ticket.TransferTo,
		&ticket.TransferRequestedAt,
		&ticket.UsedAt,
		&ticket.CancelledAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *TicketRepositoryImpl) Create(ctx context.Context, ticket *model.Ticket) (*model.Ticket, error) {
	query := `
		INSERT INTO tickets (
			id, user_id, event_id, variation_id, status, source, hash, promoter_id,
			holder_name, holder_document, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING ` + ticketColumns

	created, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, query,
		ticket.ID, ticket.UserID, ticket.EventID, ticket.VariationID, ticket.Status,
		ticket.Source, ticket.Hash, ticket.PromoterID, ticket.HolderName,
		ticket.HolderDocument, ticket.Price, ticket.CreatedAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.ErrHashCollision
		}
		return nil, wrapErr(err, nil)
	}
	return created, nil
}

func (r *TicketRepositoryImpl) FindByID(ctx context.Context, id string) (*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`

	ticket, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapErr(err, apperrors.ErrTicketNotFound)
	}
	return ticket, nil
}

func (r *TicketRepositoryImpl) FindByIDForUpdate(ctx context.Context, id string) (*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1 FOR UPDATE`

	ticket, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapErr(err, apperrors.ErrTicketNotFound)
	}
	return ticket, nil
}

func (r *TicketRepositoryImpl) FindByHash(ctx context.Context, eventID, hash string) (*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE event_id = $1 AND hash = $2`

	ticket, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, query, eventID, hash))
	if err != nil {
		return nil, wrapErr(err, apperrors.ErrTicketNotFound)
	}
	return ticket, nil
}

func (r *TicketRepositoryImpl) ListByEvent(ctx context.Context, eventID string) ([]*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE event_id = $1 ORDER BY created_at DESC, id`
	return r.list(ctx, query, eventID)
}

func (r *TicketRepositoryImpl) ListTransfersRequestedBefore(ctx context.Context, cutoff time.Time) ([]*model.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE status = 'transfer_pending' AND transfer_requested_at < $1
		ORDER BY transfer_requested_at`
	return r.list(ctx, query, cutoff)
}

func (r *TicketRepositoryImpl) list(ctx context.Context, query string, args ...any) ([]*model.Ticket, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err, nil)
	}
	defer rows.Close()

	tickets := make([]*model.Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, wrapErr(err, nil)
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err, nil)
	}
	return tickets, nil
}

// CountSoldByEvent counts non-cancelled tickets per variation.
func (r *TicketRepositoryImpl) CountSoldByEvent(ctx context.Context, eventID string) (map[string]int, error) {
	query := `
		SELECT variation_id, COUNT(*)
		FROM tickets
		WHERE event_id = $1 AND variation_id IS NOT NULL AND status <> 'cancelled'
		GROUP BY variation_id
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, eventID)
	if err != nil {
		return nil, wrapErr(err, nil)
	}
	defer rows.Close()

	sold := make(map[string]int)
	for rows.Next() {
		var variationID string
		var count int
		if err := rows.Scan(&variationID, &count); err != nil {
			return nil, wrapErr(err, nil)
		}
		sold[variationID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err, nil)
	}
	return sold, nil
}

func (r *TicketRepositoryImpl) count(ctx context.Context, query string, args ...any) (int, error) {
	var count int
	if err := conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, wrapErr(err, nil)
	}
	return count, nil
}

func (r *TicketRepositoryImpl) CountSoldByVariation(ctx context.Context, variationID string) (int, error) {
	return r.count(ctx, `
		SELECT COUNT(*) FROM tickets
		WHERE variation_id = $1 AND status <> 'cancelled'
	`, variationID)
}

func (r *TicketRepositoryImpl) CountComplimentaryByPromoter(ctx context.Context, eventID, promoterID string) (int, error) {
	return r.count(ctx, `
		SELECT COUNT(*) FROM tickets
		WHERE event_id = $1 AND promoter_id = $2 AND source = 'complimentary' AND status <> 'cancelled'
	`, eventID, promoterID)
}

func (r *TicketRepositoryImpl) CountComplimentaryByDocument(ctx context.Context, eventID, document string) (int, error) {
	return r.count(ctx, `
		SELECT COUNT(*) FROM tickets
		WHERE event_id = $1 AND holder_document = $2 AND source = 'complimentary' AND status <> 'cancelled'
	`, eventID, document)
}

// update runs a conditional single-row UPDATE. Zero affected rows means the
// ticket was not in the expected state.
func (r *TicketRepositoryImpl) update(ctx context.Context, query string, args ...any) (*model.Ticket, error) {
	ticket, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, query+` RETURNING `+ticketColumns, args...))
	if err != nil {
		return nil, wrapErr(err, apperrors.ErrInvalidTransition)
	}
	return ticket, nil
}

func (r *TicketRepositoryImpl) Claim(ctx context.Context, id, ownerID, name, document string, at time.Time) (*model.Ticket, error) {
	return r.update(ctx, `
		UPDATE tickets
		SET holder_name = $2, holder_document = $3, user_id = COALESCE(user_id, $4), updated_at = $5
		WHERE id = $1 AND status = 'active' AND holder_document IS NULL
	`, id, name, document, ownerID, at)
}

func (r *TicketRepositoryImpl) Redeem(ctx context.Context, id string, at time.Time) (*model.Ticket, error) {
	return r.update(ctx, `
		UPDATE tickets
		SET status = 'used', used_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'active'
	`, id, at)
}

func (r *TicketRepositoryImpl) Cancel(ctx context.Context, id string, at time.Time) (*model.Ticket, error) {
	return r.update(ctx, `
		UPDATE tickets
		SET status = 'cancelled', cancelled_at = $2, transfer_to = NULL, updated_at = $2
		WHERE id = $1 AND status IN ('active', 'transfer_pending')
	`, id, at)
}

func (r *TicketRepositoryImpl) RequestTransfer(ctx context.Context, id string, recipient *string, at time.Time) (*model.Ticket, error) {
	return r.update(ctx, `
		UPDATE tickets
		SET status = 'transfer_pending', transfer_to = $2, transfer_requested_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'active'
	`, id, recipient, at)
}

func (r *TicketRepositoryImpl) CompleteTransfer(ctx context.Context, id, newOwner string, at time.Time) (*model.Ticket, error) {
	return r.update(ctx, `
		UPDATE tickets
		SET status = 'active', user_id = $2, holder_name = NULL, holder_document = NULL,
			transfer_to = NULL, transfer_requested_at = NULL, updated_at = $3
		WHERE id = $1 AND status = 'transfer_pending'
	`, id, newOwner, at)
}

func (r *TicketRepositoryImpl) RevertTransfer(ctx context.Context, id string, cutoff, at time.Time) (*model.Ticket, error) {
	return r.update(ctx, `
		UPDATE tickets
		SET status = 'active', transfer_to = NULL, transfer_requested_at = NULL, updated_at = $3
		WHERE id = $1 AND status = 'transfer_pending' AND transfer_requested_at < $2
	`, id, cutoff, at)
}
