package memory

import (
	"context"
	"sort"
	"time"

	"vanta-access/internal/model"
	apperrors "vanta-access/pkg/app_errors"
)

type ticketRepo struct {
	s *Store
}

func (r *ticketRepo) Create(ctx context.Context, ticket *model.Ticket) (*model.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tickets[ticket.ID]; ok {
		return nil, apperrors.ErrInvalidInput
	}
	for _, t := range r.s.tickets {
		if t.EventID == ticket.EventID && t.Hash == ticket.Hash {
			return nil, apperrors.ErrHashCollision
		}
	}

	stored := cloneTicket(ticket)
	stored.UpdatedAt = stored.CreatedAt
	r.s.tickets[stored.ID] = stored
	journal(ctx, func() { delete(r.s.tickets, stored.ID) })
	return cloneTicket(stored), nil
}

func (r *ticketRepo) FindByID(ctx context.Context, id string) (*model.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tickets[id]
	if !ok {
		return nil, apperrors.ErrTicketNotFound
	}
	return cloneTicket(t), nil
}

func (r *ticketRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Ticket, error) {
	return r.FindByID(ctx, id)
}

func (r *ticketRepo) FindByHash(ctx context.Context, eventID, hash string) (*model.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, t := range r.s.tickets {
		if t.EventID == eventID && t.Hash == hash {
			return cloneTicket(t), nil
		}
	}
	return nil, apperrors.ErrTicketNotFound
}

func (r *ticketRepo) filter(match func(t *model.Ticket) bool) []*model.Ticket {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*model.Ticket, 0)
	for _, t := range r.s.tickets {
		if match(t) {
			out = append(out, cloneTicket(t))
		}
	}
	return out
}

func (r *ticketRepo) ListByEvent(ctx context.Context, eventID string) ([]*model.Ticket, error) {
	tickets := r.filter(func(t *model.Ticket) bool { return t.EventID == eventID })
	sort.Slice(tickets, func(i, j int) bool {
		if !tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
		}
		return tickets[i].ID < tickets[j].ID
	})
	return tickets, nil
}

func (r *ticketRepo) ListTransfersRequestedBefore(ctx context.Context, cutoff time.Time) ([]*model.Ticket, error) {
	tickets := r.filter(func(t *model.Ticket) bool {
		return t.Status == model.TicketStatusTransferPending &&
			t.TransferRequestedAt != nil && t.TransferRequestedAt.Before(cutoff)
	})
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].TransferRequestedAt.Before(*tickets[j].TransferRequestedAt)
	})
	return tickets, nil
}

func (r *ticketRepo) CountSoldByEvent(ctx context.Context, eventID string) (map[string]int, error) {
	sold := make(map[string]int)
	for _, t := range r.filter(func(t *model.Ticket) bool {
		return t.EventID == eventID && t.VariationID != nil && t.Status != model.TicketStatusCancelled
	}) {
		sold[*t.VariationID]++
	}
	return sold, nil
}

func (r *ticketRepo) CountSoldByVariation(ctx context.Context, variationID string) (int, error) {
	return len(r.filter(func(t *model.Ticket) bool {
		return t.VariationID != nil && *t.VariationID == variationID && t.Status != model.TicketStatusCancelled
	})), nil
}

func (r *ticketRepo) CountComplimentaryByPromoter(ctx context.Context, eventID, promoterID string) (int, error) {
	return len(r.filter(func(t *model.Ticket) bool {
		return t.EventID == eventID && t.Source == model.SourceComplimentary &&
			t.Status != model.TicketStatusCancelled &&
			t.PromoterID != nil && *t.PromoterID == promoterID
	})), nil
}

func (r *ticketRepo) CountComplimentaryByDocument(ctx context.Context, eventID, document string) (int, error) {
	return len(r.filter(func(t *model.Ticket) bool {
		return t.EventID == eventID && t.Source == model.SourceComplimentary &&
			t.Status != model.TicketStatusCancelled &&
			t.HolderDocument != nil && *t.HolderDocument == document
	})), nil
}

// update applies mutate when guard accepts the current row. It mirrors the
// conditional UPDATE of the Postgres store.
func (r *ticketRepo) update(ctx context.Context, id string, guard func(t *model.Ticket) bool, mutate func(t *model.Ticket)) (*model.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tickets[id]
	if !ok || !guard(t) {
		return nil, apperrors.ErrInvalidTransition
	}
	prev := cloneTicket(t)
	mutate(t)
	journal(ctx, func() { r.s.tickets[id] = prev })
	return cloneTicket(t), nil
}

func (r *ticketRepo) Claim(ctx context.Context, id, ownerID, name, document string, at time.Time) (*model.Ticket, error) {
	return r.update(ctx, id,
		func(t *model.Ticket) bool {
			return t.Status == model.TicketStatusActive && t.HolderDocument == nil
		},
		func(t *model.Ticket) {
			t.HolderName = &name
			t.HolderDocument = &document
			if t.UserID == nil {
				t.UserID = &ownerID
			}
			t.UpdatedAt = at
		})
}

func (r *ticketRepo) Redeem(ctx context.Context, id string, at time.Time) (*model.Ticket, error) {
	return r.update(ctx, id,
		func(t *model.Ticket) bool { return t.Status == model.TicketStatusActive },
		func(t *model.Ticket) {
			t.Status = model.TicketStatusUsed
			t.UsedAt = &at
			t.UpdatedAt = at
		})
}

func (r *ticketRepo) Cancel(ctx context.Context, id string, at time.Time) (*model.Ticket, error) {
	return r.update(ctx, id,
		func(t *model.Ticket) bool { return !t.Status.IsTerminal() },
		func(t *model.Ticket) {
			t.Status = model.TicketStatusCancelled
			t.CancelledAt = &at
			t.TransferTo = nil
			t.UpdatedAt = at
		})
}

func (r *ticketRepo) RequestTransfer(ctx context.Context, id string, recipient *string, at time.Time) (*model.Ticket, error) {
	return r.update(ctx, id,
		func(t *model.Ticket) bool { return t.Status == model.TicketStatusActive },
		func(t *model.Ticket) {
			t.Status = model.TicketStatusTransferPending
			t.TransferTo = recipient
			t.TransferRequestedAt = &at
			t.UpdatedAt = at
		})
}

func (r *ticketRepo) CompleteTransfer(ctx context.Context, id, newOwner string, at time.Time) (*model.Ticket, error) {
	return r.update(ctx, id,
		func(t *model.Ticket) bool { return t.Status == model.TicketStatusTransferPending },
		func(t *model.Ticket) {
			t.Status = model.TicketStatusActive
			t.UserID = &newOwner
			t.HolderName = nil
			t.HolderDocument = nil
			t.TransferTo = nil
			t.TransferRequestedAt = nil
			t.UpdatedAt = at
		})
}

func (r *ticketRepo) RevertTransfer(ctx context.Context, id string, cutoff, at time.Time) (*model.Ticket, error) {
	return r.update(ctx, id,
		func(t *model.Ticket) bool {
			return t.Status == model.TicketStatusTransferPending &&
				t.TransferRequestedAt != nil && t.TransferRequestedAt.Before(cutoff)
		},
		func(t *model.Ticket) {
			t.Status = model.TicketStatusActive
			t.TransferTo = nil
			t.TransferRequestedAt = nil
			t.UpdatedAt = at
		})
}
