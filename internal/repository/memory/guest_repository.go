package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"vanta-access/internal/model"
	apperrors "vanta-access/pkg/app_errors"
)

type guestRepo struct {
	s *Store
}

func (r *guestRepo) FindByID(ctx context.Context, id string) (*model.GuestEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	g, ok := r.s.guests[id]
	if !ok {
		return nil, apperrors.ErrGuestNotFound
	}
	return cloneGuest(g), nil
}

func (r *guestRepo) ListByEvent(ctx context.Context, eventID, nameQuery string) ([]*model.GuestEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	q := strings.ToUpper(nameQuery)
	out := make([]*model.GuestEntry, 0)
	for _, g := range r.s.guests {
		if g.EventID != eventID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToUpper(g.Name), q) {
			continue
		}
		out = append(out, cloneGuest(g))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *guestRepo) CreateBatch(ctx context.Context, entries []*model.GuestEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, e := range entries {
		if _, ok := r.s.guests[e.ID]; ok {
			return apperrors.ErrInvalidInput
		}
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		r.s.guests[e.ID] = cloneGuest(e)
		ids = append(ids, e.ID)
	}
	journal(ctx, func() {
		for _, id := range ids {
			delete(r.s.guests, id)
		}
	})
	return nil
}

func (r *guestRepo) CountByRuleAndStaff(ctx context.Context, eventID, ruleID, addedBy string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	count := 0
	for _, g := range r.s.guests {
		if g.EventID == eventID && g.RuleID == ruleID && g.AddedBy == addedBy {
			count++
		}
	}
	return count, nil
}

func (r *guestRepo) CheckIn(ctx context.Context, id, staff string, at time.Time) (*model.GuestEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	g, ok := r.s.guests[id]
	if !ok {
		return nil, apperrors.ErrGuestNotFound
	}
	if g.CheckedIn {
		return nil, apperrors.ErrAlreadyCheckedIn
	}
	prev := cloneGuest(g)
	g.CheckedIn = true
	g.CheckedInAt = &at
	g.CheckedInBy = &staff
	journal(ctx, func() { r.s.guests[id] = prev })
	return cloneGuest(g), nil
}

func (r *guestRepo) SetPriority(ctx context.Context, id string, notify bool) (*model.GuestEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	g, ok := r.s.guests[id]
	if !ok {
		return nil, apperrors.ErrGuestNotFound
	}
	prev := cloneGuest(g)
	g.NotifyOnArrival = notify
	journal(ctx, func() { r.s.guests[id] = prev })
	return cloneGuest(g), nil
}
