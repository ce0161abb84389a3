package memory

import (
	"context"
	"sort"

	"vanta-access/internal/model"
	apperrors "vanta-access/pkg/app_errors"
)

type eventRepo struct {
	s *Store
}

func cloneEvent(e *model.Event) *model.Event {
	c := *e
	c.Batches = make([]model.Batch, len(e.Batches))
	for i, b := range e.Batches {
		b.Variations = append([]model.Variation(nil), b.Variations...)
		for j := range b.Variations {
			b.Variations[j].EventID = e.ID
			b.Variations[j].BatchID = b.ID
		}
		c.Batches[i] = b
	}
	c.Rules = append([]model.GuestListRule(nil), e.Rules...)
	for i := range c.Rules {
		c.Rules[i].EventID = e.ID
	}
	c.Staff = make([]model.StaffAssignment, len(e.Staff))
	for i, st := range e.Staff {
		if st.PromoterQuota != nil {
			q := *st.PromoterQuota
			st.PromoterQuota = &q
		}
		if st.RuleLimits != nil {
			limits := make(map[string]int, len(st.RuleLimits))
			for k, v := range st.RuleLimits {
				limits[k] = v
			}
			st.RuleLimits = limits
		}
		c.Staff[i] = st
	}
	return &c
}

func (r *eventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.events[id]
	if !ok {
		return nil, apperrors.ErrEventNotFound
	}
	return cloneEvent(e), nil
}

func (r *eventRepo) ListIDs(ctx context.Context) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := make([]string, 0, len(r.s.events))
	for id := range r.s.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *eventRepo) Save(ctx context.Context, event *model.Event) error {
	if event.ID == "" {
		return apperrors.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prev, existed := r.s.events[event.ID]
	r.s.events[event.ID] = cloneEvent(event)
	journal(ctx, func() {
		if existed {
			r.s.events[event.ID] = prev
		} else {
			delete(r.s.events, event.ID)
		}
	})
	return nil
}

func (r *eventRepo) FindVariationForUpdate(ctx context.Context, variationID string) (*model.Variation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, e := range r.s.events {
		if v, _, ok := e.FindVariation(variationID); ok {
			c := *v
			c.EventID = e.ID
			return &c, nil
		}
	}
	return nil, apperrors.ErrVariationNotFound
}
