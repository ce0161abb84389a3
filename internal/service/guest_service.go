package service

import (
	"context"
	"sort"
	"strings"

	"vanta-access/internal/auth"
	"vanta-access/internal/clock"
	"vanta-access/internal/model"
	"vanta-access/internal/repository"
	"vanta-access/internal/timeline"
	apperrors "vanta-access/pkg/app_errors"
	"vanta-access/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type GuestService interface {
	// AddGuests 整批新增；超過名額時整批拒絕
	AddGuests(ctx context.Context, eventID string, req model.AddGuestsRequest) ([]*model.GuestEntry, error)
	CheckIn(ctx context.Context, entryID string) (*model.GuestEntry, error)
	TogglePriority(ctx context.Context, entryID string, notify bool) (*model.GuestEntry, error)
	ListGuests(ctx context.Context, eventID, query string) ([]model.GuestView, error)
}

type GuestServiceImpl struct {
	tx     repository.TxManager
	events repository.EventRepository
	guests repository.GuestRepository
	audit  AuditRecorder
	clock  clock.Clock
}

func NewGuestService(
	tx repository.TxManager,
	events repository.EventRepository,
	guests repository.GuestRepository,
	audit AuditRecorder,
	clk clock.Clock,
) GuestService {
	return &GuestServiceImpl{
		tx:     tx,
		events: events,
		guests: guests,
		audit:  audit,
		clock:  clk,
	}
}

// CanonicalName trims, collapses inner whitespace and uppercases.
// Caser 有狀態，不可跨 goroutine 共用
func CanonicalName(name string) string {
	return cases.Upper(language.Und).String(strings.Join(strings.Fields(name), " "))
}

func (s *GuestServiceImpl) AddGuests(ctx context.Context, eventID string, req model.AddGuestsRequest) (added []*model.GuestEntry, err error) {
	defer func() {
		s.audit.Record(ctx, AuditEntry{
			Action:   "guest.add",
			Category: model.AuditCategoryGuest,
			TargetID: req.RuleID,
			Success:  err == nil,
			Reason:   reason(err),
			Details:  map[string]any{"event_id": eventID, "count": len(req.Names)},
		})
		fields := []zap.Field{zap.String("event_id", eventID), zap.String("rule_id", req.RuleID), zap.Int("count", len(req.Names))}
		if err != nil {
			logger.WithComponent("service").Warn("add guests rejected", append(fields, zap.Error(err))...)
		} else {
			logger.WithComponent("service").Info("guests added", fields...)
		}
	}()

	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.Names) == 0 {
		return nil, apperrors.ErrInvalidInput
	}

	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if _, ok := event.FindRule(req.RuleID); !ok {
		return nil, apperrors.ErrRuleNotFound
	}

	staff, assigned := event.FindStaff(actor.ID)
	if !assigned && !actor.HasRole(auth.RoleAdmin) {
		return nil, apperrors.ErrNotStaff
	}

	// 只有被指派該規則名額的 promoter 受限
	limit, quotaBound := 0, false
	if assigned && staff.Role == string(auth.RolePromoter) {
		limit, quotaBound = staff.RuleLimits[req.RuleID]
	}

	addedBy := actor.Identity()
	now := s.clock.Now().UTC()
	entries := make([]*model.GuestEntry, 0, len(req.Names))
	for _, raw := range req.Names {
		name := CanonicalName(raw)
		if name == "" {
			return nil, apperrors.ErrInvalidInput
		}
		entries = append(entries, &model.GuestEntry{
			ID:        uuid.NewString(),
			EventID:   eventID,
			RuleID:    req.RuleID,
			Name:      name,
			AddedBy:   addedBy,
			CreatedAt: now,
		})
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if quotaBound {
			if err := s.tx.Lock(ctx, repository.NominationLockKey(eventID, req.RuleID, addedBy)); err != nil {
				return err
			}
			used, err := s.guests.CountByRuleAndStaff(ctx, eventID, req.RuleID, addedBy)
			if err != nil {
				return err
			}
			if len(entries) > limit-used {
				return apperrors.NewLimitError(apperrors.ErrNominationLimitExceeded, limit, used)
			}
		}
		return s.guests.CreateBatch(ctx, entries)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *GuestServiceImpl) CheckIn(ctx context.Context, entryID string) (entry *model.GuestEntry, err error) {
	defer func() {
		s.audit.Record(ctx, AuditEntry{
			Action:   "guest.checkin",
			Category: model.AuditCategoryGuest,
			TargetID: entryID,
			Success:  err == nil,
			Reason:   reason(err),
		})
	}()

	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.guests.CheckIn(ctx, entryID, actor.Identity(), s.clock.Now().UTC())
}

func (s *GuestServiceImpl) TogglePriority(ctx context.Context, entryID string, notify bool) (entry *model.GuestEntry, err error) {
	defer func() {
		s.audit.Record(ctx, AuditEntry{
			Action:   "guest.priority",
			Category: model.AuditCategoryGuest,
			TargetID: entryID,
			Success:  err == nil,
			Reason:   reason(err),
			Details:  map[string]any{"notify_on_arrival": notify},
		})
	}()

	if _, err := auth.RequireActor(ctx); err != nil {
		return nil, err
	}
	return s.guests.SetPriority(ctx, entryID, notify)
}

func (s *GuestServiceImpl) ListGuests(ctx context.Context, eventID, query string) ([]model.GuestView, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	entries, err := s.guests.ListByEvent(ctx, eventID, strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rank := timeline.Rank(event.Rules, now)
	views := make([]model.GuestView, 0, len(entries))
	for _, e := range entries {
		view := model.GuestView{GuestEntry: *e, RuleStatus: model.RuleExpired}
		if rule, ok := event.FindRule(e.RuleID); ok {
			view.RuleStatus = timeline.Status(*rule, now)
			view.BenefitType = rule.BenefitType
			view.Deadline = rule.Deadline
		}
		views = append(views, view)
	}

	sort.SliceStable(views, func(i, j int) bool {
		ri, oki := rank[views[i].RuleID]
		rj, okj := rank[views[j].RuleID]
		if !oki {
			ri = len(rank)
		}
		if !okj {
			rj = len(rank)
		}
		if ri != rj {
			return ri < rj
		}
		return views[i].Name < views[j].Name
	})
	return views, nil
}
