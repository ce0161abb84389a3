package service

import (
	"context"

	"vanta-access/internal/clock"
	"vanta-access/internal/model"
	"vanta-access/internal/repository"
	"vanta-access/internal/timeline"
)

type EventService interface {
	Get(ctx context.Context, eventID string) (*model.Event, error)
	// 依時間軸排序的名單規則（有效在前，截止時間由早到晚）
	ListRules(ctx context.Context, eventID string) ([]model.RuleView, error)
}

type EventServiceImpl struct {
	repo  repository.EventRepository
	clock clock.Clock
}

func NewEventService(repo repository.EventRepository, clk clock.Clock) EventService {
	return &EventServiceImpl{repo: repo, clock: clk}
}

func (s *EventServiceImpl) Get(ctx context.Context, eventID string) (*model.Event, error) {
	return s.repo.FindByID(ctx, eventID)
}

func (s *EventServiceImpl) ListRules(ctx context.Context, eventID string) ([]model.RuleView, error) {
	event, err := s.repo.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return timeline.SortByTimeline(event.Rules, s.clock.Now()), nil
}
