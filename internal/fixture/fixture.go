// Package fixture loads event definitions from YAML. The memory store has
// no admin system behind it, so dev and demo runs seed it from a file.
package fixture

import (
	"context"
	"fmt"
	"os"

	"vanta-access/internal/model"
	"vanta-access/internal/repository"
	"vanta-access/internal/timeline"

	"gopkg.in/yaml.v3"
)

type file struct {
	Events []model.Event `yaml:"events"`
}

func Load(path string) ([]*model.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]*model.Event, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	events := make([]*model.Event, 0, len(f.Events))
	for i := range f.Events {
		e := &f.Events[i]
		if err := validate(e); err != nil {
			return nil, fmt.Errorf("event %q: %w", e.ID, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func validate(e *model.Event) error {
	if e.ID == "" {
		return fmt.Errorf("missing id")
	}
	seen := map[string]bool{}
	for _, b := range e.Batches {
		if b.ID == "" {
			return fmt.Errorf("batch without id")
		}
		for _, v := range b.Variations {
			if v.ID == "" || seen[v.ID] {
				return fmt.Errorf("batch %s: missing or duplicate variation id %q", b.ID, v.ID)
			}
			seen[v.ID] = true
			if v.Limit < 0 {
				return fmt.Errorf("variation %s: negative limit", v.ID)
			}
		}
	}
	for _, r := range e.Rules {
		switch r.BenefitType {
		case model.BenefitVIP, model.BenefitDiscount, model.BenefitConsumption:
		default:
			return fmt.Errorf("rule %s: unknown benefit type %q", r.ID, r.BenefitType)
		}
		switch r.GenderScope {
		case model.GenderMale, model.GenderFemale, model.GenderUnisex:
		default:
			return fmt.Errorf("rule %s: unknown gender scope %q", r.ID, r.GenderScope)
		}
		if r.Deadline != nil {
			if _, err := timeline.ParseDeadline(*r.Deadline); err != nil {
				return fmt.Errorf("rule %s: %w", r.ID, err)
			}
		}
	}
	for _, s := range e.Staff {
		if s.StaffID == "" {
			return fmt.Errorf("staff assignment without staff_id")
		}
		for ruleID := range s.RuleLimits {
			if _, ok := e.FindRule(ruleID); !ok {
				return fmt.Errorf("staff %s: limit for unknown rule %s", s.StaffID, ruleID)
			}
		}
	}
	return nil
}

// Seed saves every event through the repository.
func Seed(ctx context.Context, repo repository.EventRepository, events []*model.Event) error {
	for _, e := range events {
		if err := repo.Save(ctx, e); err != nil {
			return fmt.Errorf("seed event %s: %w", e.ID, err)
		}
	}
	return nil
}
