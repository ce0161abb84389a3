package model

import "time"

// Event 由外部管理系統維護；對存取控制而言是唯讀輸入
type Event struct {
	ID       string            `json:"id" db:"id" yaml:"id"`
	Name     string            `json:"name" db:"name" yaml:"name"`
	Capacity int               `json:"capacity" db:"capacity" yaml:"capacity"`
	StartsAt *time.Time        `json:"starts_at,omitempty" db:"starts_at" yaml:"starts_at"`
	Batches  []Batch           `json:"batches" yaml:"batches"`
	Rules    []GuestListRule   `json:"rules" yaml:"rules"`
	Staff    []StaffAssignment `json:"staff" yaml:"staff"`
}

// Batch groups variations inside a sale window. Limits live on variations.
type Batch struct {
	ID         string      `json:"id" db:"id" yaml:"id"`
	Name       string      `json:"name" db:"name" yaml:"name"`
	SaleEndsAt *time.Time  `json:"sale_ends_at,omitempty" db:"sale_ends_at" yaml:"sale_ends_at"`
	Variations []Variation `json:"variations" yaml:"variations"`
}

type Variation struct {
	ID      string  `json:"id" db:"id" yaml:"id"`
	EventID string  `json:"event_id" db:"event_id" yaml:"-"`
	BatchID string  `json:"batch_id" db:"batch_id" yaml:"-"`
	Area    string  `json:"area" db:"area" yaml:"area"`
	Gender  string  `json:"gender" db:"gender" yaml:"gender"`
	Price   float64 `json:"price" db:"price" yaml:"price"`
	Limit   int     `json:"limit" db:"sale_limit" yaml:"limit"`
}

// StaffAssignment 活動人員指派；PromoterQuota 為 nil 代表不限制贈票數
type StaffAssignment struct {
	StaffID       string         `json:"staff_id" db:"staff_id" yaml:"staff_id"`
	Email         string         `json:"email" db:"email" yaml:"email"`
	Role          string         `json:"role" db:"role" yaml:"role"`
	PromoterQuota *int           `json:"promoter_quota,omitempty" db:"promoter_quota" yaml:"promoter_quota"`
	RuleLimits    map[string]int `json:"rule_limits,omitempty" yaml:"rule_limits"`
}

// FindVariation returns the variation and the batch that holds it.
func (e *Event) FindVariation(variationID string) (*Variation, *Batch, bool) {
	for i := range e.Batches {
		b := &e.Batches[i]
		for j := range b.Variations {
			if b.Variations[j].ID == variationID {
				return &b.Variations[j], b, true
			}
		}
	}
	return nil, nil, false
}

func (e *Event) FindRule(ruleID string) (*GuestListRule, bool) {
	for i := range e.Rules {
		if e.Rules[i].ID == ruleID {
			return &e.Rules[i], true
		}
	}
	return nil, false
}

func (e *Event) FindStaff(staffID string) (*StaffAssignment, bool) {
	for i := range e.Staff {
		if e.Staff[i].StaffID == staffID {
			return &e.Staff[i], true
		}
	}
	return nil, false
}

// Variations flattens the batches in declaration order.
func (e *Event) Variations() []Variation {
	out := make([]Variation, 0)
	for _, b := range e.Batches {
		out = append(out, b.Variations...)
	}
	return out
}

// VariationAvailability 單一票種的庫存狀態
type VariationAvailability struct {
	VariationID string  `json:"variation_id"`
	BatchID     string  `json:"batch_id"`
	BatchName   string  `json:"batch_name"`
	Area        string  `json:"area"`
	Gender      string  `json:"gender"`
	Price       float64 `json:"price"`
	Limit       int     `json:"limit"`
	Sold        int     `json:"sold"`
	Remaining   int     `json:"remaining"`
}
