package model

import "time"

// GuestEntry 名單上的賓客；以姓名在門口核對，沒有 QR code
type GuestEntry struct {
	ID              string     `json:"id" db:"id"`
	EventID         string     `json:"event_id" db:"event_id"`
	RuleID          string     `json:"rule_id" db:"rule_id"`
	Name            string     `json:"name" db:"name"`
	AddedBy         string     `json:"added_by" db:"added_by"`
	CheckedIn       bool       `json:"checked_in" db:"checked_in"`
	CheckedInAt     *time.Time `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CheckedInBy     *string    `json:"checked_in_by,omitempty" db:"checked_in_by"`
	NotifyOnArrival bool       `json:"notify_on_arrival" db:"notify_on_arrival"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

type AddGuestsRequest struct {
	RuleID string   `json:"rule_id" binding:"required"`
	Names  []string `json:"names" binding:"required,min=1"`
}

type PriorityRequest struct {
	NotifyOnArrival *bool `json:"notify_on_arrival" binding:"required"`
}

// GuestView 門口名單顯示用，附帶規則當下狀態
type GuestView struct {
	GuestEntry
	RuleStatus  RuleStatus  `json:"rule_status"`
	BenefitType BenefitType `json:"benefit_type"`
	Deadline    *string     `json:"deadline,omitempty"`
}
