package model

import "time"

type AuditCategory string

const (
	AuditCategoryTicket    AuditCategory = "ticket"
	AuditCategoryGuest     AuditCategory = "guest"
	AuditCategoryInventory AuditCategory = "inventory"
)

// AuditRecord 只增不改的稽核紀錄；Actor 一律由伺服器端身分解析
type AuditRecord struct {
	ID        string         `json:"id" db:"id"`
	Action    string         `json:"action" db:"action"`
	Category  AuditCategory  `json:"category" db:"category"`
	Actor     string         `json:"actor" db:"actor"`
	TargetID  string         `json:"target_id" db:"target_id"`
	Success   bool           `json:"success" db:"success"`
	Reason    string         `json:"reason,omitempty" db:"reason"`
	Details   map[string]any `json:"details,omitempty" db:"details"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
