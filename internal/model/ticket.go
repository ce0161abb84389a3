package model

import (
	"strings"
	"time"
	"unicode"
)

// TicketStatus 票券狀態類型
type TicketStatus string

const (
	TicketStatusActive          TicketStatus = "active"
	TicketStatusUsed            TicketStatus = "used"
	TicketStatusCancelled       TicketStatus = "cancelled"
	TicketStatusTransferPending TicketStatus = "transfer_pending"
)

// IsValid 驗證狀態是否有效
func (s TicketStatus) IsValid() bool {
	switch s {
	case TicketStatusActive, TicketStatusUsed, TicketStatusCancelled, TicketStatusTransferPending:
		return true
	}
	return false
}

// IsTerminal used / cancelled 之後不可再變更
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusUsed || s == TicketStatusCancelled
}

// CanTransitionTo 檢查是否可以轉換到目標狀態
func (s TicketStatus) CanTransitionTo(target TicketStatus) bool {
	transitions := map[TicketStatus][]TicketStatus{
		TicketStatusActive:          {TicketStatusUsed, TicketStatusCancelled, TicketStatusTransferPending},
		TicketStatusTransferPending: {TicketStatusActive, TicketStatusCancelled},
		TicketStatusUsed:            {},
		TicketStatusCancelled:       {},
	}

	allowed, ok := transitions[s]
	if !ok {
		return false
	}

	for _, status := range allowed {
		if status == target {
			return true
		}
	}
	return false
}

type TicketSource string

const (
	SourcePurchase      TicketSource = "purchase"
	SourceBenefit       TicketSource = "benefit"
	SourceGift          TicketSource = "gift"
	SourceComplimentary TicketSource = "complimentary"
)

func (s TicketSource) IsValid() bool {
	switch s {
	case SourcePurchase, SourceBenefit, SourceGift, SourceComplimentary:
		return true
	}
	return false
}

// Ticket 票券模型
type Ticket struct {
	ID                  string       `json:"id" db:"id"`
	UserID              *string      `json:"user_id,omitempty" db:"user_id"`
	EventID             string       `json:"event_id" db:"event_id"`
	VariationID         *string      `json:"variation_id,omitempty" db:"variation_id"`
	Status              TicketStatus `json:"status" db:"status"`
	Source              TicketSource `json:"source" db:"source"`
	Hash                string       `json:"hash" db:"hash"`
	PromoterID          *string      `json:"promoter_id,omitempty" db:"promoter_id"`
	HolderName          *string      `json:"holder_name,omitempty" db:"holder_name"`
	HolderDocument      *string      `json:"holder_document,omitempty" db:"holder_document"`
	Price               float64      `json:"price" db:"price"`
	TransferTo          *string      `json:"transfer_to,omitempty" db:"transfer_to"`
	TransferRequestedAt *time.Time   `json:"transfer_requested_at,omitempty" db:"transfer_requested_at"`
	UsedAt              *time.Time   `json:"used_at,omitempty" db:"used_at"`
	CancelledAt         *time.Time   `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt           time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" db:"updated_at"`
}

// IsClaimed 是否已綁定持有人
func (t *Ticket) IsClaimed() bool {
	return t.HolderName != nil && t.HolderDocument != nil
}

// NormalizeDocument keeps letters and digits only, upper-cased, so
// "123.456.789-00" and "12345678900" count as the same document.
func NormalizeDocument(doc string) string {
	var b strings.Builder
	for _, r := range doc {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// IssueTicketRequest 發票請求；PromoterID 由登入身分決定，不接受 client 傳入
type IssueTicketRequest struct {
	EventID        string       `json:"-"`
	VariationID    *string      `json:"variation_id"`
	Source         TicketSource `json:"source" binding:"required"`
	UserID         *string      `json:"user_id"`
	HolderName     *string      `json:"holder_name"`
	HolderDocument *string      `json:"holder_document"`
}

type ClaimTicketRequest struct {
	Name     string `json:"name" binding:"required"`
	Document string `json:"document" binding:"required"`
}

type ValidateTicketRequest struct {
	Token string `json:"token" binding:"required"`
}

type TransferTicketRequest struct {
	RecipientUserID *string `json:"recipient_user_id"`
}

// TicketResponse 驗票時回傳給門口人員的資訊，只包含該票本身
type TicketResponse struct {
	ID             string       `json:"id"`
	EventID        string       `json:"event_id"`
	VariationID    *string      `json:"variation_id,omitempty"`
	Status         TicketStatus `json:"status"`
	Source         TicketSource `json:"source"`
	Token          string       `json:"token"`
	HolderName     *string      `json:"holder_name,omitempty"`
	HolderDocument *string      `json:"holder_document,omitempty"`
	UsedAt         *time.Time   `json:"used_at,omitempty"`
}

// TicketSummary 票券列表用；不含 hash 與證件，避免從列表組出可用的 token
type TicketSummary struct {
	ID          string       `json:"id"`
	VariationID *string      `json:"variation_id,omitempty"`
	Status      TicketStatus `json:"status"`
	Source      TicketSource `json:"source"`
	PromoterID  *string      `json:"promoter_id,omitempty"`
	HolderName  *string      `json:"holder_name,omitempty"`
	Claimed     bool         `json:"claimed"`
	UsedAt      *time.Time   `json:"used_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
