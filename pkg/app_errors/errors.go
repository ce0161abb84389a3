package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInternalServerError = errors.New("internal server error")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")

	ErrEventNotFound     = errors.New("event not found")
	ErrVariationNotFound = errors.New("variation not found")
	ErrRuleNotFound      = errors.New("guest list rule not found")
	ErrNotStaff          = errors.New("caller is not assigned to this event")

	// 發票 / 配額
	ErrOversold                = errors.New("variation sold out")
	ErrQuotaExceeded           = errors.New("promoter quota exceeded")
	ErrDocumentLimitExceeded   = errors.New("document redemption limit exceeded")
	ErrNominationLimitExceeded = errors.New("guest list nomination limit exceeded")
	ErrSaleWindowClosed        = errors.New("batch sale window closed")

	// 驗票
	ErrInvalidToken      = errors.New("invalid redemption token")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrAlreadyUsed       = errors.New("ticket already used")
	ErrCancelled         = errors.New("ticket cancelled")
	ErrTransferPending   = errors.New("ticket transfer pending")
	ErrAlreadyClaimed    = errors.New("ticket already claimed")
	ErrNotTicketOwner    = errors.New("caller does not own this ticket")
	ErrInvalidTransition = errors.New("invalid ticket status transition")

	ErrGuestNotFound     = errors.New("guest entry not found")
	ErrAlreadyCheckedIn  = errors.New("guest already checked in")
	ErrHashCollision     = errors.New("redemption hash collision")
	ErrTransientStore    = errors.New("transient store error")
	ErrAuditUnavailable  = errors.New("audit sink unavailable")
	ErrInventoryNotWarm  = errors.New("inventory not warmed up")
)

// LimitError reports which cap rejected a request. It unwraps to one of the
// limit sentinels so callers keep using errors.Is.
type LimitError struct {
	Err     error
	Limit   int
	Current int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s (limit %d, current %d)", e.Err.Error(), e.Limit, e.Current)
}

func (e *LimitError) Unwrap() error {
	return e.Err
}

func NewLimitError(err error, limit, current int) error {
	return &LimitError{Err: err, Limit: limit, Current: current}
}

// Transient marks an I/O failure of the backing store as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransientStore, err)
}
