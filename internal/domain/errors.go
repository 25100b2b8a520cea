package domain

import (
	"errors"
	"fmt"
)

// Kind sentinels. Every rejection returned by the ledger components matches
// exactly one of the first four via errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrAuthorization       = errors.New("authorization error")
	ErrState               = errors.New("state error")
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")
	ErrReadOnly     = errors.New("read-only transaction")
)

// ErrorKind classifies a ledger rejection.
type ErrorKind uint8

const (
	KindValidation ErrorKind = iota + 1
	KindAuthorization
	KindState
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a typed ledger rejection. errors.Is matches it against its kind
// sentinel and against any *Error with the same Code.
type Error struct {
	Kind     ErrorKind
	Code     string
	Message  string
	notFound bool
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is implements errors.Is matching.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrAuthorization:
		return e.Kind == KindAuthorization
	case ErrState:
		return e.Kind == KindState
	case ErrConcurrencyConflict:
		return e.Kind == KindConflict
	case ErrNotFound:
		return e.notFound
	}
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Withf returns a copy of e carrying a formatted detail message.
func (e *Error) Withf(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func newError(kind ErrorKind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// Validation rejections.
var (
	ErrInvalidPrice    = newError(KindValidation, "invalid_price")
	ErrInvalidAmount   = newError(KindValidation, "invalid_amount")
	ErrInvalidDuration = newError(KindValidation, "invalid_duration")
	ErrInvalidAddress  = newError(KindValidation, "invalid_address")
	ErrInvalidAsset    = newError(KindValidation, "invalid_asset")
	ErrPaymentMismatch = newError(KindValidation, "payment_mismatch")
	ErrBidTooLow       = newError(KindValidation, "bid_too_low")
	ErrOverflow        = newError(KindValidation, "amount_overflow")
)

// Authorization rejections.
var (
	ErrNotOwner       = newError(KindAuthorization, "not_owner")
	ErrNotSeller      = newError(KindAuthorization, "not_seller")
	ErrNoCustodyGrant = newError(KindAuthorization, "missing_custody_grant")
)

// State rejections.
var (
	ErrListingNotFound     = &Error{Kind: KindState, Code: "listing_not_found", notFound: true}
	ErrAuctionNotFound     = &Error{Kind: KindState, Code: "auction_not_found", notFound: true}
	ErrTokenNotFound       = &Error{Kind: KindState, Code: "token_not_found", notFound: true}
	ErrAlreadySold         = newError(KindState, "already_sold")
	ErrListingCancelled    = newError(KindState, "listing_cancelled")
	ErrAuctionExists       = newError(KindState, "auction_exists")
	ErrAuctionEnded        = newError(KindState, "auction_ended")
	ErrAuctionNotEnded     = newError(KindState, "auction_not_ended")
	ErrAlreadySettled      = newError(KindState, "already_settled")
	ErrInsufficientBalance = newError(KindState, "insufficient_balance")
	ErrNothingStaked       = newError(KindState, "nothing_staked")
)

// ErrLockTimeout is returned when an intent could not obtain exclusive access
// to its entity before the configured wait elapsed. Callers may retry.
var ErrLockTimeout = newError(KindConflict, "lock_timeout")

// ErrSerialization is returned when the backing store aborted the intent
// because of a conflicting concurrent transaction. Callers may retry.
var ErrSerialization = newError(KindConflict, "serialization_failure")

// KindOf returns the kind of a ledger rejection, or 0 if err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf returns the stable code of a ledger rejection, or "" if err is not one.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
