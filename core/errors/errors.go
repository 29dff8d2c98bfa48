package errors

import stderrors "errors"

// Error kinds shared by every engine. Concrete failures wrap exactly one of
// these so callers can branch with errors.Is.
var (
	ErrUnauthorized      = stderrors.New("unauthorized")
	ErrInvalidOrderState = stderrors.New("invalid order status")
	ErrInvalidAmount     = stderrors.New("invalid amount")
	ErrOutOfRange        = stderrors.New("out of range")
	ErrNotWhitelisted    = stderrors.New("not whitelisted")
	ErrBlacklisted       = stderrors.New("blacklisted")
	ErrExpired           = stderrors.New("expired")
	ErrTooEarly          = stderrors.New("too early")
	ErrMismatch          = stderrors.New("mismatch")
	ErrPaused            = stderrors.New("paused")
)

var kinds = []error{
	ErrUnauthorized,
	ErrInvalidOrderState,
	ErrInvalidAmount,
	ErrOutOfRange,
	ErrNotWhitelisted,
	ErrBlacklisted,
	ErrExpired,
	ErrTooEarly,
	ErrMismatch,
	ErrPaused,
}

// Kind returns the category err belongs to, or nil when it wraps none.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if stderrors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName returns a short label for err's category, "internal" when it has
// none. Used as a metrics label.
func KindName(err error) string {
	switch Kind(err) {
	case ErrUnauthorized:
		return "unauthorized"
	case ErrInvalidOrderState:
		return "invalid_order_state"
	case ErrInvalidAmount:
		return "invalid_amount"
	case ErrOutOfRange:
		return "out_of_range"
	case ErrNotWhitelisted:
		return "not_whitelisted"
	case ErrBlacklisted:
		return "blacklisted"
	case ErrExpired:
		return "expired"
	case ErrTooEarly:
		return "too_early"
	case ErrMismatch:
		return "mismatch"
	case ErrPaused:
		return "paused"
	default:
		return "internal"
	}
}
