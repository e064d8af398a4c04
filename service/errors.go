package service

import (
	"errors"
)

// Kind groups errors by how callers should react to them
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindForbidden
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindTransient:
		return "transient"
	}
	return "unknown"
}

// kindError is a sentinel carrying its Kind
type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func newError(kind Kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// KindOf returns the Kind of the first sentinel found in err's chain
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

var (
	ErrInvalidStake          = newError(KindValidation, "stake is below the minimum")
	ErrInvalidAmount         = newError(KindValidation, "amount must be positive")
	ErrMissingIdempotencyKey = newError(KindValidation, "idempotency key is required")
	ErrUnsupportedRail       = newError(KindValidation, "unsupported rail")
	ErrInvalidRequest        = newError(KindValidation, "invalid request")

	ErrInsufficientBalance = newError(KindConflict, "insufficient balance")
	ErrInsufficientFunds   = newError(KindConflict, "insufficient funds")
	ErrAlreadySettled      = newError(KindConflict, "wager is already settled")
	ErrInvalidState        = newError(KindConflict, "wager is not in a valid state for this operation")
	ErrInvalidOperation    = newError(KindConflict, "operation not allowed")
	ErrCapacityExceeded    = newError(KindConflict, "wager already has two players")
	ErrClaimPending        = newError(KindConflict, "a prize claim is already pending")
	ErrInvalidUsername     = newError(KindConflict, "invalid username")
	ErrUsernameTaken       = newError(KindConflict, "username is already taken")
	ErrNoEligibleAdmin     = newError(KindConflict, "no eligible admin for category")
	ErrDuplicateReference  = newError(KindConflict, "reference already recorded")
	ErrTransactionFinal    = newError(KindConflict, "transaction is no longer pending")

	ErrNotFound            = newError(KindNotFound, "not found")
	ErrUserNotFound        = newError(KindNotFound, "user not found")
	ErrTransactionNotFound = newError(KindNotFound, "transaction not found")

	ErrForbidden = newError(KindForbidden, "forbidden")

	ErrRailUnavailable = newError(KindTransient, "rail unavailable")
)
