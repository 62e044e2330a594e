package domain

import "errors"

// Domain errors
var (
	// Validation errors
	ErrInvalidActivityID     = errors.New("invalid activity id")
	ErrInvalidBookingID      = errors.New("invalid booking id")
	ErrInvalidUserID         = errors.New("invalid user id")
	ErrInvalidNumberOfPeople = errors.New("number of people must be at least one")
	ErrInvalidTotalPrice     = errors.New("total price cannot be negative")
	ErrInvalidSlotCount      = errors.New("slot count must be greater than zero")
	ErrInvalidBookingDate    = errors.New("invalid booking date")

	// Not found errors
	ErrActivityNotFound = errors.New("activity not found")
	ErrBookingNotFound  = errors.New("booking not found")

	// Business rejections
	ErrInsufficientSlots = errors.New("insufficient slots available")
	ErrNotCancelable     = errors.New("booking cannot be canceled in its current state")

	// State machine errors
	ErrInvalidTransition = errors.New("invalid state transition")

	// Security errors
	ErrForbidden        = errors.New("caller may not act on this booking")
	ErrSignatureInvalid = errors.New("webhook signature verification failed")

	// Payload errors
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// Idempotency
	ErrDuplicateEvent       = errors.New("webhook event already processed")
	ErrDuplicateTransaction = errors.New("payment transaction already recorded")
	ErrBookingAlreadyPaid   = errors.New("booking already has a paid payment")
)

// IsValidationError reports whether err was caused by bad caller input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidActivityID) ||
		errors.Is(err, ErrInvalidBookingID) ||
		errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidNumberOfPeople) ||
		errors.Is(err, ErrInvalidTotalPrice) ||
		errors.Is(err, ErrInvalidSlotCount) ||
		errors.Is(err, ErrInvalidBookingDate)
}

// IsBusinessError reports whether err is an expected outcome that a retry
// cannot change.
func IsBusinessError(err error) bool {
	return IsValidationError(err) ||
		errors.Is(err, ErrActivityNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrInsufficientSlots) ||
		errors.Is(err, ErrNotCancelable) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrMalformedPayload)
}
