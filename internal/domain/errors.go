package domain

import "errors"

// Core error taxonomy. Selection, freezing and dispute paths surface
// these synchronously; webhook delivery failures are recorded in
// CallbackHistory instead and never wrap into the settlement result.
var (
	// ErrValidation marks malformed or out-of-range requests rejected
	// before any state mutation.
	ErrValidation = errors.New("validation error")

	// ErrMethodUnavailable means the merchant has no enabled method
	// matching the request.
	ErrMethodUnavailable = errors.New("method unavailable")

	// ErrAmountOutOfRange means the amount is outside the method-level
	// payin/payout bounds.
	ErrAmountOutOfRange = errors.New("amount out of range")

	// ErrNoCapacity means no eligible requisite or trader could take the
	// operation right now. Safe no-op: nothing was reserved.
	ErrNoCapacity = errors.New("no capacity")

	// ErrConflict marks duplicate reservation attempts (orderId replay,
	// payout already taken). The caller may retry with new input.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyResolved is returned when mutating a dispute or a
	// transaction/payout that already reached a terminal state.
	ErrAlreadyResolved = errors.New("already resolved")

	// ErrInsufficientBalance means the trader's unfrozen balance cannot
	// cover the required freeze.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotFound is the generic missing-entity error for the store
	// boundary.
	ErrNotFound = errors.New("not found")
)
