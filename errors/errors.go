package errors

import "errors"

// Sentinel errors for every failure the service layers surface to the
// request boundary. Wrap with fmt.Errorf("...: %w", ...) so callers
// match with errors.Is while keeping the local context.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("incorrect password provided")
	ErrDuplicateEmail     = errors.New("email already exists")

	ErrExpiredToken   = errors.New("token expired")
	ErrMalformedToken = errors.New("token malformed")
	ErrUnknownUser    = errors.New("token principal unknown")

	ErrExpenseNotFound  = errors.New("expense not found")
	ErrExpenseOwnership = errors.New("expense does not belong to user")

	// ErrAggregateConsistency means an aggregate row is missing where
	// the running-total invariant requires one to exist. The stored
	// data has already diverged; the triggering operation must fail
	// rather than fabricate a zero row.
	ErrAggregateConsistency = errors.New("aggregate row missing for month with expenses")

	ErrInvalidInput = errors.New("invalid input")
)
