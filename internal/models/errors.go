package models

import "errors"

// Sentinel errors for the mutation surface. Handlers and clients match them
// with errors.Is; specific causes are attached by wrapping with %w.
var (
	// ErrValidation marks malformed task fields. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers both "no such task" and "task belongs to someone
	// else" — the two must be indistinguishable to the caller.
	ErrNotFound = errors.New("task not found")

	// ErrConflict marks a concurrent reorder collision. The service retries
	// these internally a bounded number of times before surfacing one.
	ErrConflict = errors.New("conflicting concurrent update")

	// ErrUnauthorized marks a missing, invalid or expired credential.
	ErrUnauthorized = errors.New("not authorized")
)
