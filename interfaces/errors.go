package interfaces

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks malformed or missing input. No state is mutated.
	ErrValidation = errors.New("validation error")

	// ErrVerificationFailed marks a signature that did not verify. No state is mutated.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrPersistence marks a failed durable write. Callers may retry; no
	// partial state is committed.
	ErrPersistence = errors.New("persistence error")

	// ErrForbidden marks an operation the caller or deployment does not permit.
	ErrForbidden = errors.New("forbidden")

	// ErrLocked is returned when the per-account lock could not be acquired.
	ErrLocked = errors.New("account is locked by another request")
)
