// Package apperrors groups the sentinel error kinds described by the
// core's error-handling design: one var per kind, propagated with
// fmt.Errorf("%s: %w", op, err) wrapping at each layer boundary.
package apperrors

import "errors"

var (
	// ErrValidation marks a malformed request caught before matching;
	// the ingress boundary turns this into a REJECTED order and never
	// forwards it to the coordinator.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a referenced Order (or book row) absent from the
	// primary store.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOrderType means no matching strategy exists for the
	// order's type.
	ErrInvalidOrderType = errors.New("invalid order type")

	// ErrVersionConflict means an order_books conditional update affected
	// zero rows; retryable inside the coordinator.
	ErrVersionConflict = errors.New("version conflict")

	// ErrPersistenceConflict is the terminal failure surfaced once
	// ErrVersionConflict retries are exhausted.
	ErrPersistenceConflict = errors.New("persistence conflict: retries exhausted")

	// ErrTransientPersistence marks a retryable infrastructure failure
	// (connection reset, timeout) distinct from a version conflict.
	ErrTransientPersistence = errors.New("transient persistence error")

	// ErrUpstreamUnavailable means the coordinator could not load a
	// symbol's book from the primary store.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrPublish marks an egress publish failure; logged, never reverses
	// a durable commit.
	ErrPublish = errors.New("publish error")

	// ErrDuplicateMessage is suppressed at ingress: the message_id was
	// already recorded processed.
	ErrDuplicateMessage = errors.New("duplicate message")

	// ErrTerminal marks a failure that has exhausted all retry policy and
	// routes to a dead-letter stream.
	ErrTerminal = errors.New("terminal failure")

	// ErrAlreadyTerminal is returned by cancellation when the target
	// order is already CANCELLED, FILLED, or REJECTED.
	ErrAlreadyTerminal = errors.New("order already in a terminal state")
)
