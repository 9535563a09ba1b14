package models

import "errors"

var (
	// ErrConfiguration indicates an unknown stage mapping or a scan verdict
	// arriving while scanning is administratively disabled. Fatal, not retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrConcurrencyConflict indicates a stale resource version on commit.
	// Recoverable by reloading the request and retrying.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrNotFound indicates the referenced request does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTransferIncomplete indicates a partial object copy. The source is
	// left untouched so the whole move can be retried.
	ErrTransferIncomplete = errors.New("transfer incomplete")

	// ErrInvalidState indicates an event that is not valid for the request's
	// current status.
	ErrInvalidState = errors.New("invalid state")
)
