package store

import "errors"

// Standard task store errors. The REST facade and the CLI check for these
// and map them to status codes and exit codes.
var (
	// ErrNotReady indicates the task has no stored result yet
	// (it is unknown, queued, or still in progress).
	//
	// HTTP mapping: 404 on result fetches.
	ErrNotReady = errors.New("task not ready")

	// ErrInvalidState indicates the task is in a state that does not
	// permit the operation (e.g. storing a result for a task nobody
	// claimed).
	//
	// HTTP mapping: 409 Conflict.
	ErrInvalidState = errors.New("invalid task state")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store is closed")
)
