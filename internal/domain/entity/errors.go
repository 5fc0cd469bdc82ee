package entity

import "errors"

var (
	// ErrValidation is returned for malformed submit/reject input
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when an expense or attachment id is unknown
	ErrNotFound = errors.New("not found")

	// ErrTransition is returned when a status change is not permitted from the current status
	ErrTransition = errors.New("illegal status transition")

	// ErrConflict is returned when the record changed between read and write
	ErrConflict = errors.New("concurrent modification")

	// ErrExtraction marks a failure reported by or while reaching the extraction service
	ErrExtraction = errors.New("extraction failed")

	// ErrStaleCallback is returned for duplicate or out-of-order extraction completions
	ErrStaleCallback = errors.New("stale extraction callback")

	// ErrPersistence wraps store I/O failures
	ErrPersistence = errors.New("persistence failure")
)
