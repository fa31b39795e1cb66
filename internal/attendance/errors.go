package attendance

import "errors"

var (
	// ErrSyncUnavailable is returned when the remote authority cannot be reached
	// or the record set cannot be read from it.
	ErrSyncUnavailable = errors.New("attendance: sync unavailable")
	// ErrWriteRejected is returned when the authority refuses a create or update.
	ErrWriteRejected = errors.New("attendance: write rejected")
	// ErrNotFound is returned when a local identity is absent from the mirror.
	ErrNotFound = errors.New("attendance: record not found")
	// ErrInvalidRecord is returned by Validate.
	ErrInvalidRecord = errors.New("attendance: invalid record")
)
