package contract

import "errors"

var (
	// ErrRecordNotFound is returned by mutating calls that reference a missing row.
	// Finders return (nil, nil) instead.
	ErrRecordNotFound = errors.New("record not found")

	// ErrActiveSessionExists is returned by ChatSessionRepository.Create when the
	// visitor already owns a non-archived session.
	ErrActiveSessionExists = errors.New("visitor already has an active chat session")

	ErrDuplicateRecord = errors.New("record already exists")
)
