package service

import (
	"errors"
	"fmt"
)

// Error families. Callers match on these with errors.Is; the transport maps
// them to status codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidInput = errors.New("invalid input")
)

var (
	ErrSessionNotFound  = fmt.Errorf("chat session %w", ErrNotFound)
	ErrMessageNotFound  = fmt.Errorf("chat message %w", ErrNotFound)
	ErrOperatorNotFound = fmt.Errorf("chat operator %w", ErrNotFound)

	ErrSessionClosed  = fmt.Errorf("chat session is archived: %w", ErrInvalidState)
	ErrOperatorExists = fmt.Errorf("chat operator already registered: %w", ErrInvalidState)
)

func invalidInput(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}
