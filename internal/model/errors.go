package model

import (
	"errors"
	"fmt"
)

// Error kinds. Callers wrap them with fmt.Errorf("...: %w", ErrX) and match
// with errors.Is.
var (
	ErrValidation         = errors.New("validation error")
	ErrBackendUnavailable = errors.New("remote backend unavailable")
	ErrFatalStorage       = errors.New("storage failure")
	ErrExtractionFailed   = errors.New("extraction failed")
	ErrGradingFailed      = errors.New("grading failed")
	ErrConversationFailed = errors.New("conversation failed")
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("operation not allowed in current state")
	ErrNoUser             = errors.New("no authenticated user")
)

// Invalid returns an ErrValidation with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
