package forensics

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrPayloadTooLarge       = errors.New("payload too large")
	ErrAnalysisFailed        = errors.New("analysis failed")
	ErrResourceCleanupFailed = errors.New("resource cleanup failed")
)

// Error carries an error kind, a user-facing detail and the underlying cause.
type Error struct {
	Kind   error
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// InvalidInput returns an ErrInvalidInput error with the given detail.
func InvalidInput(detail string) error {
	return &Error{Kind: ErrInvalidInput, Detail: detail}
}

// PayloadTooLarge returns an ErrPayloadTooLarge error with the given detail.
func PayloadTooLarge(detail string) error {
	return &Error{Kind: ErrPayloadTooLarge, Detail: detail}
}

// AnalysisFailed wraps an extractor or analyzer fault.
func AnalysisFailed(cause error) error {
	return &Error{
		Kind:   ErrAnalysisFailed,
		Detail: fmt.Sprintf("Analysis failed: %v", cause),
		Err:    cause,
	}
}

// CleanupFailed wraps a temp-file removal failure. Only ever logged.
func CleanupFailed(path string, cause error) error {
	return &Error{
		Kind:   ErrResourceCleanupFailed,
		Detail: fmt.Sprintf("failed to remove %s: %v", path, cause),
		Err:    cause,
	}
}

// DetailOf returns the user-facing message for err.
func DetailOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Detail != "" {
		return fe.Detail
	}
	return err.Error()
}
