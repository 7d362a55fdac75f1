// Stratd error tools
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// Sentinel errors for the orchestrator taxonomy. Callers branch on these
// with Is after any number of Wrap calls.
var (
	ErrAllocationConflict = errors.New("allocation conflict")
	ErrUnknownStrategy    = errors.New("unknown strategy")
	ErrStalePrice         = errors.New("stale price")
	ErrBrokerRejection    = errors.New("broker rejection")
	ErrAdapterTimeout     = errors.New("adapter timeout")
	ErrTrackerFailed      = errors.New("tracker failed")
)

// Is reports whether any error in err's chain matches target.
// It's a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// WrapE wraps the original error with a static error message.
// It returns a new error that includes both the static error and the original error.
func WrapE(staticErr, originalErr error) error {
	_, file, line, _ := runtime.Caller(1)
	return fmt.Errorf("%s:%d: %w: %w", file, line, staticErr, originalErr)
}

func Wrap(err error, msg string) error {
	_, file, line, _ := runtime.Caller(1)
	return fmt.Errorf("%s:%d: %w: %s", file, line, err, msg)
}

// Wrapf wraps an error with a formatted message.
// It returns a new error that includes the original error and the formatted message.
func Wrapf(err error, format string, args ...any) error {
	_, file, line, _ := runtime.Caller(1)
	return fmt.Errorf("%s:%d: %w: %s", file, line, err, fmt.Sprintf(format, args...))
}

// Wrapef wraps the original error with a static error message and a formatted message.
// It returns a new error that includes the static error, the formatted message, and the original error.
func Wrapef(staticErr, originalErr error, format string, args ...any) error {
	_, file, line, _ := runtime.Caller(1)
	return fmt.Errorf("%s:%d: %w: %w: %s", file, line, staticErr, originalErr, fmt.Sprintf(format, args...))
}

// New creates a new error with the given text.
// It's a convenience wrapper around errors.New.
func New(text string) error {
	_, file, line, _ := runtime.Caller(1)
	return fmt.Errorf("%s:%d: %s", file, line, text)
}

// Newf creates a new error with a formatted message.
// It's a convenience wrapper around fmt.Errorf.
func Newf(format string, args ...any) error {
	_, file, line, _ := runtime.Caller(1)
	return fmt.Errorf("%s:%d: %s", file, line, fmt.Sprintf(format, args...))
}
