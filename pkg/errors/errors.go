package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUsage          = errors.New("usage error")
	ErrConfig         = errors.New("invalid configuration")
	ErrFormat         = errors.New("malformed test case")
	ErrTransport      = errors.New("search transport failure")
	ErrResponseFormat = errors.New("unexpected search response")
	ErrTimeout        = errors.New("operation timed out")
	ErrInternal       = errors.New("internal error")
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

type AppError struct {
	Err      error
	Message  string
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, exitCode int, message string) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  message,
		ExitCode: exitCode,
	}
}

func Newf(sentinel error, exitCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  fmt.Sprintf(format, args...),
		ExitCode: exitCode,
	}
}

// ExitCode maps an error returned by a command to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}

	switch {
	case errors.Is(err, ErrUsage), errors.Is(err, ErrConfig):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// IsPerQuery reports whether err only affects a single test case. Such errors
// cost the case its score but never stop the run.
func IsPerQuery(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrResponseFormat) ||
		errors.Is(err, ErrTimeout)
}
