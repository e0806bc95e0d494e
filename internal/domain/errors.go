package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when an intake request is malformed
	ErrValidation = errors.New("validation failed")

	// ErrChannelClosed is returned when writing to a notification channel that is no longer open
	ErrChannelClosed = errors.New("notification channel closed")

	// ErrDispatcherClosed is returned when enqueuing after the dispatcher has been shut down
	ErrDispatcherClosed = errors.New("dispatcher is shut down")

	// ErrJobNotFound is returned when a job cannot be found in the journal
	ErrJobNotFound = errors.New("job not found")

	// ErrWorkerTimeout is returned when the worker neither accepts nor completes a job in time
	ErrWorkerTimeout = errors.New("worker timed out")
)

// WorkerError is a failure reported by the scraping worker itself
type WorkerError struct {
	StatusCode int
	Message    string
}

func (e *WorkerError) Error() string {
	if e.StatusCode == 0 {
		return "worker error: " + e.Message
	}
	return fmt.Sprintf("worker error (HTTP %d): %s", e.StatusCode, e.Message)
}

// NewValidationError wraps a human readable reason with ErrValidation
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
