package taskqueue

import (
	"errors"
	"fmt"

	"github.com/iota-uz/loan-sdk/pkg/serrors"
)

var (
	ErrInvalidConfig = serrors.NewError("TASKQUEUE_INVALID_CONFIG", "invalid task queue configuration", "")
	ErrQueueFull     = serrors.NewError("TASKQUEUE_FULL", "task queue is full", "")
	ErrQueueClosed   = serrors.NewError("TASKQUEUE_CLOSED", "task queue is closed", "")
	ErrUnknownTopic  = serrors.NewError("TASKQUEUE_UNKNOWN_TOPIC", "no handler for topic", "")
)

func invalidConfig(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidConfig}, args...)...)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as never retryable regardless of policy.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
