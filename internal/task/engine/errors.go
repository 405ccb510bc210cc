package engine

import (
	"errors"
	"fmt"
	"time"

	rtsup "cronpump/internal/runtime/supervisor"
)

var (
	ErrStopped  = errors.New("dispatcher not running")
	ErrStopping = errors.New("dispatcher stopping")
	ErrNoTask   = errors.New("match has no task")
)

// PanicError is a panic recovered from a task, with its stack.
type PanicError = rtsup.PanicError

// ExecutionError is what the unhandled-error hook receives when a dispatched
// task panics.
type ExecutionError struct {
	Rule      string
	MatchID   int64
	Scheduled time.Time
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution %d of %q scheduled %s: %v", e.MatchID, e.Rule, e.Scheduled.Format(time.RFC3339), e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
