package rule

import (
	"context"
	"time"
)

// Task is the unit of work attached to a rule.
//
// Run reports success with true. A false return is an ordinary failure and is
// not treated as an error; panics are recovered by the dispatcher. ctx is
// cancelled when the runtime stops, and long-running work should watch it.
type Task interface {
	Run(ctx context.Context, m *Match) bool
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func(ctx context.Context, m *Match) bool

func (f TaskFunc) Run(ctx context.Context, m *Match) bool { return f(ctx, m) }

// Runtime is the subset of the scheduler that running work may call back into.
type Runtime interface {
	AddSchedule(r *Rule) bool
	UpdateSchedule(r *Rule)
	DeleteSchedule(name string) bool
}

// Match describes one dispatched execution.
type Match struct {
	// ID is unique and increasing for the lifetime of the process.
	ID int64
	// Scheduled is the evaluated second (UTC).
	Scheduled time.Time
	// Signaled is when the execution was started.
	Signaled time.Time

	Rule    *Rule
	Runtime Runtime
}
