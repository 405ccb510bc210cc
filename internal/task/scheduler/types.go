package scheduler

import (
	"errors"
	"fmt"
	"time"

	"cronpump/internal/task/engine"
	"cronpump/internal/task/rule"
)

var ErrNotStopped = errors.New("scheduler is not stopped")

// Config controls the evaluation loop.
type Config struct {
	// PreviewRuns is how many upcoming fire times are logged when a schedule
	// is registered and reported by Snapshot.
	PreviewRuns int
	// PreviewHorizon bounds the search for upcoming fire times.
	PreviewHorizon time.Duration
}

func (c Config) withDefaults() Config {
	if c.PreviewRuns <= 0 {
		c.PreviewRuns = 3
	}
	if c.PreviewHorizon <= 0 {
		c.PreviewHorizon = 366 * 24 * time.Hour
	}
	return c
}

// State of the runtime. Transitions only move forward through the cycle
// Stopped, Running, StopRequested, StoppingGracefully, Stopped.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopRequested
	StateStoppingGracefully
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop_requested"
	case StateStoppingGracefully:
		return "stopping_gracefully"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// EvaluationError reports a rule that could not be evaluated for one tick.
// The tick continues with the remaining rules.
type EvaluationError struct {
	Rule string
	At   time.Time
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %q at %s: %v", e.Rule, e.At.Format(time.RFC3339), e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// ScheduleInfo describes one registered rule.
type ScheduleInfo struct {
	rule.Info
	Next []time.Time `json:"next,omitempty"`
}

// StateEvent is the payload of "scheduler.state" bus events.
type StateEvent struct {
	From State `json:"from"`
	To   State `json:"to"`
}

// ScheduleEvent is the payload of "schedule.*" bus events.
type ScheduleEvent struct {
	Name string `json:"name"`
}

type Snapshot struct {
	State     State           `json:"state"`
	Next      time.Time       `json:"next,omitempty"`
	Ticks     uint64          `json:"ticks"`
	Schedules []ScheduleInfo  `json:"schedules"`
	Engine    engine.Snapshot `json:"engine"`
}
