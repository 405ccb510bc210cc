package engine

import "time"

// Config controls the dispatcher.
type Config struct {
	// HistorySize bounds the ring of recent executions kept for diagnostics.
	HistorySize int

	// ErrorLogEvery and ErrorLogBurst throttle the default unhandled-error
	// hook so a task panicking every second cannot flood the log.
	ErrorLogEvery time.Duration
	ErrorLogBurst int
}

func (c Config) withDefaults() Config {
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	if c.ErrorLogEvery <= 0 {
		c.ErrorLogEvery = time.Second
	}
	if c.ErrorLogBurst <= 0 {
		c.ErrorLogBurst = 5
	}
	return c
}

// Result of one execution.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPanic   Result = "panic"
)

// Event types published on the bus.
const (
	EventStarted  = "task.started"
	EventFinished = "task.finished"
	EventFailed   = "task.failed"
	EventPanicked = "task.panic"
)

type HistoryItem struct {
	MatchID   int64         `json:"match_id"`
	Rule      string        `json:"rule"`
	Scheduled time.Time     `json:"scheduled"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Result    Result        `json:"result"`
	Error     string        `json:"error,omitempty"`
}

// TaskEvent is the payload of every task.* bus event.
type TaskEvent struct {
	MatchID   int64         `json:"match_id"`
	Rule      string        `json:"rule"`
	Scheduled time.Time     `json:"scheduled"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Result    Result        `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Running    bool          `json:"running"`
	InFlight   int64         `json:"in_flight"`
	Dispatched uint64        `json:"dispatched"`
	Succeeded  uint64        `json:"succeeded"`
	Failed     uint64        `json:"failed"`
	Panicked   uint64        `json:"panicked"`
	Suppressed uint64        `json:"suppressed_error_logs"`
	History    []HistoryItem `json:"history"`
}
