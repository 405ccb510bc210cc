package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Retain      int           // runs kept; 0 keeps everything
}

// Run is one finished execution. Keep it compact and schema-stable.
type Run struct {
	MatchID   int64     `json:"match_id"`
	Rule      string    `json:"rule"`
	Scheduled time.Time `json:"scheduled"`
	Started   time.Time `json:"started"`
	TookMS    int64     `json:"took_ms"`
	Result    string    `json:"result"`
	Error     string    `json:"error,omitempty"`
}

// Query selects runs, newest first.
type Query struct {
	Rule  string // empty matches every rule
	Limit int    // <= 0 means 50
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 50
	}
	return q.Limit
}

func (q Query) matches(r Run) bool { return q.Rule == "" || q.Rule == r.Rule }
