package config

// Config is the on-disk configuration (YAML or JSON).
//
// Durations are Go duration strings ("500ms", "10s", "1m"); instants are
// RFC 3339 timestamps.
type Config struct {
	Logging   LoggingConfig    `json:"logging"`
	Runtime   RuntimeConfig    `json:"runtime"`
	HTTP      HTTPConfig       `json:"http,omitempty"`
	Storage   *StorageConfig   `json:"storage,omitempty"`
	Systemd   SystemdConfig    `json:"systemd,omitempty"`
	Schedules []ScheduleConfig `json:"schedules"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// RuntimeConfig tunes the scheduler and dispatcher.
//
// Defaults (when omitted):
//   - timezone: "UTC" (used by schedules that do not set their own)
//   - history_size: 200
//   - error_log_every: "1s", error_log_burst: 5
//   - stop_timeout: "0s" (wait for running tasks indefinitely)
//   - preview_runs: 3
type RuntimeConfig struct {
	Timezone      string `json:"timezone,omitempty"`
	HistorySize   int    `json:"history_size,omitempty"`
	ErrorLogEvery string `json:"error_log_every,omitempty"`
	ErrorLogBurst int    `json:"error_log_burst,omitempty"`
	StopTimeout   string `json:"stop_timeout,omitempty"`
	PreviewRuns   int    `json:"preview_runs,omitempty"`
}

// HTTPConfig controls the optional observability server (/healthz, /metrics,
// /schedules and, when enabled, pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9310").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9310"
	Token         string `json:"token,omitempty"` // optional bearer token (never logged)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	Pprof       bool   `json:"pprof,omitempty"`
	PprofPrefix string `json:"pprof_prefix,omitempty"` // default: "/debug/pprof/"

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// StorageConfig selects the run journal.
//
// Example:
//
//	storage: { driver: file, path: ./cronpump_runs }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	Retain      int    `json:"retain,omitempty"`       // runs kept; 0 keeps everything
}

// SystemdConfig enables sd_notify integration when running under systemd.
type SystemdConfig struct {
	Notify bool `json:"notify,omitempty"`
}

// ScheduleConfig declares one rule.
//
// Exactly one of schedule, at, or the explicit field lists should be used;
// when none is set the rule fires every second.
type ScheduleConfig struct {
	Name string `json:"name"`

	// Schedule accepts cron ("*/5 * * * *"), a daily time ("07:30") or an
	// aligned interval ("15m").
	Schedule string `json:"schedule,omitempty"`
	// At fires once at an RFC 3339 instant.
	At string `json:"at,omitempty"`

	Years       []int `json:"years,omitempty"`
	Months      []int `json:"months,omitempty"`
	DaysOfMonth []int `json:"days_of_month,omitempty"`
	DaysOfWeek  []int `json:"days_of_week,omitempty"`
	Hours       []int `json:"hours,omitempty"`
	Minutes     []int `json:"minutes,omitempty"`
	Seconds     []int `json:"seconds,omitempty"`

	Timezone string `json:"timezone,omitempty"`
	Expires  string `json:"expires,omitempty"`
	Active   *bool  `json:"active,omitempty"`

	Action ActionConfig `json:"action"`
	Retry  *RetryConfig `json:"retry,omitempty"`
}

// ActionConfig is the work a schedule performs.
//
//   - log: writes Message to the log and succeeds.
//   - exec: runs Command (argv, no shell) and succeeds on exit status 0.
type ActionConfig struct {
	Type    string   `json:"type"`
	Message string   `json:"message,omitempty"`
	Command []string `json:"command,omitempty"`
	Dir     string   `json:"dir,omitempty"`
	Env     []string `json:"env,omitempty"`
	Timeout string   `json:"timeout,omitempty"`
}

// RetryConfig wraps the action in exponential backoff. max_attempts counts
// every invocation including the first.
type RetryConfig struct {
	MaxAttempts         int `json:"max_attempts"`
	BaseIntervalSeconds int `json:"base_interval_seconds"`
}

func (s ScheduleConfig) IsActive() bool { return s.Active == nil || *s.Active }
