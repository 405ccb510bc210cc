package app

import (
	"fmt"
	"strings"
	"time"

	"cronpump/internal/config"
	"cronpump/internal/observability/httpserver"
	"cronpump/internal/storage"
	"cronpump/internal/task/engine"
	"cronpump/internal/task/scheduler"
	logx "cronpump/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:       cfg.Logging.Level,
		Console:     cfg.Logging.Console,
		JSONConsole: cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	every, err := config.ParseDurationField("runtime.error_log_every", cfg.Runtime.ErrorLogEvery)
	if err != nil {
		return engine.Config{}, err
	}
	if cfg.Runtime.HistorySize < 0 {
		return engine.Config{}, fmt.Errorf("runtime.history_size must be >= 0")
	}
	return engine.Config{
		HistorySize:   cfg.Runtime.HistorySize,
		ErrorLogEvery: every,
		ErrorLogBurst: cfg.Runtime.ErrorLogBurst,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{PreviewRuns: cfg.Runtime.PreviewRuns}
}

func mapHTTPConfig(cfg *config.Config) (httpserver.Config, error) {
	h := cfg.HTTP
	read, err := config.ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	// pprof profiles stream for up to 30s by default.
	write, err := config.ParseDurationOrDefault("http.write_timeout", h.WriteTimeout, 60*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", h.IdleTimeout, 60*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	return httpserver.Config{
		Enabled:       h.Enabled,
		Addr:          strings.TrimSpace(h.Addr),
		Token:         strings.TrimSpace(h.Token),
		AllowInsecure: h.AllowInsecure,
		Pprof:         h.Pprof,
		PprofPrefix:   h.PprofPrefix,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

// MapStorageConfig reports whether a journal is configured.
func MapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
	}
	if sc.Retain < 0 {
		return storage.Config{}, false, fmt.Errorf("storage.retain must be >= 0")
	}
	switch driver {
	case "file":
		return storage.Config{Driver: driver, Path: path, Retain: sc.Retain}, true, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy, Retain: sc.Retain}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// Validate runs the host-level checks on top of config.Validate so a bad
// hot reload is rejected before it is committed.
func Validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapEngineConfig(cfg); err != nil {
		return err
	}
	if _, err := mapHTTPConfig(cfg); err != nil {
		return err
	}
	_, _, err := MapStorageConfig(cfg)
	return err
}
