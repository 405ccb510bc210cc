package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"cronpump/internal/task/retry"
	"cronpump/internal/task/rule"
)

const (
	ActionLog  = "log"
	ActionExec = "exec"
)

// RuleOptions translates the declarative fields into rule options. The task
// itself is attached by the caller.
func (s ScheduleConfig) RuleOptions(defaultTZ string) ([]rule.Option, error) {
	opts := []rule.Option{rule.Named(s.Name)}

	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		tz = defaultTZ
	}
	opts = append(opts, rule.InZone(tz))

	hasFields := len(s.Years)+len(s.Months)+len(s.DaysOfMonth)+len(s.DaysOfWeek)+
		len(s.Hours)+len(s.Minutes)+len(s.Seconds) > 0
	forms := 0
	for _, set := range []bool{strings.TrimSpace(s.Schedule) != "", strings.TrimSpace(s.At) != "", hasFields} {
		if set {
			forms++
		}
	}
	if forms > 1 {
		return nil, errors.New("use only one of schedule, at, or field lists")
	}

	switch {
	case strings.TrimSpace(s.Schedule) != "":
		opts = append(opts, rule.Spec(s.Schedule))
	case strings.TrimSpace(s.At) != "":
		at, err := time.Parse(time.RFC3339, strings.TrimSpace(s.At))
		if err != nil {
			return nil, fmt.Errorf("at: %w", err)
		}
		opts = append(opts, rule.Once(at))
	default:
		opts = append(opts,
			rule.Years(s.Years...),
			rule.Months(s.Months...),
			rule.DaysOfMonth(s.DaysOfMonth...),
			rule.DaysOfWeek(s.DaysOfWeek...),
			rule.Hours(s.Hours...),
			rule.Minutes(s.Minutes...),
			rule.Seconds(s.Seconds...),
		)
	}

	if exp := strings.TrimSpace(s.Expires); exp != "" {
		t, err := time.Parse(time.RFC3339, exp)
		if err != nil {
			return nil, fmt.Errorf("expires: %w", err)
		}
		opts = append(opts, rule.ExpiresAt(t))
	}
	opts = append(opts, rule.Active(s.IsActive()))
	return opts, nil
}

// Hash identifies the schedule content so reloads can skip unchanged
// entries. Key order and whitespace do not affect it.
func (s ScheduleConfig) Hash() uint64 {
	b, err := json.Marshal(s)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (a ActionConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.Type)) {
	case ActionLog:
		return nil
	case ActionExec:
		if len(a.Command) == 0 || strings.TrimSpace(a.Command[0]) == "" {
			return errors.New("exec action needs a command")
		}
		_, err := ParseDurationField("timeout", a.Timeout)
		return err
	case "":
		return errors.New("action type required")
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

var noopTask = rule.TaskFunc(func(context.Context, *rule.Match) bool { return true })

// Validate checks everything that can be checked without running anything:
// names, schedule expressions, actions, retry policies and durations.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if tz := strings.TrimSpace(cfg.Runtime.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("runtime.timezone: %w", err))
		}
	}
	for _, f := range []struct{ path, raw string }{
		{"runtime.error_log_every", cfg.Runtime.ErrorLogEvery},
		{"runtime.stop_timeout", cfg.Runtime.StopTimeout},
		{"http.read_timeout", cfg.HTTP.ReadTimeout},
		{"http.write_timeout", cfg.HTTP.WriteTimeout},
		{"http.idle_timeout", cfg.HTTP.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}

	seen := map[string]bool{}
	for i, s := range cfg.Schedules {
		path := fmt.Sprintf("schedules[%d]", i)
		name := strings.TrimSpace(s.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s: name required", path))
			continue
		}
		path = fmt.Sprintf("schedules[%s]", name)
		if seen[name] {
			errs = append(errs, fmt.Errorf("%s: duplicate name", path))
		}
		seen[name] = true

		opts, err := s.RuleOptions(cfg.Runtime.Timezone)
		if err == nil {
			_, err = rule.New(append(opts, rule.Execute(noopTask))...)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
		if err := s.Action.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s.action: %w", path, err))
		}
		if s.Retry != nil {
			if _, err := retry.New(noopTask, s.Retry.MaxAttempts, s.Retry.BaseIntervalSeconds); err != nil {
				errs = append(errs, fmt.Errorf("%s.retry: %w", path, err))
			}
		}
	}
	return errors.Join(errs...)
}
