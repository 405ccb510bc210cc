package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"cronpump/internal/config"
	"cronpump/internal/observability/metrics"
	"cronpump/internal/task/retry"
	"cronpump/internal/task/rule"
	logx "cronpump/pkg/logx"
)

// maxOutputLog bounds how much command output ends up in one log line.
const maxOutputLog = 2048

// buildTask turns a schedule's action (and optional retry policy) into the
// task its rule executes.
func buildTask(sc config.ScheduleConfig, log logx.Logger, m *metrics.Metrics) (rule.Task, error) {
	log = log.With(logx.String("schedule", sc.Name))

	var task rule.Task
	switch strings.ToLower(strings.TrimSpace(sc.Action.Type)) {
	case config.ActionLog:
		task = logAction{msg: sc.Action.Message, log: log}
	case config.ActionExec:
		timeout, err := config.ParseDurationField("action.timeout", sc.Action.Timeout)
		if err != nil {
			return nil, err
		}
		task = execAction{argv: sc.Action.Command, dir: sc.Action.Dir, env: sc.Action.Env, timeout: timeout, log: log}
	default:
		return nil, fmt.Errorf("unknown action type %q", sc.Action.Type)
	}

	if sc.Retry == nil {
		return task, nil
	}
	b, err := retry.New(task, sc.Retry.MaxAttempts, sc.Retry.BaseIntervalSeconds,
		retry.WithLogger(log), retry.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	return b, nil
}

type logAction struct {
	msg string
	log logx.Logger
}

func (a logAction) Run(_ context.Context, m *rule.Match) bool {
	msg := a.msg
	if strings.TrimSpace(msg) == "" {
		msg = "schedule fired"
	}
	a.log.Info(msg, logx.Int64("match", m.ID), logx.Time("scheduled", m.Scheduled))
	return true
}

// execAction runs argv directly (no shell). Cancellation of the dispatch
// context kills the process.
type execAction struct {
	argv    []string
	dir     string
	env     []string
	timeout time.Duration
	log     logx.Logger
}

func (a execAction) Run(ctx context.Context, m *rule.Match) bool {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, a.argv[0], a.argv[1:]...)
	cmd.Dir = a.dir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("CRONPUMP_SCHEDULE=%s", ruleName(m)),
		fmt.Sprintf("CRONPUMP_MATCH_ID=%d", m.ID),
		fmt.Sprintf("CRONPUMP_SCHEDULED=%s", m.Scheduled.UTC().Format(time.RFC3339)),
	)
	cmd.Env = append(cmd.Env, a.env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err := cmd.Run()
	fields := []logx.Field{
		logx.Int64("match", m.ID),
		logx.String("cmd", a.argv[0]),
		logx.Duration("took", time.Since(start)),
	}
	if s := strings.TrimSpace(out.String()); s != "" {
		if len(s) > maxOutputLog {
			s = s[:maxOutputLog] + "..."
		}
		fields = append(fields, logx.String("output", s))
	}
	if err != nil {
		if ctx.Err() != nil {
			fields = append(fields, logx.String("ctx", ctx.Err().Error()))
		}
		a.log.Warn("command failed", append(fields, logx.Err(err))...)
		return false
	}
	a.log.Debug("command finished", fields...)
	return true
}

func ruleName(m *rule.Match) string {
	if m == nil || m.Rule == nil {
		return ""
	}
	return m.Rule.Name()
}
