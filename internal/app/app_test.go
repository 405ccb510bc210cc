package app

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cronpump/internal/config"
	"cronpump/internal/observability/metrics"
	"cronpump/internal/storage"
	"cronpump/internal/task/retry"
	"cronpump/internal/task/rule"
	"cronpump/internal/task/scheduler"
	logx "cronpump/pkg/logx"
)

func logSchedule(name string) config.ScheduleConfig {
	return config.ScheduleConfig{Name: name, Action: config.ActionConfig{Type: "log", Message: name}}
}

func TestReconcilerAddUpdateRemove(t *testing.T) {
	t.Parallel()
	sched := scheduler.New(scheduler.Config{}, nil, logx.Nop(), nil, nil)
	rc := newReconciler(sched, logx.Nop(), nil)

	off := false
	inactive := logSchedule("later")
	inactive.Active = &off
	cfg := &config.Config{Schedules: []config.ScheduleConfig{logSchedule("a"), logSchedule("b"), inactive}}
	res := rc.Apply(cfg)
	if res.Err != nil {
		t.Fatalf("apply: %v", res.Err)
	}
	if got := strings.Join(sched.ListScheduleNames(), ","); got != "a,b" {
		t.Fatalf("registered = %q", got)
	}
	if len(res.Added) != 3 {
		t.Fatalf("added = %v", res.Added)
	}

	// Unchanged content is skipped.
	if res := rc.Apply(cfg); len(res.Added)+len(res.Updated)+len(res.Removed) != 0 {
		t.Fatalf("second apply changed things: %+v", res)
	}

	changed := logSchedule("a")
	changed.Seconds = []int{0}
	on := true
	activated := logSchedule("later")
	activated.Active = &on
	next := &config.Config{Schedules: []config.ScheduleConfig{changed, activated}}
	res = rc.Apply(next)
	if res.Err != nil {
		t.Fatalf("apply next: %v", res.Err)
	}
	if strings.Join(res.Updated, ",") != "a,later" || strings.Join(res.Removed, ",") != "b" {
		t.Fatalf("result = %+v", res)
	}
	if got := strings.Join(sched.ListScheduleNames(), ","); got != "a,later" {
		t.Fatalf("registered after reload = %q", got)
	}
	snap := sched.Snapshot()
	for _, s := range snap.Schedules {
		if s.Name == "a" && (len(s.Seconds) != 1 || s.Seconds[0] != 0) {
			t.Fatalf("schedule a not updated: %+v", s.Info)
		}
	}
}

func TestReconcilerTrimsNames(t *testing.T) {
	t.Parallel()
	sched := scheduler.New(scheduler.Config{}, nil, logx.Nop(), nil, nil)
	rc := newReconciler(sched, logx.Nop(), nil)

	padded := logSchedule(" padded ")
	if err := config.Validate(&config.Config{Schedules: []config.ScheduleConfig{padded}}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	res := rc.Apply(&config.Config{Schedules: []config.ScheduleConfig{padded}})
	if res.Err != nil {
		t.Fatalf("apply: %v", res.Err)
	}
	if strings.Join(res.Added, ",") != "padded" {
		t.Fatalf("added = %q", res.Added)
	}
	if got := strings.Join(sched.ListScheduleNames(), ","); got != "padded" {
		t.Fatalf("registered = %q", got)
	}

	// Same schedule spelled without padding is not a new rule.
	if res := rc.Apply(&config.Config{Schedules: []config.ScheduleConfig{logSchedule("padded")}}); len(res.Added) != 0 {
		t.Fatalf("trimmed name added again: %+v", res)
	}

	res = rc.Apply(&config.Config{})
	if strings.Join(res.Removed, ",") != "padded" {
		t.Fatalf("removed = %q", res.Removed)
	}
	if names := sched.ListScheduleNames(); len(names) != 0 {
		t.Fatalf("rule still registered after removal: %v", names)
	}
}

func TestReconcilerKeepsPreviousOnBuildError(t *testing.T) {
	t.Parallel()
	sched := scheduler.New(scheduler.Config{}, nil, logx.Nop(), nil, nil)
	rc := newReconciler(sched, logx.Nop(), nil)
	if res := rc.Apply(&config.Config{Schedules: []config.ScheduleConfig{logSchedule("a")}}); res.Err != nil {
		t.Fatalf("apply: %v", res.Err)
	}
	bad := logSchedule("a")
	bad.Action.Type = "mail"
	res := rc.Apply(&config.Config{Schedules: []config.ScheduleConfig{bad}})
	if res.Err == nil {
		t.Fatalf("expected build error")
	}
	if names := sched.ListScheduleNames(); len(names) != 1 || names[0] != "a" {
		t.Fatalf("previous rule lost: %v", names)
	}
}

func TestBuildTaskActions(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	m := &rule.Match{ID: 1, Scheduled: time.Now()}
	cases := []struct {
		name string
		act  config.ActionConfig
		want bool
	}{
		{"log", config.ActionConfig{Type: "log"}, true},
		{"exec ok", config.ActionConfig{Type: "exec", Command: []string{"sh", "-c", "exit 0"}}, true},
		{"exec fails", config.ActionConfig{Type: "exec", Command: []string{"sh", "-c", "exit 3"}}, false},
		{"exec sees env", config.ActionConfig{Type: "exec", Command: []string{"sh", "-c", `test "$CRONPUMP_MATCH_ID" = 1`}}, true},
		{"exec timeout", config.ActionConfig{Type: "exec", Command: []string{"sh", "-c", "sleep 5"}, Timeout: "100ms"}, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			task, err := buildTask(config.ScheduleConfig{Name: tc.name, Action: tc.act}, logx.Nop(), nil)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if got := task.Run(context.Background(), m); got != tc.want {
				t.Fatalf("Run = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildTaskCancelledExec(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	task, err := buildTask(config.ScheduleConfig{Name: "slow", Action: config.ActionConfig{Type: "exec", Command: []string{"sleep", "10"}}}, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	start := time.Now()
	if task.Run(ctx, &rule.Match{ID: 2}) {
		t.Fatalf("cancelled command reported success")
	}
	if took := time.Since(start); took > 5*time.Second {
		t.Fatalf("cancellation ignored, took %v", took)
	}
}

func TestBuildTaskWrapsRetry(t *testing.T) {
	t.Parallel()
	sc := logSchedule("r")
	sc.Retry = &config.RetryConfig{MaxAttempts: 3, BaseIntervalSeconds: 2}
	task, err := buildTask(sc, logx.Nop(), metrics.New())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b, ok := task.(*retry.Backoff)
	if !ok || b.MaxAttempts() != 3 || b.BaseInterval() != 2*time.Second {
		t.Fatalf("task = %#v", task)
	}

	sc.Retry.BaseIntervalSeconds = 1
	if _, err := buildTask(sc, logx.Nop(), nil); err == nil {
		t.Fatalf("expected invalid policy")
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	if _, on, err := MapStorageConfig(&config.Config{}); on || err != nil {
		t.Fatalf("nil storage: on=%v err=%v", on, err)
	}
	sc, on, err := MapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "SQLite", Path: "x.db"}})
	if err != nil || !on || sc.Driver != "sqlite" || sc.BusyTimeout != time.Second {
		t.Fatalf("sqlite = %+v on=%v err=%v", sc, on, err)
	}
	if _, _, err := MapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "file"}}); err == nil {
		t.Fatalf("expected missing path error")
	}
	if _, _, err := MapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "mongo", Path: "x"}}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

const appYAML = `
logging:
  level: error
  console: true
runtime:
  stop_timeout: 5s
storage:
  driver: file
  path: %DIR%/journal
schedules:
  - name: tick
    action:
      type: log
      message: tick
`

func TestAppRunsJournalsAndReloads(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time test")
	}
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cronpump.yaml")
	body := strings.ReplaceAll(appYAML, "%DIR%", dir)
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	stopped := false
	defer func() {
		if !stopped {
			_ = a.Stop(context.Background(), StopAppStop)
		}
	}()

	waitFor(t, 5*time.Second, "journaled runs", func() bool {
		runs, err := a.store.RecentRuns(context.Background(), storage.Query{Rule: "tick"})
		return err == nil && len(runs) >= 2
	})

	reloaded := strings.Replace(body, "name: tick", "name: tock", 1)
	if err := os.WriteFile(cfgPath, []byte(reloaded), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	waitFor(t, 5*time.Second, "reloaded schedules", func() bool {
		names := a.Scheduler().ListScheduleNames()
		return len(names) == 1 && names[0] == "tock"
	})

	if err := a.Stop(context.Background(), StopAppStop); err != nil {
		t.Fatalf("stop: %v", err)
	}
	stopped = true
	if st := a.Scheduler().State(); st != scheduler.StateStopped {
		t.Fatalf("state after stop = %s", st)
	}
}

func waitFor(t *testing.T, limit time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
