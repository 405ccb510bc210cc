package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cronpump/internal/storage"
	logx "cronpump/pkg/logx"
)

const checkYAML = `
runtime:
  timezone: UTC
schedules:
  - name: nightly
    schedule: "0 3 * * *"
    action: {type: log}
  - name: paused
    schedule: "5m"
    active: false
    action: {type: exec, command: ["true"]}
    retry: {max_attempts: 2, base_interval_seconds: 2}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cronpump.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCheckConfigPreview(t *testing.T) {
	t.Parallel()
	p := writeConfig(t, checkYAML)
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	previews, err := checkConfig(p, from, 2)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(previews) != 2 {
		t.Fatalf("previews = %+v", previews)
	}
	nightly := previews[0]
	want := []time.Time{
		time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC),
	}
	if len(nightly.Next) != 2 || !nightly.Next[0].Equal(want[0]) || !nightly.Next[1].Equal(want[1]) {
		t.Fatalf("nightly next = %v", nightly.Next)
	}
	if previews[1].Active || len(previews[1].Next) != 0 || previews[1].Retry == "" {
		t.Fatalf("paused = %+v", previews[1])
	}
}

func TestCheckCommandOutputs(t *testing.T) {
	t.Parallel()
	p := writeConfig(t, checkYAML)

	out, err := execute(t, "check", "--config", p)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "config ok: 2 schedule(s)") || !strings.Contains(out, "nightly") {
		t.Fatalf("text output:\n%s", out)
	}

	out, err = execute(t, "check", "--config", p, "--format", "json", "-n", "1")
	if err != nil {
		t.Fatalf("check json: %v", err)
	}
	var got []SchedulePreview
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(got) != 2 || len(got[0].Next) != 1 {
		t.Fatalf("json previews = %+v", got)
	}

	if _, err := execute(t, "check", "--config", p, "--format", "xml"); err == nil {
		t.Fatalf("expected invalid format error")
	}
}

func TestCheckRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	p := writeConfig(t, "schedules:\n  - name: x\n    schedule: \"99 * * * *\"\n    action: {type: log}\n")
	if _, err := execute(t, "check", "--config", p); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestHistoryCommand(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	journal := filepath.Join(dir, "journal")
	p := writeConfig(t, "storage: {driver: file, path: "+journal+"}\nschedules: []\n")

	st, err := storage.Open(storage.Config{Driver: "file", Path: journal}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 1; i <= 3; i++ {
		r := storage.Run{MatchID: int64(i), Rule: "nightly", Result: "success", Scheduled: time.Unix(int64(i), 0)}
		if err := st.AppendRun(context.Background(), r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	_ = st.Close()

	out, err := execute(t, "history", "--config", p, "--format", "json", "-n", "2")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var runs []storage.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(runs) != 2 || runs[0].MatchID != 3 {
		t.Fatalf("runs = %+v", runs)
	}

	noStore := writeConfig(t, "schedules: []\n")
	if _, err := execute(t, "history", "--config", noStore); err == nil {
		t.Fatalf("expected error without storage")
	}
}
