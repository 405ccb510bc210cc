package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "cronpump/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: st=%v err=%v", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("expected missing path error")
	}
}

func TestFileStoreRecentRuns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "cronpump.db")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		name := "a"
		if i%2 == 1 {
			name = "b"
		}
		r := Run{MatchID: int64(i + 1), Rule: name, Scheduled: base.Add(time.Duration(i) * time.Second), Result: "success"}
		if err := st.AppendRun(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := st.RecentRuns(ctx, Query{Limit: 2})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].MatchID != 6 || got[1].MatchID != 5 {
		t.Fatalf("recent = %+v", got)
	}

	got, err = st.RecentRuns(ctx, Query{Rule: "a"})
	if err != nil {
		t.Fatalf("recent a: %v", err)
	}
	if len(got) != 3 || got[0].MatchID != 5 || got[2].MatchID != 1 {
		t.Fatalf("recent a = %+v", got)
	}
	if !got[2].Scheduled.Equal(base) {
		t.Fatalf("scheduled not preserved: %v", got[2].Scheduled)
	}

	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := st.AppendRun(ctx, Run{Rule: "a"}); err == nil {
		t.Fatalf("append after close should fail")
	}
}

func TestFileStoreRetainOnReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 1; i <= 10; i++ {
		if err := st.AppendRun(ctx, Run{MatchID: int64(i), Rule: "r", Result: "success"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	_ = st.Close()

	st, err = Open(Config{Driver: "file", Path: path, Retain: 3}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	got, err := st.RecentRuns(ctx, Query{Limit: 100})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 || got[0].MatchID != 10 || got[2].MatchID != 8 {
		t.Fatalf("retained = %+v", got)
	}
	if err := st.AppendRun(ctx, Run{MatchID: 11, Rule: "r"}); err != nil {
		t.Fatalf("append after compact: %v", err)
	}
}
