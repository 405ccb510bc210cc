package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.Tick(5 * time.Millisecond)
	m.Tick(-time.Second)
	m.Matched()
	m.ExecutionStarted()
	m.ExecutionStarted()
	m.ExecutionFinished(ResultSuccess, time.Second)
	m.SetRules(4)

	if got := testutil.ToFloat64(m.ticks); got != 2 {
		t.Fatalf("ticks=%v", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Fatalf("in flight=%v", got)
	}
	if got := testutil.ToFloat64(m.executions.WithLabelValues(ResultSuccess)); got != 1 {
		t.Fatalf("success=%v", got)
	}
	if got := testutil.ToFloat64(m.rules); got != 4 {
		t.Fatalf("rules=%v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.Tick(time.Second)
	m.Matched()
	m.EvaluationError()
	m.Expired()
	m.SetRules(1)
	m.ExecutionStarted()
	m.ExecutionFinished(ResultPanic, 0)
	m.RetryScheduled()
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	m := New()
	m.Matched()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "cronpump_matches_total 1") {
		t.Fatalf("metrics output missing counter:\n%s", rec.Body.String())
	}
}
