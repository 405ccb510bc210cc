// Package retry decorates a task with exponential backoff. A failed attempt
// is retried by registering a one-shot rule on the runtime that dispatched
// it, so retries are ordinary scheduled executions.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cronpump/internal/observability/metrics"
	"cronpump/internal/task/rule"
	logx "cronpump/pkg/logx"
)

var ErrInvalidPolicy = errors.New("invalid retry policy")

// MinBaseInterval is the smallest accepted base interval in seconds. With one
// second resolution a shorter base could land in the tick being evaluated.
const MinBaseInterval = 2

type Backoff struct {
	task        rule.Task
	maxAttempts int
	base        time.Duration

	log     logx.Logger
	metrics *metrics.Metrics
}

type Option func(*Backoff)

func WithLogger(log logx.Logger) Option { return func(b *Backoff) { b.log = log } }

func WithMetrics(m *metrics.Metrics) Option { return func(b *Backoff) { b.metrics = m } }

// New wraps task. maxAttempts is the total number of invocations, first one
// included; attempt n (from 0) that fails is retried after
// baseIntervalSeconds * 2^n seconds.
func New(task rule.Task, maxAttempts, baseIntervalSeconds int, opts ...Option) (*Backoff, error) {
	if task == nil {
		return nil, rule.ErrNoTask
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("%w: max attempts %d must be at least 1", ErrInvalidPolicy, maxAttempts)
	}
	if baseIntervalSeconds < MinBaseInterval {
		return nil, fmt.Errorf("%w: base interval %ds must be at least %ds", ErrInvalidPolicy, baseIntervalSeconds, MinBaseInterval)
	}
	b := &Backoff{
		task:        task,
		maxAttempts: maxAttempts,
		base:        time.Duration(baseIntervalSeconds) * time.Second,
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

func (b *Backoff) MaxAttempts() int { return b.maxAttempts }

func (b *Backoff) BaseInterval() time.Duration { return b.base }

// Delay is the wait before retrying attempt n.
func (b *Backoff) Delay(n int) time.Duration { return b.base << uint(n) }

// Run starts a fresh retry chain.
func (b *Backoff) Run(ctx context.Context, m *rule.Match) bool {
	origin := ""
	if m.Rule != nil {
		origin = m.Rule.Name()
	}
	return attempt{b: b, n: 0, origin: origin, chain: uuid.NewString()[:8]}.Run(ctx, m)
}

// attempt is the per-chain state. It is a value: every retry carries its
// own copy, so concurrent chains of the same rule never share a counter.
type attempt struct {
	b      *Backoff
	n      int
	origin string
	chain  string
}

func (a attempt) Run(ctx context.Context, m *rule.Match) bool {
	if a.b.task.Run(ctx, m) {
		if a.n > 0 {
			a.b.log.Info("retry succeeded", logx.String("rule", a.origin), logx.String("chain", a.chain), logx.Int("attempt", a.n+1))
		}
		return true
	}
	if a.n >= a.b.maxAttempts-1 {
		if a.b.maxAttempts > 1 {
			a.b.log.Warn("retries exhausted", logx.String("rule", a.origin), logx.String("chain", a.chain), logx.Int("attempts", a.b.maxAttempts))
		}
		return false
	}
	if m.Runtime == nil {
		a.b.log.Warn("retry skipped: no runtime", logx.String("rule", a.origin))
		return false
	}

	delay := a.b.Delay(a.n)
	at := time.Now().UTC().Truncate(time.Second).Add(delay)
	next := attempt{b: a.b, n: a.n + 1, origin: a.origin, chain: a.chain}
	r, err := rule.New(
		rule.Named(fmt.Sprintf("%s#retry-%s-%d", a.origin, a.chain, next.n)),
		rule.Once(at),
		rule.Execute(next),
	)
	if err != nil {
		a.b.log.Error("retry rule rejected", logx.String("rule", a.origin), logx.Err(err))
		return false
	}
	if !m.Runtime.AddSchedule(r) {
		a.b.log.Warn("retry not registered", logx.String("rule", r.Name()))
		return false
	}
	a.b.metrics.RetryScheduled()
	a.b.log.Debug("retry scheduled",
		logx.String("rule", a.origin),
		logx.String("chain", a.chain),
		logx.Int("attempt", next.n+1),
		logx.Duration("delay", delay),
		logx.Time("at", at),
	)
	return false
}
