package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"cronpump/internal/eventbus"
	"cronpump/internal/observability/metrics"
	rtsup "cronpump/internal/runtime/supervisor"
	"cronpump/internal/task/rule"
	logx "cronpump/pkg/logx"
)

// Service runs matched tasks concurrently and tracks them until they finish.
// Each Begin/Cancel/Wait cycle gets its own supervisor, whose context is the
// cancellation signal handed to every task of that cycle.
type Service struct {
	cfg     Config
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics

	mu       sync.Mutex
	sup      *rtsup.Supervisor
	stopping bool

	hook    atomic.Pointer[func(error)]
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem

	dispatched atomic.Uint64
	succeeded  atomic.Uint64
	failed     atomic.Uint64
	panicked   atomic.Uint64
	suppressed atomic.Uint64
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "engine")),
		bus:     bus,
		metrics: m,
		limiter: rate.NewLimiter(rate.Every(cfg.ErrorLogEvery), cfg.ErrorLogBurst),
	}
}

// Begin opens a new dispatch cycle bound to parent.
func (s *Service) Begin(parent context.Context) {
	sup := rtsup.New(parent,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	s.mu.Lock()
	s.sup = sup
	s.stopping = false
	s.mu.Unlock()
}

// Dispatch starts task in its own goroutine. It never blocks on the task.
func (s *Service) Dispatch(m *rule.Match, task rule.Task) error {
	if task == nil {
		return ErrNoTask
	}
	name := ""
	if m.Rule != nil {
		name = m.Rule.Name()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup == nil {
		return ErrStopped
	}
	if s.stopping {
		return ErrStopping
	}
	s.dispatched.Add(1)
	s.sup.Go0("exec."+name, func(ctx context.Context) {
		s.execute(ctx, name, m, task)
	})
	return nil
}

// Cancel signals every running task and rejects further dispatches until the
// next Begin.
func (s *Service) Cancel() {
	s.mu.Lock()
	s.stopping = true
	sup := s.sup
	s.mu.Unlock()
	if sup != nil {
		sup.Cancel()
	}
}

// Wait blocks until every task of the current cycle has returned.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := sup.Wait(ctx)
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		err = nil
	}
	return err
}

// InFlight is the number of executions that have not yet returned.
func (s *Service) InFlight() int64 {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	return sup.Active()
}

type execKey struct{}

// Executing reports whether ctx belongs to a task dispatched by s.
func (s *Service) Executing(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(execKey{}).(*Service)
	return owner == s
}

func (s *Service) execute(ctx context.Context, name string, m *rule.Match, task rule.Task) {
	ctx = context.WithValue(ctx, execKey{}, s)
	start := time.Now()
	m.Signaled = start
	s.metrics.ExecutionStarted()
	s.publish(EventStarted, TaskEvent{MatchID: m.ID, Rule: name, Scheduled: m.Scheduled, Started: start})
	s.log.Debug("task.started", logx.String("rule", name), logx.Int64("match", m.ID), logx.Duration("lag", start.Sub(m.Scheduled)))

	var (
		ok  bool
		pan *PanicError
	)
	func() {
		defer func() { pan = rtsup.Recover(name, recover()) }()
		ok = task.Run(ctx, m)
	}()

	took := time.Since(start)
	item := HistoryItem{MatchID: m.ID, Rule: name, Scheduled: m.Scheduled, Started: start, Duration: took}
	ev := TaskEvent{MatchID: m.ID, Rule: name, Scheduled: m.Scheduled, Started: start, Duration: took}

	switch {
	case pan != nil:
		s.panicked.Add(1)
		item.Result, item.Error = ResultPanic, pan.Error()
		ev.Result, ev.Error = ResultPanic, item.Error
		s.metrics.ExecutionFinished(metrics.ResultPanic, took)
		s.publish(EventPanicked, ev)
		s.Report(&ExecutionError{Rule: name, MatchID: m.ID, Scheduled: m.Scheduled, Err: pan})
	case !ok:
		s.failed.Add(1)
		item.Result, ev.Result = ResultFailure, ResultFailure
		s.metrics.ExecutionFinished(metrics.ResultFailure, took)
		s.publish(EventFailed, ev)
		s.log.Debug("task.failed", logx.String("rule", name), logx.Int64("match", m.ID), logx.Duration("dur", took))
	default:
		s.succeeded.Add(1)
		item.Result, ev.Result = ResultSuccess, ResultSuccess
		s.metrics.ExecutionFinished(metrics.ResultSuccess, took)
		s.publish(EventFinished, ev)
		if took >= 750*time.Millisecond {
			s.log.Info("task.completed", logx.String("rule", name), logx.Int64("match", m.ID), logx.Duration("dur", took))
		} else {
			s.log.Debug("task.completed", logx.String("rule", name), logx.Int64("match", m.ID), logx.Duration("dur", took))
		}
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	running := s.sup != nil && !s.stopping
	s.mu.Unlock()

	s.hmu.Lock()
	h := make([]HistoryItem, len(s.history))
	copy(h, s.history)
	s.hmu.Unlock()

	return Snapshot{
		Running:    running,
		InFlight:   s.InFlight(),
		Dispatched: s.dispatched.Load(),
		Succeeded:  s.succeeded.Load(),
		Failed:     s.failed.Load(),
		Panicked:   s.panicked.Load(),
		Suppressed: s.suppressed.Load(),
		History:    h,
	}
}
