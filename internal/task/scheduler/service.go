package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cronpump/internal/eventbus"
	"cronpump/internal/observability/metrics"
	rtsup "cronpump/internal/runtime/supervisor"
	"cronpump/internal/task/engine"
	"cronpump/internal/task/registry"
	logx "cronpump/pkg/logx"
)

// matchSeq numbers matches across every Service in the process.
var matchSeq atomic.Int64

type Service struct {
	cfg     Config
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics
	engine  *engine.Service
	reg     *registry.Registry

	mu     sync.Mutex
	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	next  atomic.Int64
	ticks atomic.Uint64
}

// New builds a stopped runtime. eng must not be shared with another Service.
func New(cfg Config, eng *engine.Service, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Service {
	if eng == nil {
		eng = engine.New(engine.Config{}, log, bus, m)
	}
	done := make(chan struct{})
	close(done)
	return &Service{
		cfg:     cfg.withDefaults(),
		log:     log.With(logx.String("comp", "scheduler")),
		bus:     bus,
		metrics: m,
		engine:  eng,
		reg:     registry.New(),
		done:    done,
	}
}

func (s *Service) State() State { return State(s.state.Load()) }

// Start launches the evaluation loop. Cancelling ctx has the same effect as
// StopAsync. It fails with ErrNotStopped unless the runtime is Stopped.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.transition(StateStopped, StateRunning) {
		return ErrNotStopped
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.engine.Begin(ctx)

	sup := rtsup.New(context.Background(),
		rtsup.WithLogger(s.log),
		rtsup.WithPanicHandler(func(p *rtsup.PanicError) {
			s.engine.Report(&EvaluationError{Rule: "", At: time.Now().UTC(), Err: p})
		}),
	)
	sup.Go0("scheduler.loop", func(context.Context) { s.loop(loopCtx) })
	go s.drain(sup, s.done)

	s.log.Info("scheduler started", logx.Int("schedules", s.reg.Len()))
	return nil
}

// drain walks the tail of the state machine once the loop has exited.
func (s *Service) drain(sup *rtsup.Supervisor, done chan struct{}) {
	_ = sup.Wait(context.Background())
	start := time.Now()

	s.mu.Lock()
	s.transition(StateRunning, StateStopRequested)
	s.transition(StateStopRequested, StateStoppingGracefully)
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.engine.Cancel()

	inFlight := s.engine.InFlight()
	if inFlight > 0 {
		s.log.Info("waiting for running tasks", logx.Int64("in_flight", inFlight))
	}
	_ = s.engine.Wait(context.Background())

	s.mu.Lock()
	s.transition(StateStoppingGracefully, StateStopped)
	s.mu.Unlock()
	close(done)
	s.log.Info("scheduler stopped", logx.Duration("drain", time.Since(start)))
}

// StopAsync requests a graceful stop and returns immediately. It returns
// false when no stop was started because the runtime is not Running.
func (s *Service) StopAsync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.transition(StateRunning, StateStopRequested) {
		return false
	}
	s.cancel()
	s.engine.Cancel()
	return true
}

// Stop requests a graceful stop and blocks until every running task has
// returned or ctx ends. It returns false, without waiting, when the runtime
// was not Running.
//
// A task stopping its own runtime must pass the context it was given: Stop
// then only requests the stop, since waiting would wait on the caller. Called
// from a task with any other context, Stop blocks until ctx ends.
func (s *Service) Stop(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if !s.StopAsync() {
		return false
	}
	if s.engine.Executing(ctx) {
		s.log.Info("stop requested from a running task")
		return true
	}
	s.log.Info("stop requested")
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("stop wait abandoned", logx.Err(ctx.Err()), logx.Int64("in_flight", s.engine.InFlight()))
	}
	return true
}

// Done is closed once the current run has fully stopped.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Wait blocks until the current run has fully stopped or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnUnhandledError sets the hook for task panics and evaluation failures.
func (s *Service) OnUnhandledError(fn func(error)) { s.engine.OnUnhandledError(fn) }

// transition must be called with s.mu held.
func (s *Service) transition(from, to State) bool {
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	s.log.Debug("state changed", logx.String("from", from.String()), logx.String("to", to.String()))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "scheduler.state", Data: StateEvent{From: from, To: to}})
	}
	return true
}
