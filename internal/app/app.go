package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cronpump/internal/config"
	"cronpump/internal/eventbus"
	"cronpump/internal/observability/httpserver"
	"cronpump/internal/observability/metrics"
	rtsup "cronpump/internal/runtime/supervisor"
	"cronpump/internal/storage"
	"cronpump/internal/task/engine"
	"cronpump/internal/task/scheduler"
	logx "cronpump/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	store   storage.Store
	metrics *metrics.Metrics

	engine    *engine.Service
	sched     *scheduler.Service
	http      *httpserver.Server
	schedules *reconciler
	sd        sdNotifier

	stopTimeout time.Duration
}

// New loads the config at cfgPath and wires every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cfgm.Commit(cfg)
	return newApp(cfgm, cfg)
}

func newApp(cfgm *config.Manager, cfg *config.Config) (*App, error) {
	logSvc, log := logx.New(mapLogConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	httpCfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	stopTimeout, err := config.ParseDurationField("runtime.stop_timeout", cfg.Runtime.StopTimeout)
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if sc, enabled, err := MapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	bus := eventbus.New()
	m := metrics.New()
	eng := engine.New(engCfg, log.With(logx.String("comp", "engine")), bus, m)
	sched := scheduler.New(mapSchedulerConfig(cfg), eng, log, bus, m)

	a := &App{
		cfgm:        cfgm,
		log:         appLog,
		logs:        logSvc,
		bus:         bus,
		store:       store,
		metrics:     m,
		engine:      eng,
		sched:       sched,
		schedules:   newReconciler(sched, log, m),
		sd:          sdNotifier{enabled: cfg.Systemd.Notify, log: log.With(logx.String("comp", "systemd"))},
		stopTimeout: stopTimeout,
	}
	a.http = httpserver.New(httpCfg, httpserver.Sources{
		Health:    a.healthy,
		Metrics:   m.Handler(),
		Schedules: func() any { return a.sched.Snapshot() },
	}, log)
	return a, nil
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }

// HTTPAddr is the bound observability address, or "".
func (a *App) HTTPAddr() string { return a.http.Addr() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) healthy() error {
	if st := a.sched.State(); st != scheduler.StateRunning {
		return fmt.Errorf("scheduler %s", st)
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return Validate(cfg) })

	cfg := a.cfgm.Get()
	if res := a.schedules.Apply(cfg); res.Err != nil {
		return res.Err
	}
	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}

	if a.store != nil {
		a.sup.Go0("journal", a.journalRuns)
	}
	a.sup.Go0("eventbus.log", a.logEvents)

	httpCfg, _ := mapHTTPConfig(cfg)
	a.http.Reconfigure(a.sup.Context(), httpCfg)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", func(c context.Context) { a.sd.watchdog(c, a.healthy) })

	a.sd.Ready(a.schedules.Len())
	a.log.Info("app started",
		logx.Int("schedules", a.schedules.Len()),
		logx.String("config", a.cfgm.Path()),
	)
	return nil
}

// logEvents mirrors bus traffic at debug level.
func (a *App) logEvents(c context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-c.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			newCfg = drainLatest(sub, newCfg)
			a.applyConfig(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// drainLatest coalesces a burst of reloads into the newest one.
func drainLatest(sub chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case newer := <-sub:
			if newer != nil {
				cfg = newer
			}
		default:
			return cfg
		}
	}
}

func (a *App) applyConfig(c context.Context, prev, next *config.Config) {
	sections, diff := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		if strings.HasSuffix(s, "(restart)") && !strings.HasPrefix(s, "http") {
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", strings.TrimSuffix(s, "(restart)")))
		}
	}

	a.logs.Apply(mapLogConfig(next))

	if hc, err := mapHTTPConfig(next); err != nil {
		a.log.Warn("invalid http config; keeping previous", logx.Err(err))
	} else {
		a.http.Reconfigure(c, hc)
	}

	res := a.schedules.Apply(next)
	if res.Err != nil {
		a.log.Warn("some schedules were not applied", logx.Err(res.Err))
	}
	a.sd.Status("running", a.schedules.Len())
	a.log.Info("config reloaded",
		logx.String("changed", strings.Join(sections, ",")),
		logx.Any("added", diff.Added),
		logx.Any("changed_schedules", diff.Changed),
		logx.Any("removed", diff.Removed),
	)
}

// Stop shuts down in dependency order. The scheduler drains running tasks
// for up to runtime.stop_timeout (unbounded when zero) or until ctx ends.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping(reason)

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := ctx, context.CancelFunc(func() {})
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
		}
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	}

	step("scheduler", a.stopTimeout, func(c context.Context) error {
		a.sched.StopAsync()
		return a.sched.Wait(c)
	})
	a.sup.Cancel()
	step("http", time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
