package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cronpump/internal/config"
	"cronpump/internal/observability/metrics"
	"cronpump/internal/task/rule"
	"cronpump/internal/task/scheduler"
	logx "cronpump/pkg/logx"
)

// reconciler keeps the scheduler in line with the schedules declared in
// config. It only touches rules it created; retry rules and rules added
// through the API are left alone.
type reconciler struct {
	sched   *scheduler.Service
	log     logx.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	rules map[string]*rule.Rule
	keys  map[string]scheduleKey
}

// scheduleKey changes whenever the rule built from a schedule would.
type scheduleKey struct {
	hash      uint64
	defaultTZ string
}

type reconcileResult struct {
	Added   []string
	Updated []string
	Removed []string
	Err     error
}

func newReconciler(sched *scheduler.Service, log logx.Logger, m *metrics.Metrics) *reconciler {
	return &reconciler{
		sched:   sched,
		log:     log,
		metrics: m,
		rules:   map[string]*rule.Rule{},
		keys:    map[string]scheduleKey{},
	}
}

func buildRule(sc config.ScheduleConfig, defaultTZ string, log logx.Logger, m *metrics.Metrics) (*rule.Rule, error) {
	opts, err := sc.RuleOptions(defaultTZ)
	if err != nil {
		return nil, err
	}
	task, err := buildTask(sc, log, m)
	if err != nil {
		return nil, err
	}
	return rule.New(append(opts, rule.Execute(task))...)
}

// Apply adds, replaces and removes config-managed rules. A schedule that
// fails to build keeps its previous rule, if any.
func (c *reconciler) Apply(cfg *config.Config) reconcileResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		res  reconcileResult
		errs []error
	)
	seen := make(map[string]bool, len(cfg.Schedules))
	for _, sc := range cfg.Schedules {
		// Rules are registered under the trimmed name.
		name := strings.TrimSpace(sc.Name)
		seen[name] = true
		key := scheduleKey{hash: sc.Hash(), defaultTZ: cfg.Runtime.Timezone}
		if prev, ok := c.keys[name]; ok && prev == key {
			continue
		}

		r, err := buildRule(sc, cfg.Runtime.Timezone, c.log, c.metrics)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: %w", name, err))
			continue
		}

		old, existed := c.rules[name]
		if existed {
			c.sched.UpdateSchedule(r)
			if old != r {
				old.Bind(nil)
			}
			res.Updated = append(res.Updated, name)
		} else {
			if r.Active() && !c.sched.AddSchedule(r) {
				errs = append(errs, fmt.Errorf("schedule %q: name already registered", name))
				continue
			}
			res.Added = append(res.Added, name)
		}
		c.rules[name] = r
		c.keys[name] = key
	}

	for name, r := range c.rules {
		if seen[name] {
			continue
		}
		c.sched.DeleteSchedule(name)
		r.Bind(nil)
		delete(c.rules, name)
		delete(c.keys, name)
		res.Removed = append(res.Removed, name)
	}
	sort.Strings(res.Removed)
	res.Err = errors.Join(errs...)
	return res
}

func (c *reconciler) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rules)
}
