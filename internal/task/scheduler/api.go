package scheduler

import (
	"strings"
	"time"

	"cronpump/internal/task/rule"
	logx "cronpump/pkg/logx"
)

// AddSchedule registers r under its name and binds it to this runtime, so
// later r.Set calls take effect here. It returns false when the name is
// already registered or r is inactive.
func (s *Service) AddSchedule(r *rule.Rule) bool {
	if !s.reg.Add(r) {
		return false
	}
	r.Bind(s)
	s.metrics.SetRules(s.reg.Len())
	s.publish("schedule.added", r.Name())
	s.logRegistered("schedule registered", r)
	return true
}

// UpdateSchedule recompiles r and replaces the entry with the same name,
// registering it when absent. An inactive rule is removed from evaluation
// but stays bound, so reactivating it registers it again.
func (s *Service) UpdateSchedule(r *rule.Rule) {
	if r == nil {
		return
	}
	if err := s.reg.Update(r); err != nil {
		s.log.Warn("schedule update rejected", logx.String("name", r.Name()), logx.Err(err))
		return
	}
	r.Bind(s)
	s.metrics.SetRules(s.reg.Len())
	s.publish("schedule.updated", r.Name())
	s.logRegistered("schedule updated", r)
}

// DeleteSchedule removes the named entry and detaches its rule.
func (s *Service) DeleteSchedule(name string) bool {
	r, ok := s.reg.Delete(name)
	if !ok {
		return false
	}
	if r != nil && r.BoundTo(s) {
		r.Bind(nil)
	}
	s.metrics.SetRules(s.reg.Len())
	s.publish("schedule.deleted", name)
	s.log.Debug("schedule deleted", logx.String("name", name))
	return true
}

// ListScheduleNames returns the registered names in sorted order.
func (s *Service) ListScheduleNames() []string { return s.reg.Names() }

func (s *Service) Snapshot() Snapshot {
	now := time.Now()
	snap := Snapshot{
		State:  s.State(),
		Ticks:  s.ticks.Load(),
		Engine: s.engine.Snapshot(),
	}
	if snap.State != StateStopped {
		if n := s.next.Load(); n != 0 {
			snap.Next = time.Unix(0, n).UTC()
		}
	}
	for _, c := range s.reg.Snapshot() {
		snap.Schedules = append(snap.Schedules, ScheduleInfo{
			Info: c.Rule().Info(),
			Next: PreviewNext(c, now, s.cfg.PreviewRuns, s.cfg.PreviewHorizon),
		})
	}
	return snap
}

// PreviewNext lists up to n upcoming fire times of c after from.
func PreviewNext(c *rule.Compiled, from time.Time, n int, horizon time.Duration) []time.Time {
	until := from.Add(horizon)
	if exp := c.Expires(); !exp.IsZero() && exp.Before(until) {
		until = exp
	}
	out := make([]time.Time, 0, n)
	cur := from
	for len(out) < n {
		t, ok := c.Next(cur, until)
		if !ok {
			break
		}
		out = append(out, t)
		cur = t
	}
	return out
}

func (s *Service) logRegistered(msg string, r *rule.Rule) {
	if !s.log.Enabled(logx.LevelDebug) {
		return
	}
	fields := []logx.Field{logx.String("name", r.Name()), logx.String("fields", r.String())}
	if c, ok := s.reg.Get(r.Name()); ok {
		next := PreviewNext(c, time.Now(), s.cfg.PreviewRuns, s.cfg.PreviewHorizon)
		if len(next) > 0 {
			parts := make([]string, len(next))
			for i, t := range next {
				parts[i] = t.In(c.Location()).Format(time.RFC3339)
			}
			fields = append(fields, logx.String("next", strings.Join(parts, ", ")))
		}
	}
	s.log.Debug(msg, fields...)
}
