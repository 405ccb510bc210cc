package scheduler

import (
	"context"
	"time"

	"cronpump/internal/eventbus"
	rtsup "cronpump/internal/runtime/supervisor"
	"cronpump/internal/task/rule"
	logx "cronpump/pkg/logx"
)

// loop evaluates consecutive seconds. The target instant advances by exactly
// one second per iteration; when evaluation falls behind, the sleep is
// skipped until the loop has caught up.
func (s *Service) loop(ctx context.Context) {
	next := time.Now().UTC().Truncate(time.Second).Add(time.Second)
	timer := time.NewTimer(0)
	<-timer.C
	defer timer.Stop()

	for {
		s.next.Store(next.UnixNano())
		if d := time.Until(next); d > 0 {
			timer.Reset(d)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return
		}
		s.evaluate(next)
		next = next.Add(time.Second)
	}
}

// evaluate runs one tick. A panic outside a single rule is reported and the
// tick is abandoned; the loop carries on with the next second.
func (s *Service) evaluate(at time.Time) {
	defer func() {
		if p := rtsup.Recover("scheduler.tick", recover()); p != nil {
			s.reportEvaluation("", at, p)
		}
	}()
	s.ticks.Add(1)
	s.metrics.Tick(time.Since(at))
	for _, c := range s.reg.Snapshot() {
		s.evaluateOne(at, c)
	}
}

func (s *Service) evaluateOne(at time.Time, c *rule.Compiled) {
	defer func() {
		if p := rtsup.Recover(c.Name(), recover()); p != nil {
			s.reportEvaluation(c.Name(), at, p)
		}
	}()

	if c.Expired(at) {
		if s.reg.RemoveIfSame(c) {
			s.metrics.Expired()
			s.metrics.SetRules(s.reg.Len())
			s.publish("schedule.expired", c.Name())
			s.log.Debug("schedule expired", logx.String("name", c.Name()), logx.Time("expires", c.Expires()))
		}
		return
	}

	ok, err := c.Match(at)
	if err != nil {
		s.reportEvaluation(c.Name(), at, err)
		return
	}
	if !ok {
		return
	}

	m := &rule.Match{
		ID:        matchSeq.Add(1),
		Scheduled: at,
		Rule:      c.Rule(),
		Runtime:   s,
	}
	s.metrics.Matched()
	if err := s.engine.Dispatch(m, c.Task()); err != nil {
		s.log.Debug("dispatch rejected", logx.String("name", c.Name()), logx.Int64("match", m.ID), logx.Err(err))
	}
}

func (s *Service) reportEvaluation(name string, at time.Time, err error) {
	s.metrics.EvaluationError()
	s.engine.Report(&EvaluationError{Rule: name, At: at, Err: err})
}

func (s *Service) publish(typ, name string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ScheduleEvent{Name: name}})
}
