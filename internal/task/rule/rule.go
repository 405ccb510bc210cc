package rule

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Rule is a mutable schedule definition. It is safe for concurrent use; tasks
// commonly mutate their own rule while the evaluation loop reads it.
type Rule struct {
	mu sync.Mutex
	d  definition
	rt Runtime
}

type definition struct {
	name string

	years   []int
	months  []int
	dom     []int
	dow     []int
	hours   []int
	minutes []int
	seconds []int

	loc     *time.Location
	expires time.Time
	active  bool
	task    Task
}

// New builds a rule. Options are applied in order; the first invalid one
// aborts construction. A rule needs a task, and gets a random name when none
// is given.
func New(opts ...Option) (*Rule, error) {
	d := definition{loc: time.UTC, active: true}
	if err := d.apply(opts); err != nil {
		return nil, err
	}
	if d.task == nil {
		return nil, ErrNoTask
	}
	if d.name == "" {
		d.name = uuid.NewString()
	}
	return &Rule{d: d}, nil
}

// MustNew is New for static definitions; it panics on error.
func MustNew(opts ...Option) *Rule {
	r, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return r
}

func (d *definition) apply(opts []Option) error {
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(d); err != nil {
			return err
		}
	}
	return nil
}

// Set applies options atomically: either all of them take effect or none do.
// A rule bound to a runtime is recompiled there after a successful change.
func (r *Rule) Set(opts ...Option) error {
	r.mu.Lock()
	next := r.d.clone()
	if err := next.apply(opts); err != nil {
		r.mu.Unlock()
		return err
	}
	if next.task == nil {
		r.mu.Unlock()
		return ErrNoTask
	}
	if next.name == "" {
		next.name = r.d.name
	}
	prevName := r.d.name
	r.d = next
	rt := r.rt
	r.mu.Unlock()

	if rt != nil {
		if prevName != next.name {
			rt.DeleteSchedule(prevName)
			r.Bind(rt)
		}
		rt.UpdateSchedule(r)
	}
	return nil
}

// Deactivate marks the rule inactive. A bound rule leaves its runtime's
// registry but stays bound, so activating it again re-registers it.
func (r *Rule) Deactivate() error { return r.Set(Active(false)) }

// Bind attaches the runtime that Set propagates changes to. Passing nil
// detaches the rule.
func (r *Rule) Bind(rt Runtime) {
	r.mu.Lock()
	r.rt = rt
	r.mu.Unlock()
}

// BoundTo reports whether rt is the runtime the rule propagates to.
func (r *Rule) BoundTo(rt Runtime) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rt == rt
}

func (r *Rule) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.name
}

func (r *Rule) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.active
}

func (r *Rule) Location() *time.Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.loc
}

// Expires returns the expiration instant; zero means unbounded.
func (r *Rule) Expires() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.expires
}

func (r *Rule) Task() Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d.task
}

// Info is a read-only description of a rule, used for diagnostics.
type Info struct {
	Name        string    `json:"name"`
	Years       []int     `json:"years,omitempty"`
	Months      []int     `json:"months,omitempty"`
	DaysOfMonth []int     `json:"days_of_month,omitempty"`
	DaysOfWeek  []int     `json:"days_of_week,omitempty"`
	Hours       []int     `json:"hours,omitempty"`
	Minutes     []int     `json:"minutes,omitempty"`
	Seconds     []int     `json:"seconds,omitempty"`
	Location    string    `json:"location"`
	Expires     time.Time `json:"expires,omitempty"`
	Active      bool      `json:"active"`
}

func (r *Rule) Info() Info {
	r.mu.Lock()
	d := r.d.clone()
	r.mu.Unlock()
	return Info{
		Name:        d.name,
		Years:       d.years,
		Months:      d.months,
		DaysOfMonth: d.dom,
		DaysOfWeek:  d.dow,
		Hours:       d.hours,
		Minutes:     d.minutes,
		Seconds:     d.seconds,
		Location:    d.loc.String(),
		Expires:     d.expires,
		Active:      d.active,
	}
}

// String renders the fields in a crontab-like order with a leading seconds
// column and trailing year column.
func (r *Rule) String() string {
	i := r.Info()
	col := func(v []int) string {
		if len(v) == 0 {
			return "*"
		}
		parts := make([]string, len(v))
		for k, n := range v {
			parts[k] = fmt.Sprint(n)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprintf("%s %s %s %s %s %s %s %s",
		col(i.Seconds), col(i.Minutes), col(i.Hours), col(i.DaysOfMonth),
		col(i.Months), col(i.DaysOfWeek), col(i.Years), i.Location)
}

func (d definition) clone() definition {
	d.years = cloneInts(d.years)
	d.months = cloneInts(d.months)
	d.dom = cloneInts(d.dom)
	d.dow = cloneInts(d.dow)
	d.hours = cloneInts(d.hours)
	d.minutes = cloneInts(d.minutes)
	d.seconds = cloneInts(d.seconds)
	return d
}
