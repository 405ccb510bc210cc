package rule

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Option changes one aspect of a rule definition and validates it on the spot.
type Option func(*definition) error

// Named sets the registry key. Empty keeps the current (or generated) name.
func Named(name string) Option {
	return func(d *definition) error {
		d.name = strings.TrimSpace(name)
		return nil
	}
}

// Years restricts matching to the given calendar years. Years must fall
// inside the window reported by bitfield.MinYear/MaxYear.
func Years(v ...int) Option {
	return func(d *definition) error {
		if err := checkYears(v); err != nil {
			return err
		}
		d.years = cloneInts(v)
		return nil
	}
}

// Months takes values 1 (January) through 12.
func Months(v ...int) Option {
	return func(d *definition) error {
		if err := fieldMonth.check(v); err != nil {
			return err
		}
		d.months = cloneInts(v)
		return nil
	}
}

func DaysOfMonth(v ...int) Option {
	return func(d *definition) error {
		if err := fieldDom.check(v); err != nil {
			return err
		}
		d.dom = cloneInts(v)
		return nil
	}
}

// DaysOfWeek takes values 0 (Sunday) through 6.
func DaysOfWeek(v ...int) Option {
	return func(d *definition) error {
		if err := fieldDow.check(v); err != nil {
			return err
		}
		d.dow = cloneInts(v)
		return nil
	}
}

// Weekdays is DaysOfWeek for time.Weekday values.
func Weekdays(days ...time.Weekday) Option {
	v := make([]int, len(days))
	for i, wd := range days {
		v[i] = int(wd)
	}
	return DaysOfWeek(v...)
}

func Hours(v ...int) Option {
	return func(d *definition) error {
		if err := fieldHour.check(v); err != nil {
			return err
		}
		d.hours = cloneInts(v)
		return nil
	}
}

func Minutes(v ...int) Option {
	return func(d *definition) error {
		if err := fieldMinute.check(v); err != nil {
			return err
		}
		d.minutes = cloneInts(v)
		return nil
	}
}

func Seconds(v ...int) Option {
	return func(d *definition) error {
		if err := fieldSecond.check(v); err != nil {
			return err
		}
		d.seconds = cloneInts(v)
		return nil
	}
}

// EverySecond clears every field.
func EverySecond() Option {
	return func(d *definition) error {
		d.years, d.months, d.dom, d.dow = nil, nil, nil, nil
		d.hours, d.minutes, d.seconds = nil, nil, nil
		return nil
	}
}

// EveryMinute fires at second 0 of every minute.
func EveryMinute() Option {
	return func(d *definition) error {
		_ = EverySecond()(d)
		d.seconds = []int{0}
		return nil
	}
}

// EveryHour fires at minute 0, second 0.
func EveryHour() Option {
	return func(d *definition) error {
		_ = EveryMinute()(d)
		d.minutes = []int{0}
		return nil
	}
}

// EveryDayAt fires once a day at the given wall-clock time in the rule's
// location.
func EveryDayAt(hour, minute, second int) Option {
	return func(d *definition) error {
		if err := fieldHour.check([]int{hour}); err != nil {
			return err
		}
		if err := fieldMinute.check([]int{minute}); err != nil {
			return err
		}
		if err := fieldSecond.check([]int{second}); err != nil {
			return err
		}
		_ = EverySecond()(d)
		d.hours, d.minutes, d.seconds = []int{hour}, []int{minute}, []int{second}
		return nil
	}
}

// Once pins every field to t (in UTC) and expires the rule one second later,
// so it fires exactly once and is then removed.
func Once(t time.Time) Option {
	return func(d *definition) error {
		u := t.UTC().Truncate(time.Second)
		if err := checkYears([]int{u.Year()}); err != nil {
			return err
		}
		d.loc = time.UTC
		d.years = []int{u.Year()}
		d.months = []int{int(u.Month())}
		d.dom = []int{u.Day()}
		d.dow = nil
		d.hours = []int{u.Hour()}
		d.minutes = []int{u.Minute()}
		d.seconds = []int{u.Second()}
		d.expires = u.Add(time.Second)
		return nil
	}
}

// InLocation evaluates the fields in loc. nil means UTC.
func InLocation(loc *time.Location) Option {
	return func(d *definition) error {
		if loc == nil {
			loc = time.UTC
		}
		d.loc = loc
		return nil
	}
}

// InZone loads an IANA zone name such as "America/Los_Angeles".
func InZone(name string) Option {
	return func(d *definition) error {
		name = strings.TrimSpace(name)
		if name == "" {
			d.loc = time.UTC
			return nil
		}
		loc, err := time.LoadLocation(name)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidLocation, name, err)
		}
		d.loc = loc
		return nil
	}
}

func UTC() Option { return InLocation(time.UTC) }

// ExpiresAt stops the rule from firing after t. Zero clears the expiration.
func ExpiresAt(t time.Time) Option {
	return func(d *definition) error {
		d.expires = t
		return nil
	}
}

// ExpiresAfter is ExpiresAt(now + ttl).
func ExpiresAfter(ttl time.Duration) Option {
	return func(d *definition) error {
		d.expires = time.Now().Add(ttl)
		return nil
	}
}

func Active(active bool) Option {
	return func(d *definition) error {
		d.active = active
		return nil
	}
}

// Execute sets the task run on every match.
func Execute(t Task) Option {
	return func(d *definition) error {
		if t == nil {
			return ErrNoTask
		}
		d.task = t
		return nil
	}
}

func ExecuteFunc(fn func(ctx context.Context, m *Match) bool) Option {
	if fn == nil {
		return Execute(nil)
	}
	return Execute(TaskFunc(fn))
}
