package rule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronStar is the bit robfig/cron sets on a field written as "*" or "?".
const cronStar = uint64(1) << 63

// Cron replaces the field constraints with a standard five-field cron
// expression (minute hour day-of-month month day-of-week). Descriptors such
// as "@daily" and a leading CRON_TZ= are accepted; "@every" is accepted when
// the interval divides a minute, an hour, or a day evenly.
//
// Seconds are pinned to 0 and the year is left unconstrained. Unlike classic
// cron, a rule that restricts both day-of-month and day-of-week requires both
// to match.
func Cron(expr string) Option {
	return func(d *definition) error {
		expr = strings.TrimSpace(expr)
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidCron, expr, err)
		}
		switch s := sched.(type) {
		case *cron.SpecSchedule:
			_ = EverySecond()(d)
			d.seconds = cronValues(s.Second, fieldSecond)
			d.minutes = cronValues(s.Minute, fieldMinute)
			d.hours = cronValues(s.Hour, fieldHour)
			d.dom = cronValues(s.Dom, fieldDom)
			d.months = cronValues(s.Month, fieldMonth)
			d.dow = cronValues(s.Dow, fieldDow)
			if hasTZPrefix(expr) && s.Location != nil {
				d.loc = s.Location
			}
			return nil
		case cron.ConstantDelaySchedule:
			return every(s.Delay)(d)
		default:
			return fmt.Errorf("%w: %q", ErrUnsupportedCron, expr)
		}
	}
}

func hasTZPrefix(expr string) bool {
	return strings.HasPrefix(expr, "CRON_TZ=") || strings.HasPrefix(expr, "TZ=")
}

func cronValues(bits uint64, f field) []int {
	if bits&cronStar != 0 {
		return nil
	}
	out := make([]int, 0, 8)
	for v := f.min; v <= f.max; v++ {
		if bits&(uint64(1)<<uint(v)) != 0 {
			out = append(out, v)
		}
	}
	return out
}

// Every fires on a fixed cadence aligned to the wall clock. The interval must
// be a whole number of seconds that divides a minute, an hour, or a day.
func Every(interval time.Duration) Option { return every(interval) }

func every(iv time.Duration) Option {
	return func(d *definition) error {
		if iv <= 0 || iv%time.Second != 0 {
			return fmt.Errorf("%w: interval %s must be a positive whole number of seconds", ErrUnsupportedCron, iv)
		}
		_ = EverySecond()(d)
		switch {
		case iv < time.Minute && time.Minute%iv == 0:
			d.seconds = stepped(0, 59, int(iv/time.Second))
		case iv < time.Hour && iv%time.Minute == 0 && time.Hour%iv == 0:
			d.seconds = []int{0}
			d.minutes = stepped(0, 59, int(iv/time.Minute))
		case iv <= 24*time.Hour && iv%time.Hour == 0 && (24*time.Hour)%iv == 0:
			d.seconds, d.minutes = []int{0}, []int{0}
			d.hours = stepped(0, 23, int(iv/time.Hour))
		default:
			return fmt.Errorf("%w: interval %s does not divide a minute, hour or day", ErrUnsupportedCron, iv)
		}
		if len(d.seconds) == 60 {
			d.seconds = nil
		}
		return nil
	}
}

func stepped(from, to, step int) []int {
	out := make([]int, 0, (to-from)/step+1)
	for v := from; v <= to; v += step {
		out = append(out, v)
	}
	return out
}

var reClock = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})(?::(\d{2}))?\s*$`)

// Spec parses the textual schedule forms accepted in configuration files.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "CRON_TZ=Asia/Jakarta 0 7 * * 1-5", "@hourly"
//   - Daily time of day: "07:30" or "07:30:15"
//   - Interval: "15s", "5m", "6h" (aligned to the clock)
//
// Optional prefixes force a form: "cron:", "at:", "every:" / "interval:".
func Spec(raw string) Option {
	return func(d *definition) error {
		s := strings.TrimSpace(raw)
		if s == "" {
			return fmt.Errorf("%w: empty schedule", ErrUnsupportedCron)
		}
		low := strings.ToLower(s)
		switch {
		case strings.HasPrefix(low, "cron:"):
			return Cron(strings.TrimSpace(s[len("cron:"):]))(d)
		case strings.HasPrefix(low, "at:"):
			return clockSpec(strings.TrimSpace(s[len("at:"):]))(d)
		case strings.HasPrefix(low, "every:"):
			return durationSpec(strings.TrimSpace(s[len("every:"):]))(d)
		case strings.HasPrefix(low, "interval:"):
			return durationSpec(strings.TrimSpace(s[len("interval:"):]))(d)
		}

		if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
			return Cron(s)(d)
		}
		if reClock.MatchString(s) {
			return clockSpec(s)(d)
		}
		if _, err := time.ParseDuration(s); err == nil {
			return durationSpec(s)(d)
		}
		return fmt.Errorf("%w: %q (use cron like '*/5 * * * *', a time like '07:30', or an interval like '5m')", ErrUnsupportedCron, raw)
	}
}

func clockSpec(v string) Option {
	return func(d *definition) error {
		m := reClock.FindStringSubmatch(v)
		if m == nil {
			return fmt.Errorf("%w: invalid time of day %q", ErrUnsupportedCron, v)
		}
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		sec := 0
		if m[3] != "" {
			sec, _ = strconv.Atoi(m[3])
		}
		return EveryDayAt(h, mi, sec)(d)
	}
}

func durationSpec(v string) Option {
	return func(d *definition) error {
		iv, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: invalid interval %q", ErrUnsupportedCron, v)
		}
		return every(iv)(d)
	}
}
