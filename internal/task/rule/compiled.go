package rule

import (
	"fmt"
	"time"

	"cronpump/internal/task/bitfield"
)

// Compiled is the immutable bitmask form of a rule at one point in time.
// A change to the rule produces a new Compiled that replaces this one.
type Compiled struct {
	name string

	years   bitfield.Mask
	months  bitfield.Mask
	dom     bitfield.Mask
	dow     bitfield.Mask
	hours   bitfield.Mask
	minutes bitfield.Mask
	seconds bitfield.Mask

	loc     *time.Location
	expires time.Time
	active  bool

	rule *Rule
	task Task
}

// Compile snapshots the rule into its bitmask form.
func (r *Rule) Compile() (*Compiled, error) {
	r.mu.Lock()
	d := r.d.clone()
	r.mu.Unlock()

	c := &Compiled{
		name:    d.name,
		loc:     d.loc,
		expires: d.expires,
		active:  d.active,
		rule:    r,
		task:    d.task,
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	var err error
	if c.years, err = yearMask(d.years); err != nil {
		return nil, err
	}
	if c.months, err = fieldMonth.mask(d.months); err != nil {
		return nil, err
	}
	if c.dom, err = fieldDom.mask(d.dom); err != nil {
		return nil, err
	}
	if c.dow, err = fieldDow.mask(d.dow); err != nil {
		return nil, err
	}
	if c.hours, err = fieldHour.mask(d.hours); err != nil {
		return nil, err
	}
	if c.minutes, err = fieldMinute.mask(d.minutes); err != nil {
		return nil, err
	}
	if c.seconds, err = fieldSecond.mask(d.seconds); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Compiled) Name() string             { return c.name }
func (c *Compiled) Rule() *Rule              { return c.rule }
func (c *Compiled) Task() Task               { return c.task }
func (c *Compiled) Location() *time.Location { return c.loc }
func (c *Compiled) Expires() time.Time       { return c.expires }
func (c *Compiled) Active() bool             { return c.active }

// Expired reports whether the expiration instant lies strictly before at.
func (c *Compiled) Expired(at time.Time) bool {
	return !c.expires.IsZero() && c.expires.Before(at)
}

// Match reports whether every field accepts at, read in the rule's location.
// It returns ErrOverflow when the year cannot be represented.
func (c *Compiled) Match(at time.Time) (bool, error) {
	lt := at.In(c.loc)
	off := lt.Year() - bitfield.MinYear()
	if off < 0 || off >= bitfield.MaxWidth {
		return false, fmt.Errorf("%w: %s: year %d (min %d)", ErrOverflow, c.name, lt.Year(), bitfield.MinYear())
	}
	return c.years.Has(off) &&
		c.months.Has(int(lt.Month())) &&
		c.dom.Has(lt.Day()) &&
		c.dow.Has(int(lt.Weekday())) &&
		c.hours.Has(lt.Hour()) &&
		c.minutes.Has(lt.Minute()) &&
		c.seconds.Has(lt.Second()), nil
}

// Next returns the first matching second strictly after `after` and no later
// than `until`. It skips whole years, months, days, hours and minutes that
// cannot match, so long horizons stay cheap.
func (c *Compiled) Next(after, until time.Time) (time.Time, bool) {
	t := after.In(c.loc).Truncate(time.Second).Add(time.Second)
	for !t.After(until) {
		off := t.Year() - bitfield.MinYear()
		if off < 0 {
			t = advance(t, time.Date(bitfield.MinYear(), 1, 1, 0, 0, 0, 0, c.loc))
			continue
		}
		if off >= bitfield.MaxWidth {
			return time.Time{}, false
		}
		y, mo, d := t.Date()
		h, mi, _ := t.Clock()
		switch {
		case !c.years.Has(off):
			t = advance(t, time.Date(y+1, 1, 1, 0, 0, 0, 0, c.loc))
		case !c.months.Has(int(mo)):
			t = advance(t, time.Date(y, mo+1, 1, 0, 0, 0, 0, c.loc))
		case !c.dom.Has(d) || !c.dow.Has(int(t.Weekday())):
			t = advance(t, time.Date(y, mo, d+1, 0, 0, 0, 0, c.loc))
		case !c.hours.Has(h):
			t = advance(t, time.Date(y, mo, d, h+1, 0, 0, 0, c.loc))
		case !c.minutes.Has(mi):
			t = advance(t, time.Date(y, mo, d, h, mi+1, 0, 0, c.loc))
		case !c.seconds.Has(t.Second()):
			t = t.Add(time.Second)
		default:
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// advance guarantees forward progress across DST transitions, where a
// wall-clock boundary can resolve to an earlier instant.
func advance(cur, next time.Time) time.Time {
	if !next.After(cur) {
		return cur.Add(time.Second)
	}
	return next
}
