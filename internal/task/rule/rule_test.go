package rule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"cronpump/internal/task/bitfield"
)

var noop = ExecuteFunc(func(context.Context, *Match) bool { return true })

func mustCompile(t *testing.T, opts ...Option) *Compiled {
	t.Helper()
	r, err := New(append([]Option{noop}, opts...)...)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c, err := r.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return c
}

func mustMatch(t *testing.T, c *Compiled, at time.Time) bool {
	t.Helper()
	ok, err := c.Match(at)
	if err != nil {
		t.Fatalf("match %s: %v", at, err)
	}
	return ok
}

func TestFieldBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opt  Option
		ok   bool
	}{
		{name: "month 0", opt: Months(0)},
		{name: "month 13", opt: Months(13)},
		{name: "month 1..12", opt: Months(1, 12), ok: true},
		{name: "dom 0", opt: DaysOfMonth(0)},
		{name: "dom 32", opt: DaysOfMonth(32)},
		{name: "dom 31", opt: DaysOfMonth(1, 31), ok: true},
		{name: "dow -1", opt: DaysOfWeek(-1)},
		{name: "dow 7", opt: DaysOfWeek(7)},
		{name: "dow 0..6", opt: DaysOfWeek(0, 6), ok: true},
		{name: "hour 24", opt: Hours(24)},
		{name: "hour 23", opt: Hours(0, 23), ok: true},
		{name: "minute 60", opt: Minutes(60)},
		{name: "second 60", opt: Seconds(60)},
		{name: "second 59", opt: Seconds(0, 59), ok: true},
		{name: "year before window", opt: Years(bitfield.MinYear() - 1)},
		{name: "year after window", opt: Years(bitfield.MaxYear() + 1)},
		{name: "year in window", opt: Years(bitfield.MinYear(), bitfield.MaxYear()), ok: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(noop, tt.opt)
			if tt.ok && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrFieldOutOfRange) {
				t.Fatalf("expected ErrFieldOutOfRange, got %v", err)
			}
		})
	}
}

func TestNewRequiresTask(t *testing.T) {
	t.Parallel()

	if _, err := New(Hours(1)); !errors.Is(err, ErrNoTask) {
		t.Fatalf("expected ErrNoTask, got %v", err)
	}
	if _, err := New(Execute(nil)); !errors.Is(err, ErrNoTask) {
		t.Fatalf("expected ErrNoTask for nil task, got %v", err)
	}
}

func TestGeneratedNamesAreUnique(t *testing.T) {
	t.Parallel()

	a, _ := New(noop)
	b, _ := New(noop)
	if a.Name() == "" || a.Name() == b.Name() {
		t.Fatalf("names should be non-empty and distinct: %q %q", a.Name(), b.Name())
	}
	n, _ := New(noop, Named("  backup  "))
	if n.Name() != "backup" {
		t.Fatalf("name=%q", n.Name())
	}
}

func TestMatchExactSecond(t *testing.T) {
	t.Parallel()

	y := bitfield.MinYear() + 1
	at := time.Date(y, 3, 14, 23, 0, 0, 0, time.UTC)
	c := mustCompile(t,
		Years(y), Months(3), DaysOfMonth(14), Hours(23), Minutes(0), Seconds(0),
	)

	if !mustMatch(t, c, at) {
		t.Fatalf("expected match at %s", at)
	}
	if mustMatch(t, c, at.Add(time.Second)) || mustMatch(t, c, at.Add(-time.Second)) {
		t.Fatalf("neighbouring seconds must not match")
	}
}

func TestPartialRuleLeavesOtherFieldsOpen(t *testing.T) {
	t.Parallel()

	c := mustCompile(t, Hours(0, 23), Minutes(0), Seconds(0))
	for _, y := range []int{bitfield.MinYear(), bitfield.MinYear() + 1, bitfield.MinYear() + 30} {
		at := time.Date(y, 6, 19, 23, 0, 0, 0, time.UTC)
		if !mustMatch(t, c, at) {
			t.Fatalf("expected match at %s", at)
		}
		if mustMatch(t, c, at.Add(time.Second)) || mustMatch(t, c, at.Add(-time.Second)) {
			t.Fatalf("neighbouring seconds of %s must not match", at)
		}
	}
	if !mustMatch(t, c, time.Date(bitfield.MinYear()+1, 2, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected match at midnight")
	}
}

func TestWildcardRuleMatchesEverySecond(t *testing.T) {
	t.Parallel()

	c := mustCompile(t)
	start := time.Date(bitfield.MinYear()+1, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3600; i += 7 {
		at := start.Add(time.Duration(i) * time.Second)
		if !mustMatch(t, c, at) {
			t.Fatalf("wildcard rule missed %s", at)
		}
	}
}

func TestOnce(t *testing.T) {
	t.Parallel()

	at := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	c := mustCompile(t, Once(at))

	if !mustMatch(t, c, at) {
		t.Fatalf("once rule should match its instant")
	}
	for _, probe := range []time.Time{at.Add(time.Second), at.Add(-time.Second), at.AddDate(1, 0, 0)} {
		if mustMatch(t, c, probe) {
			t.Fatalf("once rule matched %s", probe)
		}
	}
	if !c.Expires().Equal(at.Add(time.Second)) {
		t.Fatalf("expires=%s want %s", c.Expires(), at.Add(time.Second))
	}
	if c.Expired(at.Add(time.Second)) || !c.Expired(at.Add(2*time.Second)) {
		t.Fatalf("expiration must be strictly before the evaluated instant")
	}
}

func TestOverflowBeforeMinYear(t *testing.T) {
	t.Parallel()

	c := mustCompile(t)
	_, err := c.Match(time.Date(bitfield.MinYear()-1, 12, 31, 23, 59, 59, 0, time.UTC))
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestTimeZone(t *testing.T) {
	t.Parallel()

	y := bitfield.MinYear() + 1
	c := mustCompile(t, InZone("America/Los_Angeles"), Hours(9), Minutes(0), Seconds(0))

	winter := time.Date(y, 1, 15, 17, 0, 0, 0, time.UTC)
	summer := time.Date(y, 7, 15, 16, 0, 0, 0, time.UTC)
	if !mustMatch(t, c, winter) {
		t.Fatalf("09:00 PST should match %s", winter)
	}
	if !mustMatch(t, c, summer) {
		t.Fatalf("09:00 PDT should match %s", summer)
	}
	if mustMatch(t, c, summer.Add(time.Hour)) {
		t.Fatalf("10:00 PDT must not match")
	}
	if mustMatch(t, c, time.Date(y, 7, 15, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("09:00 UTC must not match a 09:00 Los Angeles rule")
	}

	tokyo := mustCompile(t, InZone("Asia/Tokyo"), Hours(9), Minutes(0), Seconds(0))
	if !mustMatch(t, tokyo, time.Date(y, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("09:00 JST should match 00:00 UTC")
	}
	if mustMatch(t, tokyo, time.Date(y, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("09:00 UTC must not match a 09:00 Tokyo rule")
	}

	if _, err := New(noop, InZone("Mars/Olympus_Mons")); !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("expected ErrInvalidLocation, got %v", err)
	}
}

func TestCron(t *testing.T) {
	t.Parallel()

	r, err := New(noop, Cron("55,03 22,19,20 2,03,11,29,31 2,03,11,12 0,5,6"))
	if err != nil {
		t.Fatalf("cron: %v", err)
	}
	info := r.Info()
	assertInts(t, "minutes", info.Minutes, 3, 55)
	assertInts(t, "hours", info.Hours, 19, 20, 22)
	assertInts(t, "dom", info.DaysOfMonth, 2, 3, 11, 29, 31)
	assertInts(t, "months", info.Months, 2, 3, 11, 12)
	assertInts(t, "dow", info.DaysOfWeek, 0, 5, 6)
	assertInts(t, "seconds", info.Seconds, 0)
	if info.Years != nil {
		t.Fatalf("years should be wildcard, got %v", info.Years)
	}

	wild, err := New(noop, Cron("* * * *\t*"))
	if err != nil {
		t.Fatalf("tab separated cron: %v", err)
	}
	wi := wild.Info()
	if wi.Minutes != nil || wi.Hours != nil || wi.DaysOfMonth != nil || wi.Months != nil || wi.DaysOfWeek != nil {
		t.Fatalf("star fields should be wildcards: %+v", wi)
	}
	assertInts(t, "seconds", wi.Seconds, 0)

	if _, err := New(noop, Cron("61 * * *\t*")); !errors.Is(err, ErrInvalidCron) {
		t.Fatalf("expected ErrInvalidCron, got %v", err)
	}
}

func TestCronTimeZoneAndEvery(t *testing.T) {
	t.Parallel()

	r, err := New(noop, Cron("CRON_TZ=Asia/Jakarta 30 7 * * 1-5"))
	if err != nil {
		t.Fatalf("cron tz: %v", err)
	}
	if r.Location().String() != "Asia/Jakarta" {
		t.Fatalf("location=%s", r.Location())
	}
	assertInts(t, "dow", r.Info().DaysOfWeek, 1, 2, 3, 4, 5)

	plain, _ := New(noop, InZone("Europe/Berlin"), Cron("0 * * * *"))
	if plain.Location().String() != "Europe/Berlin" {
		t.Fatalf("cron without CRON_TZ must keep the rule location, got %s", plain.Location())
	}

	ev, err := New(noop, Cron("@every 15s"))
	if err != nil {
		t.Fatalf("@every: %v", err)
	}
	assertInts(t, "seconds", ev.Info().Seconds, 0, 15, 30, 45)

	if _, err := New(noop, Cron("@every 7s")); !errors.Is(err, ErrUnsupportedCron) {
		t.Fatalf("expected ErrUnsupportedCron, got %v", err)
	}
}

func TestSpecForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		minutes []int
		hours   []int
		seconds []int
		wantErr bool
	}{
		{in: "*/20 * * * *", minutes: []int{0, 20, 40}, seconds: []int{0}},
		{in: "cron:0 6 * * *", minutes: []int{0}, hours: []int{6}, seconds: []int{0}},
		{in: "07:30", minutes: []int{30}, hours: []int{7}, seconds: []int{0}},
		{in: "at:07:30:15", minutes: []int{30}, hours: []int{7}, seconds: []int{15}},
		{in: "20m", minutes: []int{0, 20, 40}, seconds: []int{0}},
		{in: "every:8h", minutes: []int{0}, hours: []int{0, 8, 16}, seconds: []int{0}},
		{in: "1s"},
		{in: "24:00", wantErr: true},
		{in: "7m", wantErr: true},
		{in: "tomorrow", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			r, err := New(noop, Spec(tt.in))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("spec %q: %v", tt.in, err)
			}
			i := r.Info()
			assertInts(t, "minutes", i.Minutes, tt.minutes...)
			assertInts(t, "hours", i.Hours, tt.hours...)
			assertInts(t, "seconds", i.Seconds, tt.seconds...)
		})
	}
}

func TestNext(t *testing.T) {
	t.Parallel()

	y := bitfield.MinYear() + 1
	c := mustCompile(t, Months(2), DaysOfMonth(29), Hours(12), Minutes(0), Seconds(0))
	from := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
	got, ok := c.Next(from, from.AddDate(8, 0, 0))
	if !ok {
		t.Fatalf("no leap day found within eight years")
	}
	if got.Month() != time.February || got.Day() != 29 || got.Hour() != 12 {
		t.Fatalf("next=%s", got)
	}
	if !mustMatch(t, c, got) {
		t.Fatalf("next result must match")
	}

	once := mustCompile(t, Once(from.Add(time.Hour)))
	if _, ok := once.Next(from.Add(time.Hour), from.AddDate(1, 0, 0)); ok {
		t.Fatalf("once rule has no run after its instant")
	}
}

type recordingRuntime struct {
	mu      sync.Mutex
	updated []string
	deleted []string
}

func (r *recordingRuntime) AddSchedule(*Rule) bool { return true }
func (r *recordingRuntime) UpdateSchedule(x *Rule) {
	r.mu.Lock()
	r.updated = append(r.updated, x.Name())
	r.mu.Unlock()
}
func (r *recordingRuntime) DeleteSchedule(name string) bool {
	r.mu.Lock()
	r.deleted = append(r.deleted, name)
	r.mu.Unlock()
	return true
}

func TestSetIsAtomicAndPropagates(t *testing.T) {
	t.Parallel()

	r, _ := New(noop, Named("job"), Hours(3))
	rt := &recordingRuntime{}
	r.Bind(rt)

	if err := r.Set(Hours(4), Minutes(99)); !errors.Is(err, ErrFieldOutOfRange) {
		t.Fatalf("expected range error, got %v", err)
	}
	assertInts(t, "hours", r.Info().Hours, 3)
	if len(rt.updated) != 0 {
		t.Fatalf("failed Set must not propagate")
	}

	if err := r.Set(Hours(4)); err != nil {
		t.Fatalf("set: %v", err)
	}
	assertInts(t, "hours", r.Info().Hours, 4)
	if len(rt.updated) != 1 || rt.updated[0] != "job" {
		t.Fatalf("updated=%v", rt.updated)
	}

	if err := r.Set(Named("job2")); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if len(rt.deleted) != 1 || rt.deleted[0] != "job" || rt.updated[1] != "job2" {
		t.Fatalf("rename should delete old entry and update new: deleted=%v updated=%v", rt.deleted, rt.updated)
	}

	if err := r.Deactivate(); err != nil || r.Active() {
		t.Fatalf("deactivate: err=%v active=%v", err, r.Active())
	}
}

func TestStringRendering(t *testing.T) {
	t.Parallel()

	r, _ := New(noop, Seconds(0), Minutes(5, 1), Hours(2))
	if got, want := r.String(), "0 1,5 2 * * * * UTC"; got != want {
		t.Fatalf("String()=%q want %q", got, want)
	}
}

func assertInts(t *testing.T, label string, got []int, want ...int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s=%v want %v", label, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s=%v want %v", label, got, want)
		}
	}
}
