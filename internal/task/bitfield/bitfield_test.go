package bitfield

import (
	"errors"
	"testing"
	"time"
)

func TestCompile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		values  []int
		width   int
		want    Mask
		wantErr bool
	}{
		{name: "empty is wildcard", values: nil, width: 60, want: Wildcard},
		{name: "zero and three", values: []int{0, 3}, width: 60, want: 0b1001},
		{name: "top value", values: []int{0, 3, 62}, width: 63, want: 1<<62 | 0b1001},
		{name: "duplicates collapse", values: []int{5, 5, 5}, width: 60, want: 1 << 5},
		{name: "value equals width", values: []int{60}, width: 60, wantErr: true},
		{name: "negative", values: []int{-1}, width: 60, wantErr: true},
		{name: "sixty three", values: []int{63}, width: 63, wantErr: true},
		{name: "width too large", values: []int{1}, width: 64, wantErr: true},
		{name: "zero width", values: nil, width: 0, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Compile(tt.values, tt.width)
			if tt.wantErr {
				if !errors.Is(err, ErrFieldOutOfRange) {
					t.Fatalf("expected ErrFieldOutOfRange, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got != tt.want {
				t.Fatalf("mask=%b want %b", got, tt.want)
			}
		})
	}
}

func TestMaskHasMatchesMembership(t *testing.T) {
	t.Parallel()

	set := []int{1, 7, 19, 42}
	m, err := Compile(set, 60)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	in := map[int]bool{}
	for _, v := range set {
		in[v] = true
	}
	for v := 0; v < 60; v++ {
		if m.Has(v) != in[v] {
			t.Fatalf("Has(%d)=%v want %v", v, m.Has(v), in[v])
		}
	}
	if m.Has(-1) || m.Has(63) || m.Has(100) {
		t.Fatalf("out-of-range probes must never match")
	}
}

func TestWildcardAcceptsEveryValue(t *testing.T) {
	t.Parallel()

	for v := 0; v < MaxWidth; v++ {
		if !Wildcard.Has(v) {
			t.Fatalf("wildcard rejected %d", v)
		}
	}
	if Wildcard.Values(60) != nil {
		t.Fatalf("wildcard values should be nil")
	}
}

func TestValuesAndNormalize(t *testing.T) {
	t.Parallel()

	m, _ := Compile([]int{9, 2, 2, 31}, 32)
	got := m.Values(32)
	want := []int{2, 9, 31}
	if len(got) != len(want) {
		t.Fatalf("values=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("values=%v want %v", got, want)
		}
	}

	n := Normalize([]int{3, 1, 3, 2, 1})
	if len(n) != 3 || n[0] != 1 || n[1] != 2 || n[2] != 3 {
		t.Fatalf("normalize=%v", n)
	}
}

func TestYearWindow(t *testing.T) {
	t.Parallel()

	first := MinYear()
	if first != time.Now().UTC().Year()-1 && first != time.Now().UTC().Year()-2 {
		t.Fatalf("unexpected MinYear %d", first)
	}
	if MinYear() != first {
		t.Fatalf("MinYear must be stable")
	}

	if off, err := YearOffset(first); err != nil || off != 0 {
		t.Fatalf("offset(min)=%d err=%v", off, err)
	}
	if off, err := YearOffset(MaxYear()); err != nil || off != MaxWidth-1 {
		t.Fatalf("offset(max)=%d err=%v", off, err)
	}
	if _, err := YearOffset(first - 1); !errors.Is(err, ErrFieldOutOfRange) {
		t.Fatalf("expected range error below window, got %v", err)
	}
	if _, err := YearOffset(MaxYear() + 1); !errors.Is(err, ErrFieldOutOfRange) {
		t.Fatalf("expected range error above window, got %v", err)
	}
}
