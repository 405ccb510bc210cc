// Package bitfield turns calendar field value sets into uint64 masks.
//
// Bit n of a Mask is set when value n is accepted. A wildcard has every bit
// set, so membership is a single AND regardless of which value is tested.
package bitfield

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"sync"
	"time"
)

// MaxWidth is the largest number of distinct values a field can hold.
// The top bit of the mask is never addressed by a value.
const MaxWidth = 63

// Wildcard accepts every value.
const Wildcard Mask = ^Mask(0)

var ErrFieldOutOfRange = errors.New("field value out of range")

// Mask is a compiled field. The zero Mask accepts nothing.
type Mask uint64

// Compile ORs 1<<v for every value. An empty value set yields Wildcard.
// Values must lie in [0, width) and width must not exceed MaxWidth.
func Compile(values []int, width int) (Mask, error) {
	if width <= 0 || width > MaxWidth {
		return 0, fmt.Errorf("%w: width %d not in [1,%d]", ErrFieldOutOfRange, width, MaxWidth)
	}
	if len(values) == 0 {
		return Wildcard, nil
	}
	var m Mask
	for _, v := range values {
		if v < 0 || v >= width {
			return 0, fmt.Errorf("%w: %d not in [0,%d]", ErrFieldOutOfRange, v, width-1)
		}
		m |= 1 << uint(v)
	}
	return m, nil
}

// Has reports whether v is accepted.
func (m Mask) Has(v int) bool {
	if v < 0 || v >= MaxWidth {
		return false
	}
	return m&(1<<uint(v)) != 0
}

func (m Mask) IsWildcard() bool { return m == Wildcard }

// Values lists the accepted values below width in ascending order.
// A wildcard returns nil.
func (m Mask) Values(width int) []int {
	if m.IsWildcard() {
		return nil
	}
	if width > MaxWidth {
		width = MaxWidth
	}
	out := make([]int, 0, bits.OnesCount64(uint64(m)))
	for v := 0; v < width; v++ {
		if m.Has(v) {
			out = append(out, v)
		}
	}
	return out
}

// Normalize sorts and de-duplicates a value set in place.
func Normalize(values []int) []int {
	if len(values) < 2 {
		return values
	}
	sort.Ints(values)
	out := values[:1]
	for _, v := range values[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

var (
	minYearOnce sync.Once
	minYear     int
)

// MinYear is the first representable year: the year before the process
// first asked for it. It never changes afterwards.
func MinYear() int {
	minYearOnce.Do(func() {
		minYear = time.Now().UTC().Year() - 1
	})
	return minYear
}

// MaxYear is the last representable year.
func MaxYear() int { return MinYear() + MaxWidth - 1 }

// YearOffset maps a calendar year to its bit position.
func YearOffset(year int) (int, error) {
	off := year - MinYear()
	if off < 0 || off >= MaxWidth {
		return 0, fmt.Errorf("%w: year %d not in [%d,%d]", ErrFieldOutOfRange, year, MinYear(), MaxYear())
	}
	return off, nil
}
