package rule

import (
	"fmt"

	"cronpump/internal/task/bitfield"
)

type field struct {
	name     string
	min, max int
}

var (
	fieldMonth  = field{name: "month", min: 1, max: 12}
	fieldDom    = field{name: "day_of_month", min: 1, max: 31}
	fieldDow    = field{name: "day_of_week", min: 0, max: 6}
	fieldHour   = field{name: "hour", min: 0, max: 23}
	fieldMinute = field{name: "minute", min: 0, max: 59}
	fieldSecond = field{name: "second", min: 0, max: 59}
)

func (f field) check(values []int) error {
	for _, v := range values {
		if v < f.min || v > f.max {
			return fmt.Errorf("%w: %s %d not in [%d,%d]", ErrFieldOutOfRange, f.name, v, f.min, f.max)
		}
	}
	return nil
}

func (f field) mask(values []int) (bitfield.Mask, error) {
	if err := f.check(values); err != nil {
		return 0, err
	}
	return bitfield.Compile(values, f.max+1)
}

func checkYears(values []int) error {
	for _, y := range values {
		if _, err := bitfield.YearOffset(y); err != nil {
			return fmt.Errorf("year: %w", err)
		}
	}
	return nil
}

func yearMask(values []int) (bitfield.Mask, error) {
	if len(values) == 0 {
		return bitfield.Wildcard, nil
	}
	offs := make([]int, 0, len(values))
	for _, y := range values {
		off, err := bitfield.YearOffset(y)
		if err != nil {
			return 0, fmt.Errorf("year: %w", err)
		}
		offs = append(offs, off)
	}
	return bitfield.Compile(offs, bitfield.MaxWidth)
}

func cloneInts(v []int) []int {
	if len(v) == 0 {
		return nil
	}
	return bitfield.Normalize(append([]int(nil), v...))
}
