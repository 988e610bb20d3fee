// Package sector filters pulses by their fractional azimuth, dropping
// those inside configured removal intervals before they reach a sink.
package sector

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxIntervals caps the removal list size.
const MaxIntervals = 32

// Interval is a half-open fractional-azimuth range [Begin, End) over
// [0,1). Begin > End wraps through zero; Begin == End is empty.
type Interval struct {
	Begin float64
	End   float64
}

func (iv Interval) contains(az float64) bool {
	if iv.Begin <= iv.End {
		return az >= iv.Begin && az < iv.End
	}
	return az >= iv.Begin || az < iv.End
}

func (iv Interval) String() string {
	return fmt.Sprintf("%g:%g", iv.Begin, iv.End)
}

// ParseInterval reads the START:END form used on the command line, both
// values fractions of a revolution in [0,1].
func ParseInterval(s string) (Interval, error) {
	var iv Interval
	begin, end, ok := strings.Cut(s, ":")
	if !ok {
		return iv, fmt.Errorf("removal %q not in START:END form", s)
	}
	b, err := strconv.ParseFloat(begin, 64)
	if err != nil {
		return iv, fmt.Errorf("removal start %q: %w", begin, err)
	}
	e, err := strconv.ParseFloat(end, 64)
	if err != nil {
		return iv, fmt.Errorf("removal end %q: %w", end, err)
	}
	if b < 0 || b > 1 || e < 0 || e > 1 {
		return iv, fmt.Errorf("removal %q outside [0,1]", s)
	}
	return Interval{Begin: b, End: e}, nil
}

// Filter is an immutable removal list. Swap whole filters to reconfigure
// concurrently with a consumer loop.
type Filter struct {
	intervals []Interval
}

// New validates the removal list and builds a filter. A nil or empty list
// drops nothing.
func New(intervals []Interval) (*Filter, error) {
	if len(intervals) > MaxIntervals {
		return nil, fmt.Errorf("%d removal intervals exceeds limit %d", len(intervals), MaxIntervals)
	}
	for _, iv := range intervals {
		if iv.Begin < 0 || iv.Begin > 1 || iv.End < 0 || iv.End > 1 {
			return nil, fmt.Errorf("removal %s outside [0,1]", iv)
		}
	}
	f := &Filter{intervals: make([]Interval, len(intervals))}
	copy(f.intervals, intervals)
	return f, nil
}

// Drop reports whether a pulse at fractional azimuth az falls inside any
// removal interval. A nil filter drops nothing.
func (f *Filter) Drop(az float64) bool {
	if f == nil {
		return false
	}
	for _, iv := range f.intervals {
		if iv.contains(az) {
			return true
		}
	}
	return false
}

// Len reports the interval count.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.intervals)
}
