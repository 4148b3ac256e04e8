// Package shift turns raw roster labels into calendar-ready shift values.
//
// A Shift is identified by a name-based UUID derived from the employer, the
// employee and the shift's local start time, so the same roster cell always
// produces the same identifier and re-running a sync is idempotent.
package shift

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Shift is one calendar-worthy work event. Values are immutable once built
// by a Factory.
type Shift struct {
	Date     time.Time
	Label    string
	Start    time.Time
	Duration time.Duration
	Summary  string
	UID      uuid.UUID
	Sequence int
	// AllDay marks labels with no start time; they are still represented as a
	// timed event spanning the whole day.
	AllDay bool
}

// End returns the instant the shift finishes.
func (s Shift) End() time.Time {
	return s.Start.Add(s.Duration)
}

// Equal reports whether a and b are the same shift. Identity is the UID alone.
func Equal(a, b Shift) bool {
	return a.UID == b.UID
}

// Less orders shifts by start time, falling back to UID for a stable order.
func Less(a, b Shift) bool {
	if !a.Start.Equal(b.Start) {
		return a.Start.Before(b.Start)
	}
	return a.UID.String() < b.UID.String()
}

// Sort orders shifts in place by start time.
func Sort(shifts []Shift) {
	sort.Slice(shifts, func(i, j int) bool { return Less(shifts[i], shifts[j]) })
}

// Span returns the first and last shift dates. ok is false for an empty slice.
func Span(shifts []Shift) (first, last time.Time, ok bool) {
	for i, s := range shifts {
		if i == 0 || s.Date.Before(first) {
			first = s.Date
		}
		if i == 0 || s.Date.After(last) {
			last = s.Date
		}
	}
	return first, last, len(shifts) > 0
}
