package shift

import (
	"fmt"
	"strings"
	"time"
)

// ClockTime is a time of day in the employer's zone.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM" (24-hour).
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid time of day %q (want HH:MM): %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Tables maps normalised labels to their meaning and, for timed shifts, to
// their start time. Labels absent from StartTimes are whole-day entries.
type Tables struct {
	Meanings   map[string]string
	StartTimes map[string]ClockTime
}

// DefaultTables returns the label tables of the district's term roster.
func DefaultTables() Tables {
	return Tables{
		Meanings: map[string]string{
			"D":  "Day",
			"MF": "Morning Float",
			"F":  "Float",
			"E":  "Evening",
			"N":  "Night",
			"SR": "Sick Relief",
			"T":  "Teaching Day",
			"AL": "Annual Leave",
		},
		StartTimes: map[string]ClockTime{
			"D":  {Hour: 8},
			"MF": {Hour: 10},
			"F":  {Hour: 12, Minute: 30},
			"E":  {Hour: 14},
			"N":  {Hour: 22, Minute: 30},
		},
	}
}

// normalized returns a copy of t with keys normalised the same way labels are.
func (t Tables) normalized() Tables {
	out := Tables{
		Meanings:   make(map[string]string, len(t.Meanings)),
		StartTimes: make(map[string]ClockTime, len(t.StartTimes)),
	}
	for label, meaning := range t.Meanings {
		out.Meanings[NormalizeLabel(label)] = meaning
	}
	for label, start := range t.StartTimes {
		out.StartTimes[NormalizeLabel(label)] = start
	}
	return out
}
