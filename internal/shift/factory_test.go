package shift

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	sydney, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	f, err := NewFactory(Config{
		Employer:   "SWSLHD",
		EmployeeID: "60316064",
		Location:   sydney,
		Tables:     DefaultTables(),
	})
	require.NoError(t, err)
	return f
}

func TestMake_TimedShift(t *testing.T) {
	f := newTestFactory(t)
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	s, ok := f.Make(date, " d ")
	require.True(t, ok)

	assert.Equal(t, "D", s.Label)
	assert.Equal(t, "Day", s.Summary)
	assert.Equal(t, 10*time.Hour, s.Duration)
	assert.False(t, s.AllDay)
	assert.Equal(t, 0, s.Sequence)
	assert.Equal(t, time.Date(2024, 3, 4, 8, 0, 0, 0, f.Location()), s.Start)
	assert.Equal(t, "Australia/Sydney", s.Start.Location().String())
	assert.Equal(t, time.Date(2024, 3, 4, 18, 0, 0, 0, f.Location()), s.End())
	assert.Equal(t, uuid.MustParse("04e8c254-0e13-5925-9efc-e6767380bab0"), s.UID)
}

func TestMake_NightShiftStartsLate(t *testing.T) {
	f := newTestFactory(t)
	s, ok := f.Make(time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), "N")
	require.True(t, ok)

	assert.Equal(t, "Night", s.Summary)
	assert.Equal(t, 22, s.Start.Hour())
	assert.Equal(t, 30, s.Start.Minute())
	assert.Equal(t, uuid.MustParse("11dfd994-19ed-5ada-8073-426f8939b673"), s.UID)
}

func TestMake_AllDayLabels(t *testing.T) {
	f := newTestFactory(t)
	date := time.Date(2024, 3, 6, 15, 45, 0, 0, time.UTC)

	tests := []struct {
		raw     string
		summary string
	}{
		{raw: "AL", summary: "Annual Leave"},
		{raw: "t", summary: "Teaching Day"},
		{raw: "CONF", summary: "CONF"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			s, ok := f.Make(date, tt.raw)
			require.True(t, ok)
			assert.True(t, s.AllDay)
			assert.Equal(t, tt.summary, s.Summary)
			assert.Equal(t, 24*time.Hour, s.Duration)
			assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, f.Location()), s.Start)
			assert.Equal(t, uuid.MustParse("254e208a-e198-5dcd-9db7-f6ffcb952729"), s.UID)
		})
	}
}

func TestMake_Skip(t *testing.T) {
	f := newTestFactory(t)
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	for _, raw := range []string{"", "   ", " off ", "OFF", "Off"} {
		_, ok := f.Make(date, raw)
		assert.False(t, ok, "label %q should not produce a shift", raw)
	}
}

func TestMake_UIDIsDeterministic(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	first, ok := newTestFactory(t).Make(date, "D")
	require.True(t, ok)

	for i := 0; i < 5; i++ {
		again, ok := newTestFactory(t).Make(date, "D")
		require.True(t, ok)
		assert.True(t, Equal(first, again))
	}

	other, ok := newTestFactory(t).Make(date.AddDate(0, 0, 1), "D")
	require.True(t, ok)
	assert.False(t, Equal(first, other))
}

func TestMake_UIDDependsOnEmployee(t *testing.T) {
	a := newTestFactory(t)
	b, err := NewFactory(Config{Employer: "SWSLHD", EmployeeID: "1", Location: a.Location(), Tables: DefaultTables()})
	require.NoError(t, err)

	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	sa, _ := a.Make(date, "D")
	sb, _ := b.Make(date, "D")
	assert.NotEqual(t, sa.UID, sb.UID)
}

func TestMake_CustomTables(t *testing.T) {
	f, err := NewFactory(Config{
		Employer:    "Acme",
		EmployeeID:  "42",
		ShiftLength: 8 * time.Hour,
		Tables: Tables{
			Meanings:   map[string]string{"am": "Morning"},
			StartTimes: map[string]ClockTime{"am": {Hour: 7}},
		},
	})
	require.NoError(t, err)

	s, ok := f.Make(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "AM")
	require.True(t, ok)
	assert.Equal(t, "Morning", s.Summary)
	assert.Equal(t, 8*time.Hour, s.Duration)
	assert.Equal(t, time.UTC, s.Start.Location())
	assert.Equal(t, 7, s.Start.Hour())
}

func TestNewFactory_Validation(t *testing.T) {
	_, err := NewFactory(Config{EmployeeID: "1"})
	assert.Error(t, err)

	_, err = NewFactory(Config{Employer: "Acme"})
	assert.Error(t, err)

	_, err = NewFactory(Config{Employer: "Acme", EmployeeID: "1", ShiftLength: -time.Hour})
	assert.Error(t, err)
}

func TestSortAndSpan(t *testing.T) {
	f := newTestFactory(t)
	base := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	night, _ := f.Make(base.AddDate(0, 0, 2), "N")
	day, _ := f.Make(base, "D")
	leave, _ := f.Make(base.AddDate(0, 0, 1), "AL")

	shifts := []Shift{night, day, leave}
	Sort(shifts)
	assert.Equal(t, []Shift{day, leave, night}, shifts)

	first, last, ok := Span(shifts)
	require.True(t, ok)
	assert.Equal(t, day.Date, first)
	assert.Equal(t, night.Date, last)

	_, _, ok = Span(nil)
	assert.False(t, ok)
}

func TestParseClockTime(t *testing.T) {
	c, err := ParseClockTime("22:30")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 22, Minute: 30}, c)
	assert.Equal(t, "22:30", c.String())

	_, err = ParseClockTime("half past ten")
	assert.Error(t, err)
}
