package shift

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// OffLabel marks a rostered day off.
	OffLabel = "OFF"

	DefaultShiftLength = 10 * time.Hour
	allDayLength       = 24 * time.Hour

	// uidTimeLayout is the start time at whole-second precision with no zone
	// component. The zone is fixed per employer, so it adds nothing to identity.
	uidTimeLayout = "20060102150405"
)

// DefaultNamespace is the UUIDv5 namespace shift identifiers are derived in.
var DefaultNamespace = uuid.MustParse("48f80ff6-3ddd-4b70-9ad0-24459b3219bc")

// Config describes the employer-specific inputs of a Factory.
type Config struct {
	Employer    string
	EmployeeID  string
	Location    *time.Location
	Namespace   uuid.UUID
	ShiftLength time.Duration
	Tables      Tables
}

// Factory builds Shift values from roster dates and labels.
type Factory struct {
	employer    string
	employeeID  string
	location    *time.Location
	namespace   uuid.UUID
	shiftLength time.Duration
	tables      Tables
}

// NewFactory validates cfg and returns a Factory. A nil location means UTC,
// a nil namespace DefaultNamespace and a zero shift length DefaultShiftLength.
func NewFactory(cfg Config) (*Factory, error) {
	if strings.TrimSpace(cfg.Employer) == "" {
		return nil, errors.New("shift: employer name must not be empty")
	}
	if strings.TrimSpace(cfg.EmployeeID) == "" {
		return nil, errors.New("shift: employee id must not be empty")
	}
	if cfg.ShiftLength < 0 {
		return nil, fmt.Errorf("shift: negative shift length %s", cfg.ShiftLength)
	}

	f := &Factory{
		employer:    cfg.Employer,
		employeeID:  cfg.EmployeeID,
		location:    cfg.Location,
		namespace:   cfg.Namespace,
		shiftLength: cfg.ShiftLength,
		tables:      cfg.Tables.normalized(),
	}
	if f.location == nil {
		f.location = time.UTC
	}
	if f.namespace == uuid.Nil {
		f.namespace = DefaultNamespace
	}
	if f.shiftLength == 0 {
		f.shiftLength = DefaultShiftLength
	}
	return f, nil
}

// Location returns the employer's time zone.
func (f *Factory) Location() *time.Location {
	return f.location
}

// NormalizeLabel trims and upper-cases a raw roster label.
func NormalizeLabel(raw string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(raw))
}

// Make builds the shift rostered on date under rawLabel. Only the calendar
// date of date is used. ok is false when the label means no work: empty
// text or OFF.
func (f *Factory) Make(date time.Time, rawLabel string) (s Shift, ok bool) {
	label := NormalizeLabel(rawLabel)
	if label == "" || label == OffLabel {
		return Shift{}, false
	}

	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, f.location)

	s = Shift{
		Date:     day,
		Label:    label,
		Start:    day,
		Duration: allDayLength,
		AllDay:   true,
	}
	if at, found := f.tables.StartTimes[label]; found {
		s.Start = time.Date(y, m, d, at.Hour, at.Minute, 0, 0, f.location)
		s.Duration = f.shiftLength
		s.AllDay = false
	}

	s.Summary = label
	if meaning, found := f.tables.Meanings[label]; found {
		s.Summary = meaning
	}
	s.UID = f.UID(s.Start)
	return s, true
}

// UID derives the identifier of the shift starting at start.
func (f *Factory) UID(start time.Time) uuid.UUID {
	name := fmt.Sprintf("%s:%s:%s", f.employer, f.employeeID, start.In(f.location).Format(uidTimeLayout))
	return uuid.NewSHA1(f.namespace, []byte(name))
}
