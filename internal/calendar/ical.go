package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/beekhof/shiftsync/internal/shift"
)

const (
	propPublishedBy = "X-PUBLISHED-BY"
	productID       = "-//shiftsync//Roster Sync//EN"
)

// shiftCategories tags every published shift.
var shiftCategories = []string{"Work", "Shift"}

// encodeShift converts a shift into a VCALENDAR holding one VEVENT.
func encodeShift(s shift.Shift, publishedBy string, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	vevent := ical.NewComponent(ical.CompEvent)
	cal.Children = append(cal.Children, vevent)

	vevent.Props.SetText(ical.PropUID, s.UID.String())
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeStart, s.Start)
	setRaw(vevent.Props, ical.PropDuration, formatDuration(s.Duration))
	vevent.Props.SetText(ical.PropSummary, s.Summary)
	setRaw(vevent.Props, ical.PropCategories, strings.Join(shiftCategories, ","))
	vevent.Props.SetText(ical.PropClass, "PRIVATE")
	setRaw(vevent.Props, ical.PropSequence, strconv.Itoa(s.Sequence))
	vevent.Props.SetText(propPublishedBy, publishedBy)

	return cal
}

// decodeEvents extracts the published shifts from a VCALENDAR. Events
// without the published-by marker are skipped.
func decodeEvents(cal *ical.Calendar, publishedBy string, loc *time.Location) ([]Event, error) {
	var events []Event
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		marker := comp.Props.Get(propPublishedBy)
		if marker == nil {
			continue
		}
		if by, err := marker.Text(); err != nil || by != publishedBy {
			continue
		}

		uid := comp.Props.Get(ical.PropUID)
		if uid == nil || uid.Value == "" {
			return nil, errors.New("published event without UID")
		}
		event := Event{UID: uid.Value}
		if summary := comp.Props.Get(ical.PropSummary); summary != nil {
			if text, err := summary.Text(); err == nil {
				event.Summary = text
			}
		}
		if dtstart := comp.Props.Get(ical.PropDateTimeStart); dtstart != nil {
			start, err := dtstart.DateTime(loc)
			if err != nil {
				return nil, fmt.Errorf("event %s: failed to parse DTSTART: %w", uid.Value, err)
			}
			event.Start = start
		}
		events = append(events, event)
	}
	return events, nil
}

func setRaw(props ical.Props, name, value string) {
	prop := ical.NewProp(name)
	prop.Value = value
	props.Set(prop)
}

// formatDuration renders d as an RFC 5545 duration using exact hours and
// minutes ("PT10H", "PT24H").
func formatDuration(d time.Duration) string {
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	switch {
	case minutes == 0:
		return fmt.Sprintf("PT%dH", hours)
	case hours == 0:
		return fmt.Sprintf("PT%dM", minutes)
	default:
		return fmt.Sprintf("PT%dH%dM", hours, minutes)
	}
}
