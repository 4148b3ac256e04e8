// Package calendar talks to the remote calendars shifts are published to.
//
// Two backends implement Client: a CalDAV calendar (iCloud and other CalDAV
// servers) and a Google Calendar. Both only ever see events they wrote
// themselves; anything without the published-by marker is ignored.
package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/beekhof/shiftsync/internal/shift"
)

// DefaultPublishedBy marks the events written by this tool.
const DefaultPublishedBy = "shiftsync"

var (
	// ErrUnauthorized means the server rejected the credentials. Retrying with
	// the same credentials will not help.
	ErrUnauthorized = errors.New("calendar: unauthorized")
	// ErrCalendarNotFound means the target calendar does not exist.
	ErrCalendarNotFound = errors.New("calendar: calendar not found")
	// ErrConflict means the remote entity exists in a state incompatible with
	// the requested write.
	ErrConflict = errors.New("calendar: conflict")
)

// Event is a shift previously published to a remote calendar.
type Event struct {
	UID string
	// Handle addresses the event on the server: a resource URL for CalDAV,
	// an event id for Google.
	Handle  string
	Summary string
	Start   time.Time
}

// Client is one remote calendar. Every method is a blocking network call.
type Client interface {
	// ListShifts returns the published shifts overlapping [start, end).
	ListShifts(ctx context.Context, start, end time.Time) ([]Event, error)
	// PutShift creates the shift, or overwrites the event with the same UID.
	PutShift(ctx context.Context, s shift.Shift) error
	// DeleteShift removes a published shift.
	DeleteShift(ctx context.Context, e Event) error
}
