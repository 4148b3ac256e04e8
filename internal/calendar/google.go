package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/beekhof/shiftsync/internal/shift"
)

// publishedByKey is the private extended property carrying the marker.
const publishedByKey = "publishedBy"

// GoogleClient is a wrapper around the Google Calendar API service.
type GoogleClient struct {
	service *gcal.Service
	logger  *zap.Logger
}

// NewGoogleClient creates a Google Calendar API client using the provided
// HTTP client, normally one returned by auth.Client. Extra options are passed
// to the service, which tests use to point it at a fake endpoint.
func NewGoogleClient(ctx context.Context, httpClient *http.Client, logger *zap.Logger, opts ...option.ClientOption) (*GoogleClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleClient{service: service, logger: logger}, nil
}

// ListCalendars returns the summaries of the calendars on the user's list.
func (c *GoogleClient) ListCalendars(ctx context.Context) ([]string, error) {
	var names []string
	err := c.service.CalendarList.List().Pages(ctx, func(page *gcal.CalendarList) error {
		for _, entry := range page.Items {
			names = append(names, entry.Summary)
		}
		return nil
	})
	if err != nil {
		return nil, googleError("failed to list calendars", err)
	}
	return names, nil
}

// FindOrCreateCalendarByName finds an existing calendar by name or, when
// create is set, creates a new one. colorID is only applied to a newly
// created calendar.
func (c *GoogleClient) FindOrCreateCalendarByName(ctx context.Context, name, colorID string, create bool, publishedBy string, loc *time.Location) (*GoogleCalendar, error) {
	var found string
	err := c.service.CalendarList.List().Pages(ctx, func(page *gcal.CalendarList) error {
		for _, entry := range page.Items {
			if entry.Summary == name {
				found = entry.Id
				return errStopPaging
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopPaging) {
		return nil, googleError("failed to list calendars", err)
	}
	if found != "" {
		return c.calendar(found, publishedBy, loc), nil
	}
	if !create {
		return nil, fmt.Errorf("%w: %q", ErrCalendarNotFound, name)
	}

	newCalendar := &gcal.Calendar{
		Summary:     name,
		Description: "Rostered shifts",
	}
	if loc != nil {
		newCalendar.TimeZone = loc.String()
	}
	created, err := c.service.Calendars.Insert(newCalendar).Context(ctx).Do()
	if err != nil {
		return nil, googleError("failed to create calendar", err)
	}
	c.logger.Info("Created calendar", zap.String("name", name), zap.String("id", created.Id))

	if colorID != "" {
		_, err = c.service.CalendarList.Patch(created.Id, &gcal.CalendarListEntry{
			ColorId: colorID,
		}).Context(ctx).Do()
		if err != nil {
			c.logger.Warn("Failed to set calendar color", zap.String("color_id", colorID), zap.Error(err))
		}
	}

	return c.calendar(created.Id, publishedBy, loc), nil
}

// Calendar returns a handle on the calendar with the given id without
// checking that it exists.
func (c *GoogleClient) Calendar(id, publishedBy string, loc *time.Location) *GoogleCalendar {
	return c.calendar(id, publishedBy, loc)
}

func (c *GoogleClient) calendar(id, publishedBy string, loc *time.Location) *GoogleCalendar {
	if publishedBy == "" {
		publishedBy = DefaultPublishedBy
	}
	if loc == nil {
		loc = time.UTC
	}
	return &GoogleCalendar{service: c.service, id: id, publishedBy: publishedBy, location: loc}
}

var errStopPaging = errors.New("stop paging")

// GoogleCalendar is one Google calendar.
type GoogleCalendar struct {
	service     *gcal.Service
	id          string
	publishedBy string
	location    *time.Location
}

// ID returns the calendar id.
func (cal *GoogleCalendar) ID() string {
	return cal.id
}

// ListShifts retrieves the published shifts overlapping [start, end).
// Recurring events are expanded, though shifts are never recurring.
func (cal *GoogleCalendar) ListShifts(ctx context.Context, start, end time.Time) ([]Event, error) {
	var events []Event
	call := cal.service.Events.List(cal.id).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		PrivateExtendedProperty(publishedByKey + "=" + cal.publishedBy).
		SingleEvents(true).
		ShowDeleted(false)

	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			e, err := cal.decode(item)
			if err != nil {
				return err
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, googleError("failed to list events", err)
	}
	return events, nil
}

func (cal *GoogleCalendar) decode(item *gcal.Event) (Event, error) {
	e := Event{UID: item.ICalUID, Handle: item.Id, Summary: item.Summary}
	if e.UID == "" {
		return Event{}, fmt.Errorf("published event %s without iCalUID", item.Id)
	}
	if item.Start == nil {
		return e, nil
	}
	switch {
	case item.Start.DateTime != "":
		t, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return Event{}, fmt.Errorf("event %s: failed to parse start: %w", item.Id, err)
		}
		e.Start = t.In(cal.location)
	case item.Start.Date != "":
		t, err := time.ParseInLocation("2006-01-02", item.Start.Date, cal.location)
		if err != nil {
			return Event{}, fmt.Errorf("event %s: failed to parse start date: %w", item.Id, err)
		}
		e.Start = t
	}
	return e, nil
}

// PutShift imports the shift keyed by its iCalendar UID, so a second put of
// the same shift replaces the first rather than duplicating it.
func (cal *GoogleCalendar) PutShift(ctx context.Context, s shift.Shift) error {
	zone := s.Start.Location().String()
	event := &gcal.Event{
		ICalUID:    s.UID.String(),
		Summary:    s.Summary,
		Visibility: "private",
		Sequence:   int64(s.Sequence),
		Start: &gcal.EventDateTime{
			DateTime: s.Start.Format(time.RFC3339),
			TimeZone: zone,
		},
		End: &gcal.EventDateTime{
			DateTime: s.End().Format(time.RFC3339),
			TimeZone: zone,
		},
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{
				publishedByKey: cal.publishedBy,
				"label":        s.Label,
			},
		},
	}

	if _, err := cal.service.Events.Import(cal.id, event).Context(ctx).Do(); err != nil {
		return googleError("failed to import event "+s.UID.String(), err)
	}
	return nil
}

// DeleteShift deletes the event. An event that is already gone counts as
// deleted.
func (cal *GoogleCalendar) DeleteShift(ctx context.Context, e Event) error {
	err := cal.service.Events.Delete(cal.id, e.Handle).
		SendUpdates("none").
		Context(ctx).
		Do()
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return nil
	}
	return googleError("failed to delete event "+e.UID, err)
}

// googleError maps a Google API error onto the package's error taxonomy.
func googleError(msg string, err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	switch apiErr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w: %v", msg, ErrUnauthorized, err)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w: %v", msg, ErrCalendarNotFound, err)
	case http.StatusConflict, http.StatusPreconditionFailed:
		return fmt.Errorf("%s: %w: %v", msg, ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
