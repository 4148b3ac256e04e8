package calendar

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"go.uber.org/zap"

	"github.com/beekhof/shiftsync/internal/shift"
)

// DefaultCalDAVServer is the iCloud CalDAV endpoint.
const DefaultCalDAVServer = "https://caldav.icloud.com/"

const (
	nsDAV    = "DAV:"
	nsCalDAV = "urn:ietf:params:xml:ns:caldav"

	principalQuery = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:current-user-principal/>
  </d:prop>
</d:propfind>`

	homeSetQuery = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <c:calendar-home-set/>
  </d:prop>
</d:propfind>`

	collectionsQuery = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <d:displayname/>
    <d:resourcetype/>
  </d:prop>
</d:propfind>`

	eventsQuery = `<?xml version="1.0" encoding="utf-8" ?>
<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <d:getetag/>
    <c:calendar-data/>
  </d:prop>
  <c:filter>
    <c:comp-filter name="VCALENDAR">
      <c:comp-filter name="VEVENT">
        <c:time-range start="%s" end="%s"/>
      </c:comp-filter>
    </c:comp-filter>
  </c:filter>
</c:calendar-query>`

	mkcalendarBody = `<?xml version="1.0" encoding="utf-8" ?>
<c:mkcalendar xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:set>
    <d:prop>
      <d:displayname>%s</d:displayname>
      <c:supported-calendar-component-set>
        <c:comp name="VEVENT"/>
      </c:supported-calendar-component-set>
    </d:prop>
  </d:set>
</c:mkcalendar>`

	calDAVTimeFormat = "20060102T150405Z"
)

// CalDAVClient is an authenticated connection to a CalDAV account.
type CalDAVClient struct {
	httpClient *http.Client
	username   string
	password   string
	serverURL  *url.URL
	logger     *zap.Logger
}

// CalDAVOption configures a CalDAVClient.
type CalDAVOption func(*CalDAVClient)

// WithHTTPClient replaces the default HTTP client (30 second timeout).
func WithHTTPClient(c *http.Client) CalDAVOption {
	return func(client *CalDAVClient) { client.httpClient = c }
}

// WithLogger sets the logger used for non-fatal warnings.
func WithLogger(l *zap.Logger) CalDAVOption {
	return func(client *CalDAVClient) { client.logger = l }
}

// NewCalDAVClient creates a client for the CalDAV server at serverURL.
// For iCloud the password must be an app-specific password.
func NewCalDAVClient(serverURL, username, password string, opts ...CalDAVOption) (*CalDAVClient, error) {
	if serverURL == "" {
		serverURL = DefaultCalDAVServer
	}
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid CalDAV server URL %q: %w", serverURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid CalDAV server URL %q: scheme and host are required", serverURL)
	}

	c := &CalDAVClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		username:   username,
		password:   password,
		serverURL:  base,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// makeRequest makes an authenticated request. target may be absolute or
// relative to the server URL.
func (c *CalDAVClient) makeRequest(ctx context.Context, method, target, depth, contentType string, body io.Reader) (*http.Response, error) {
	u, err := c.resolve(c.serverURL, target)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(c.username, c.password)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if depth != "" {
		req.Header.Set("Depth", depth)
	}

	return c.httpClient.Do(req)
}

func (c *CalDAVClient) resolve(base *url.URL, href string) (*url.URL, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("invalid href %q: %w", href, err)
	}
	return base.ResolveReference(ref), nil
}

// propfind runs a PROPFIND and returns the parsed multistatus.
func (c *CalDAVClient) propfind(ctx context.Context, target, depth, query string) (*multistatus, error) {
	resp, err := c.makeRequest(ctx, "PROPFIND", target, depth, "application/xml; charset=utf-8", strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("PROPFIND %s failed: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		return nil, statusError("PROPFIND "+target, resp)
	}
	return parseMultistatus(resp.Body)
}

// homeSet discovers the calendar home collection of the logged-in user.
func (c *CalDAVClient) homeSet(ctx context.Context) (*url.URL, error) {
	ms, err := c.propfind(ctx, c.serverURL.String(), "0", principalQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to find principal: %w", err)
	}
	principal := ms.first(func(p prop) string { return p.CurrentUserPrincipal.Href })
	if principal == "" {
		return nil, fmt.Errorf("server did not report a current-user-principal")
	}
	principalURL, err := c.resolve(c.serverURL, principal)
	if err != nil {
		return nil, err
	}

	ms, err = c.propfind(ctx, principalURL.String(), "0", homeSetQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar home: %w", err)
	}
	home := ms.first(func(p prop) string { return p.CalendarHomeSet.Href })
	if home == "" {
		return nil, fmt.Errorf("server did not report a calendar-home-set")
	}
	return c.resolve(principalURL, home)
}

type collection struct {
	url  *url.URL
	name string
}

func (c *CalDAVClient) calendars(ctx context.Context) (*url.URL, []collection, error) {
	home, err := c.homeSet(ctx)
	if err != nil {
		return nil, nil, err
	}
	ms, err := c.propfind(ctx, home.String(), "1", collectionsQuery)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	var found []collection
	for _, r := range ms.Responses {
		p := r.props()
		if p.ResourceType.Calendar == nil {
			continue
		}
		u, err := c.resolve(home, r.Href)
		if err != nil {
			return nil, nil, err
		}
		found = append(found, collection{url: u, name: p.DisplayName})
	}
	return home, found, nil
}

// ListCalendars returns the display names of the account's calendars.
func (c *CalDAVClient) ListCalendars(ctx context.Context) ([]string, error) {
	_, found, err := c.calendars(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(found))
	for _, col := range found {
		if col.name != "" {
			names = append(names, col.name)
		}
	}
	return names, nil
}

// FindOrCreateCalendarByName returns the calendar whose display name is
// name. When it does not exist it is created if create is set, otherwise
// ErrCalendarNotFound is returned.
func (c *CalDAVClient) FindOrCreateCalendarByName(ctx context.Context, name string, create bool, publishedBy string, loc *time.Location) (*CalDAVCalendar, error) {
	home, found, err := c.calendars(ctx)
	if err != nil {
		return nil, err
	}
	for _, col := range found {
		if col.name == name {
			return c.calendar(col.url, publishedBy, loc), nil
		}
	}
	if !create {
		return nil, fmt.Errorf("%w: %q", ErrCalendarNotFound, name)
	}

	target, err := c.resolve(home, slug(name)+"/")
	if err != nil {
		return nil, err
	}
	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(name)); err != nil {
		return nil, err
	}
	resp, err := c.makeRequest(ctx, "MKCALENDAR", target.String(), "", "application/xml; charset=utf-8",
		strings.NewReader(fmt.Sprintf(mkcalendarBody, escaped.String())))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar %q: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, statusError("MKCALENDAR "+name, resp)
	}
	c.logger.Info("Created calendar", zap.String("name", name), zap.String("url", target.String()))
	return c.calendar(target, publishedBy, loc), nil
}

func (c *CalDAVClient) calendar(u *url.URL, publishedBy string, loc *time.Location) *CalDAVCalendar {
	if publishedBy == "" {
		publishedBy = DefaultPublishedBy
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CalDAVCalendar{client: c, url: u, publishedBy: publishedBy, location: loc, now: time.Now}
}

// CalDAVCalendar is one calendar collection on a CalDAV server.
type CalDAVCalendar struct {
	client      *CalDAVClient
	url         *url.URL
	publishedBy string
	location    *time.Location
	now         func() time.Time
}

// URL returns the collection URL.
func (cal *CalDAVCalendar) URL() string {
	return cal.url.String()
}

// ListShifts retrieves the published shifts overlapping [start, end).
func (cal *CalDAVCalendar) ListShifts(ctx context.Context, start, end time.Time) ([]Event, error) {
	query := fmt.Sprintf(eventsQuery, start.UTC().Format(calDAVTimeFormat), end.UTC().Format(calDAVTimeFormat))

	resp, err := cal.client.makeRequest(ctx, "REPORT", cal.url.String(), "1", "application/xml; charset=utf-8", strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultiStatus {
		return nil, statusError("REPORT "+cal.url.String(), resp)
	}

	ms, err := parseMultistatus(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CalDAV response: %w", err)
	}

	var events []Event
	for _, r := range ms.Responses {
		data := r.props().CalendarData
		if strings.TrimSpace(data) == "" {
			continue
		}
		icalCal, err := ical.NewDecoder(strings.NewReader(data)).Decode()
		if err != nil {
			cal.client.logger.Warn("Skipping unparsable calendar object", zap.String("href", r.Href), zap.Error(err))
			continue
		}
		decoded, err := decodeEvents(icalCal, cal.publishedBy, cal.location)
		if err != nil {
			cal.client.logger.Warn("Skipping malformed event", zap.String("href", r.Href), zap.Error(err))
			continue
		}
		handle, err := cal.client.resolve(cal.url, r.Href)
		if err != nil {
			return nil, err
		}
		for _, e := range decoded {
			e.Handle = handle.String()
			events = append(events, e)
		}
	}
	return events, nil
}

// PutShift writes the shift to <calendar>/<uid>.ics, replacing any earlier
// version of the same shift.
func (cal *CalDAVCalendar) PutShift(ctx context.Context, s shift.Shift) error {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(encodeShift(s, cal.publishedBy, cal.now())); err != nil {
		return fmt.Errorf("failed to encode iCalendar: %w", err)
	}

	target, err := cal.client.resolve(cal.url, s.UID.String()+".ics")
	if err != nil {
		return err
	}
	resp, err := cal.client.makeRequest(ctx, http.MethodPut, target.String(), "", "text/calendar; charset=utf-8", &buf)
	if err != nil {
		return fmt.Errorf("failed to put event %s: %w", s.UID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusNoContent, http.StatusOK:
		return nil
	default:
		return statusError("PUT "+s.UID.String(), resp)
	}
}

// DeleteShift removes the event. An event that is already gone counts as
// deleted.
func (cal *CalDAVCalendar) DeleteShift(ctx context.Context, e Event) error {
	resp, err := cal.client.makeRequest(ctx, http.MethodDelete, e.Handle, "", "", nil)
	if err != nil {
		return fmt.Errorf("failed to delete event %s: %w", e.UID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound, http.StatusGone:
		return nil
	default:
		return statusError("DELETE "+e.UID, resp)
	}
}

// statusError maps an unexpected HTTP status to the package's error taxonomy.
func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode == http.StatusConflict,
		resp.StatusCode == http.StatusPreconditionFailed,
		resp.StatusCode == http.StatusForbidden && bytes.Contains(body, []byte("no-uid-conflict")):
		return fmt.Errorf("%w: %s returned HTTP %d", ErrConflict, op, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned HTTP %d", ErrUnauthorized, op, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s returned HTTP %d", ErrCalendarNotFound, op, resp.StatusCode)
	default:
		return fmt.Errorf("%s returned HTTP %d", op, resp.StatusCode)
	}
}

// slug turns a display name into a collection path segment.
func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "shifts"
	}
	return b.String()
}

type multistatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []response `xml:"DAV: response"`
}

type response struct {
	Href      string     `xml:"DAV: href"`
	Propstats []propstat `xml:"DAV: propstat"`
}

type propstat struct {
	Prop   prop   `xml:"DAV: prop"`
	Status string `xml:"DAV: status"`
}

type prop struct {
	DisplayName          string       `xml:"DAV: displayname"`
	ResourceType         resourceType `xml:"DAV: resourcetype"`
	CurrentUserPrincipal hrefProp     `xml:"DAV: current-user-principal"`
	CalendarHomeSet      hrefProp     `xml:"urn:ietf:params:xml:ns:caldav calendar-home-set"`
	CalendarData         string       `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
}

type resourceType struct {
	Calendar *struct{} `xml:"urn:ietf:params:xml:ns:caldav calendar"`
}

type hrefProp struct {
	Href string `xml:"DAV: href"`
}

// props merges the successful propstat blocks of a response.
func (r response) props() prop {
	var merged prop
	for _, ps := range r.Propstats {
		if ps.Status != "" && !strings.Contains(ps.Status, " 200") {
			continue
		}
		p := ps.Prop
		if p.DisplayName != "" {
			merged.DisplayName = p.DisplayName
		}
		if p.ResourceType.Calendar != nil {
			merged.ResourceType = p.ResourceType
		}
		if p.CurrentUserPrincipal.Href != "" {
			merged.CurrentUserPrincipal = p.CurrentUserPrincipal
		}
		if p.CalendarHomeSet.Href != "" {
			merged.CalendarHomeSet = p.CalendarHomeSet
		}
		if p.CalendarData != "" {
			merged.CalendarData = p.CalendarData
		}
	}
	return merged
}

// first returns the first non-empty value pick extracts from the responses.
func (ms *multistatus) first(pick func(prop) string) string {
	for _, r := range ms.Responses {
		if v := strings.TrimSpace(pick(r.props())); v != "" {
			return v
		}
	}
	return ""
}

func parseMultistatus(body io.Reader) (*multistatus, error) {
	var ms multistatus
	if err := xml.NewDecoder(body).Decode(&ms); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	return &ms, nil
}
