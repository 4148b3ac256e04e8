package calendar

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCalDAV is a minimal in-memory CalDAV server with one principal.
type fakeCalDAV struct {
	t *testing.T

	mu          sync.Mutex
	calendars   map[string]string // path -> display name
	objects     map[string]string // path -> iCalendar body
	putStatus   int
	deleteCalls []string
}

func newFakeCalDAV(t *testing.T) (*fakeCalDAV, *httptest.Server) {
	f := &fakeCalDAV{
		t:         t,
		calendars: map[string]string{"/calendars/jane/work/": "Work"},
		objects:   map[string]string{},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeCalDAV) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if user, pass, ok := r.BasicAuth(); !ok || user != "jane" || pass != "app-password" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == "PROPFIND" && r.URL.Path == "/":
		f.multistatus(w, `<d:response><d:href>/</d:href><d:propstat><d:prop>
<d:current-user-principal><d:href>/principals/jane/</d:href></d:current-user-principal>
</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)

	case r.Method == "PROPFIND" && r.URL.Path == "/principals/jane/":
		f.multistatus(w, `<d:response><d:href>/principals/jane/</d:href><d:propstat><d:prop>
<c:calendar-home-set><d:href>/calendars/jane/</d:href></c:calendar-home-set>
</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)

	case r.Method == "PROPFIND" && r.URL.Path == "/calendars/jane/":
		assert.Equal(f.t, "1", r.Header.Get("Depth"))
		var b strings.Builder
		b.WriteString(`<d:response><d:href>/calendars/jane/</d:href><d:propstat><d:prop>
<d:resourcetype><d:collection/></d:resourcetype></d:prop>
<d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)
		paths := make([]string, 0, len(f.calendars))
		for p := range f.calendars {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Fprintf(&b, `<d:response><d:href>%s</d:href><d:propstat><d:prop>
<d:displayname>%s</d:displayname>
<d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`, p, f.calendars[p])
		}
		f.multistatus(w, b.String())

	case r.Method == "MKCALENDAR":
		assert.Contains(f.t, string(body), "<d:displayname>Rostered Shifts</d:displayname>")
		f.calendars[r.URL.Path] = "Rostered Shifts"
		w.WriteHeader(http.StatusCreated)

	case r.Method == "REPORT":
		assert.Contains(f.t, string(body), `<c:time-range start="20240303T130000Z" end="20240309T130000Z"/>`)
		var b strings.Builder
		paths := make([]string, 0, len(f.objects))
		for p := range f.objects {
			if strings.HasPrefix(p, r.URL.Path) {
				paths = append(paths, p)
			}
		}
		sort.Strings(paths)
		for _, p := range paths {
			var data bytes.Buffer
			require.NoError(f.t, xml.EscapeText(&data, []byte(f.objects[p])))
			fmt.Fprintf(&b, `<d:response><d:href>%s</d:href><d:propstat><d:prop>
<d:getetag>"1"</d:getetag><c:calendar-data>%s</c:calendar-data>
</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`, p, data.String())
		}
		f.multistatus(w, b.String())

	case r.Method == http.MethodPut:
		if f.putStatus != 0 {
			w.WriteHeader(f.putStatus)
			return
		}
		assert.Equal(f.t, "text/calendar; charset=utf-8", r.Header.Get("Content-Type"))
		f.objects[r.URL.Path] = string(body)
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodDelete:
		f.deleteCalls = append(f.deleteCalls, r.URL.Path)
		if _, ok := f.objects[r.URL.Path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeCalDAV) multistatus(w http.ResponseWriter, inner string) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">%s</d:multistatus>`, inner)
}

func newTestCalDAVClient(t *testing.T, serverURL, password string) *CalDAVClient {
	t.Helper()
	c, err := NewCalDAVClient(serverURL, "jane", password)
	require.NoError(t, err)
	return c
}

func TestCalDAV_ListCalendars(t *testing.T) {
	_, srv := newFakeCalDAV(t)
	c := newTestCalDAVClient(t, srv.URL, "app-password")

	names, err := c.ListCalendars(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Work"}, names)
}

func TestCalDAV_FindCalendar(t *testing.T) {
	_, srv := newFakeCalDAV(t)
	c := newTestCalDAVClient(t, srv.URL, "app-password")

	cal, err := c.FindOrCreateCalendarByName(context.Background(), "Work", false, "", nil)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/calendars/jane/work/", cal.URL())

	_, err = c.FindOrCreateCalendarByName(context.Background(), "Missing", false, "", nil)
	assert.ErrorIs(t, err, ErrCalendarNotFound)
}

func TestCalDAV_CreateCalendar(t *testing.T) {
	fake, srv := newFakeCalDAV(t)
	c := newTestCalDAVClient(t, srv.URL, "app-password")

	cal, err := c.FindOrCreateCalendarByName(context.Background(), "Rostered Shifts", true, "", nil)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/calendars/jane/rostered-shifts/", cal.URL())
	assert.Equal(t, "Rostered Shifts", fake.calendars["/calendars/jane/rostered-shifts/"])

	// A second lookup finds the collection instead of creating another.
	again, err := c.FindOrCreateCalendarByName(context.Background(), "Rostered Shifts", true, "", nil)
	require.NoError(t, err)
	assert.Equal(t, cal.URL(), again.URL())
}

func TestCalDAV_Unauthorized(t *testing.T) {
	_, srv := newFakeCalDAV(t)
	c := newTestCalDAVClient(t, srv.URL, "wrong")

	_, err := c.ListCalendars(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCalDAV_PutListDelete(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeCalDAV(t)
	c := newTestCalDAVClient(t, srv.URL, "app-password")
	cal, err := c.FindOrCreateCalendarByName(ctx, "Work", false, "shiftsync", sydney(t))
	require.NoError(t, err)

	day := makeShift(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), "D")
	night := makeShift(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), "N")
	require.NoError(t, cal.PutShift(ctx, day))
	require.NoError(t, cal.PutShift(ctx, night))
	// Writing the same shift twice replaces it.
	require.NoError(t, cal.PutShift(ctx, day))
	assert.Len(t, fake.objects, 2)
	assert.Contains(t, fake.objects, "/calendars/jane/work/"+day.UID.String()+".ics")

	// An event someone else published in the same collection is not ours.
	fake.objects["/calendars/jane/work/dentist.ics"] = strings.Join([]string{
		"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//other//EN",
		"BEGIN:VEVENT", "UID:dentist", "DTSTAMP:20240301T000000Z",
		"DTSTART:20240305T010000Z", "SUMMARY:Dentist", "END:VEVENT",
		"END:VCALENDAR", "",
	}, "\r\n")

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, sydney(t))
	events, err := cal.ListShifts(ctx, start, start.AddDate(0, 0, 6))
	require.NoError(t, err)
	require.Len(t, events, 2)

	byUID := map[string]Event{}
	for _, e := range events {
		byUID[e.UID] = e
	}
	got, ok := byUID[day.UID.String()]
	require.True(t, ok)
	assert.Equal(t, "Day", got.Summary)
	assert.True(t, day.Start.Equal(got.Start))
	assert.Equal(t, srv.URL+"/calendars/jane/work/"+day.UID.String()+".ics", got.Handle)

	require.NoError(t, cal.DeleteShift(ctx, got))
	assert.NotContains(t, fake.objects, "/calendars/jane/work/"+day.UID.String()+".ics")

	// Deleting it again is not an error.
	require.NoError(t, cal.DeleteShift(ctx, got))
	assert.Len(t, fake.deleteCalls, 2)
}

func TestCalDAV_PutConflict(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeCalDAV(t)
	c := newTestCalDAVClient(t, srv.URL, "app-password")
	cal, err := c.FindOrCreateCalendarByName(ctx, "Work", false, "", sydney(t))
	require.NoError(t, err)

	s := makeShift(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), "D")

	fake.putStatus = http.StatusPreconditionFailed
	assert.ErrorIs(t, cal.PutShift(ctx, s), ErrConflict)

	fake.putStatus = http.StatusInternalServerError
	err = cal.PutShift(ctx, s)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		code int
		body string
		want error
	}{
		{http.StatusUnauthorized, "", ErrUnauthorized},
		{http.StatusForbidden, "", ErrUnauthorized},
		{http.StatusForbidden, `<error><no-uid-conflict/></error>`, ErrConflict},
		{http.StatusConflict, "", ErrConflict},
		{http.StatusPreconditionFailed, "", ErrConflict},
		{http.StatusNotFound, "", ErrCalendarNotFound},
	}
	for _, tt := range tests {
		resp := &http.Response{StatusCode: tt.code, Body: io.NopCloser(strings.NewReader(tt.body))}
		assert.ErrorIs(t, statusError("op", resp), tt.want, "status %d", tt.code)
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "rostered-shifts", slug("Rostered Shifts"))
	assert.Equal(t, "work-2024", slug(" Work_2024! "))
	assert.Equal(t, "shifts", slug("!!!"))
}

func TestNewCalDAVClient_InvalidURL(t *testing.T) {
	_, err := NewCalDAVClient("not a url", "u", "p")
	assert.Error(t, err)

	c, err := NewCalDAVClient("", "u", "p")
	require.NoError(t, err)
	assert.Equal(t, DefaultCalDAVServer, c.serverURL.String())
}
