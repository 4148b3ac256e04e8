package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/beekhof/shiftsync/internal/calendar"
	"github.com/beekhof/shiftsync/internal/shift"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var periodStart = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func newTestFactory(t *testing.T) *shift.Factory {
	t.Helper()
	sydney, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)
	f, err := shift.NewFactory(shift.Config{
		Employer:   "SWSLHD",
		EmployeeID: "60316064",
		Location:   sydney,
		Tables:     shift.DefaultTables(),
	})
	require.NoError(t, err)
	return f
}

// dayShifts returns n consecutive day shifts starting on periodStart.
func dayShifts(t *testing.T, n int) []shift.Shift {
	t.Helper()
	f := newTestFactory(t)
	out := make([]shift.Shift, n)
	for i := range out {
		s, ok := f.Make(periodStart.AddDate(0, 0, i), "D")
		require.True(t, ok)
		out[i] = s
	}
	return out
}

func published(s shift.Shift) calendar.Event {
	return calendar.Event{UID: s.UID.String(), Handle: "/cal/" + s.UID.String() + ".ics", Summary: s.Summary, Start: s.Start}
}

// fakeCalendar is an in-memory calendar.Client.
type fakeCalendar struct {
	mu        sync.Mutex
	events    map[string]calendar.Event
	putErrs   map[string]error
	deleteErr map[string]error
	listErr   error
	delay     time.Duration

	lists       int
	ops         []string
	inFlight    int
	maxInFlight int
}

func newFakeCalendar(events ...calendar.Event) *fakeCalendar {
	f := &fakeCalendar{
		events:    map[string]calendar.Event{},
		putErrs:   map[string]error{},
		deleteErr: map[string]error{},
	}
	for _, e := range events {
		f.events[e.UID] = e
	}
	return f
}

func (f *fakeCalendar) ListShifts(_ context.Context, _, _ time.Time) ([]calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]calendar.Event, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeCalendar) PutShift(_ context.Context, s shift.Shift) error {
	f.mu.Lock()
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	f.ops = append(f.ops, "put")
	if err := f.putErrs[s.UID.String()]; err != nil {
		return err
	}
	f.events[s.UID.String()] = published(s)
	return nil
}

func (f *fakeCalendar) DeleteShift(_ context.Context, e calendar.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "delete")
	if err := f.deleteErr[e.UID]; err != nil {
		return err
	}
	delete(f.events, e.UID)
	return nil
}

func TestReconcile_Minimality(t *testing.T) {
	s := dayShifts(t, 3)
	a, b, c := s[0], s[1], s[2]

	plan := Reconcile(
		[]calendar.Event{published(a), published(b)},
		[]shift.Shift{b, c},
	)

	want := Plan{
		ToDelete: []calendar.Event{published(a)},
		ToCreate: []shift.Shift{c},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("Reconcile() mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_EmptyLocalDeletesNothing(t *testing.T) {
	s := dayShifts(t, 2)
	plan := Reconcile([]calendar.Event{published(s[0]), published(s[1])}, nil)
	assert.True(t, plan.Empty())
}

func TestReconcile_EmptyRemoteCreatesAll(t *testing.T) {
	s := dayShifts(t, 4)
	reversed := []shift.Shift{s[3], s[2], s[1], s[0]}

	plan := Reconcile(nil, reversed)
	assert.Empty(t, plan.ToDelete)
	assert.Equal(t, s, plan.ToCreate)
}

func TestReconcile_DuplicateLocalCreatedOnce(t *testing.T) {
	s := dayShifts(t, 1)
	plan := Reconcile(nil, []shift.Shift{s[0], s[0]})
	assert.Len(t, plan.ToCreate, 1)
}

func TestReconcile_InSyncIsEmpty(t *testing.T) {
	s := dayShifts(t, 3)
	remote := []calendar.Event{published(s[2]), published(s[0]), published(s[1])}
	assert.True(t, Reconcile(remote, s).Empty())
}

func TestExecute_PartialFailureAccounting(t *testing.T) {
	s := dayShifts(t, 5)
	cal := newFakeCalendar()
	cal.putErrs[s[1].UID.String()] = fmt.Errorf("PUT: %w", calendar.ErrConflict)
	cal.putErrs[s[3].UID.String()] = fmt.Errorf("PUT: %w", calendar.ErrConflict)

	out := NewExecutor(0, nil).Execute(context.Background(), Plan{ToCreate: s}, cal)

	assert.Equal(t, 3, out.SuccessCount)
	require.Len(t, out.Failures, 2)
	assert.Equal(t, s[1].UID, out.Failures[0].Shift.UID)
	assert.Equal(t, s[3].UID, out.Failures[1].Shift.UID)
	for _, f := range out.Failures {
		assert.True(t, f.Conflict())
	}
	assert.Equal(t, len(s), out.SuccessCount+len(out.Failures))
	assert.Len(t, cal.events, 3)
}

func TestExecute_UnexpectedFailureIsNotConflict(t *testing.T) {
	s := dayShifts(t, 2)
	cal := newFakeCalendar()
	cal.putErrs[s[0].UID.String()] = errors.New("connection reset by peer")

	out := NewExecutor(4, nil).Execute(context.Background(), Plan{ToCreate: s}, cal)

	assert.Equal(t, 1, out.SuccessCount)
	require.Len(t, out.Failures, 1)
	assert.False(t, out.Failures[0].Conflict())
}

func TestExecute_BoundedConcurrency(t *testing.T) {
	s := dayShifts(t, 12)
	cal := newFakeCalendar()
	cal.delay = 5 * time.Millisecond

	out := NewExecutor(3, nil).Execute(context.Background(), Plan{ToCreate: s}, cal)

	assert.Equal(t, 12, out.SuccessCount)
	assert.LessOrEqual(t, cal.maxInFlight, 3)
	assert.Zero(t, cal.inFlight, "every write has returned")
}

func TestExecute_DeletesFirstAndContinueOnFailure(t *testing.T) {
	s := dayShifts(t, 4)
	stale := []calendar.Event{published(s[0]), published(s[1])}
	cal := newFakeCalendar(stale...)
	cal.deleteErr[stale[0].UID] = errors.New("HTTP 500")

	out := NewExecutor(0, nil).Execute(context.Background(), Plan{ToDelete: stale, ToCreate: s[2:]}, cal)

	assert.Equal(t, 1, out.Deleted)
	assert.Equal(t, []calendar.Event{stale[0]}, out.DeleteFailures)
	assert.Equal(t, 2, out.SuccessCount)
	assert.Equal(t, []string{"delete", "delete", "put", "put"}, cal.ops)
}

func TestExecute_EmptyPlan(t *testing.T) {
	cal := newFakeCalendar()
	out := NewExecutor(0, nil).Execute(context.Background(), Plan{}, cal)
	assert.Equal(t, Outcome{}, out)
	assert.Empty(t, cal.ops)
}
