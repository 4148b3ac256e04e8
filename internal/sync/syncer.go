// Package sync reconciles the shifts read from a roster with the ones already
// published to a calendar and applies the difference.
package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/beekhof/shiftsync/internal/calendar"
	"github.com/beekhof/shiftsync/internal/journal"
	"github.com/beekhof/shiftsync/internal/roster"
	"github.com/beekhof/shiftsync/internal/shift"
)

// Recorder stores a summary of each run.
type Recorder interface {
	Record(ctx context.Context, run *journal.Run) error
}

// Result summarizes one sync run.
type Result struct {
	Name string
	// Shifts is every shift derived from the roster row, in start order.
	Shifts      []shift.Shift
	WindowStart time.Time
	WindowEnd   time.Time
	Plan        Plan
	DryRun      bool
	Outcome
}

// Syncer handles the synchronization of one roster row to one calendar.
type Syncer struct {
	factory      *shift.Factory
	heuristics   roster.Heuristics
	executor     *Executor
	recorder     Recorder
	calendarName string
	dryRun       bool
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithHeuristics overrides the roster layout thresholds.
func WithHeuristics(h roster.Heuristics) Option {
	return func(s *Syncer) { s.heuristics = h }
}

// WithMaxWorkers caps concurrent calendar writes.
func WithMaxWorkers(n int) Option {
	return func(s *Syncer) { s.executor = NewExecutor(n, s.logger) }
}

// WithRecorder records every completed run, labelled with calendarName.
func WithRecorder(r Recorder, calendarName string) Option {
	return func(s *Syncer) {
		s.recorder = r
		s.calendarName = calendarName
	}
}

// WithDryRun computes the plan without touching the calendar.
func WithDryRun(dryRun bool) Option {
	return func(s *Syncer) { s.dryRun = dryRun }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Syncer) {
		if l == nil {
			l = zap.NewNop()
		}
		s.logger = l
		s.executor.logger = l
	}
}

// NewSyncer creates a new Syncer building shifts with factory.
func NewSyncer(factory *shift.Factory, opts ...Option) *Syncer {
	s := &Syncer{
		factory:    factory,
		heuristics: roster.DefaultHeuristics(),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	s.executor = NewExecutor(DefaultMaxWorkers, s.logger)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Shifts parses the roster and returns the shifts rostered to name, in start
// order. Layout and selection errors are returned unchanged.
func (s *Syncer) Shifts(grid roster.Grid, name string) ([]shift.Shift, error) {
	table, err := roster.Parse(grid, s.heuristics)
	if err != nil {
		return nil, err
	}
	assignments, err := table.Assignments(name)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(assignments))
	var shifts []shift.Shift
	for _, a := range assignments {
		sh, ok := s.factory.Make(a.Date, a.Label)
		if !ok {
			continue
		}
		uid := sh.UID.String()
		if _, dup := seen[uid]; dup {
			s.logger.Warn("Duplicate roster entry", zap.String("uid", uid), zap.Time("date", sh.Date), zap.String("label", sh.Label))
			continue
		}
		seen[uid] = struct{}{}
		shifts = append(shifts, sh)
	}
	shift.Sort(shifts)
	return shifts, nil
}

// RunSync makes cal reflect the shifts rostered to name. Layout, selection
// and listing errors abort the run before anything is written. Failed
// writes do not; they are reported in the Result.
func (s *Syncer) RunSync(ctx context.Context, grid roster.Grid, name string, cal calendar.Client) (*Result, error) {
	startedAt := s.now()

	shifts, err := s.Shifts(grid, name)
	if err != nil {
		return nil, err
	}
	res := &Result{Name: name, Shifts: shifts, DryRun: s.dryRun}

	first, last, ok := shift.Span(shifts)
	if !ok {
		s.logger.Info("No shifts rostered, nothing to sync", zap.String("name", name))
		s.record(ctx, startedAt, res)
		return res, nil
	}
	res.WindowStart = first
	res.WindowEnd = last.AddDate(0, 0, 1)

	remote, err := cal.ListShifts(ctx, res.WindowStart, res.WindowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to list published shifts: %w", err)
	}
	remote = inWindow(remote, res.WindowStart, res.WindowEnd)

	res.Plan = Reconcile(remote, shifts)
	s.logger.Info("Planned sync",
		zap.String("name", name),
		zap.Time("window_start", res.WindowStart),
		zap.Time("window_end", res.WindowEnd),
		zap.Int("rostered", len(shifts)),
		zap.Int("published", len(remote)),
		zap.Int("to_create", len(res.Plan.ToCreate)),
		zap.Int("to_delete", len(res.Plan.ToDelete)))

	if s.dryRun {
		s.record(ctx, startedAt, res)
		return res, nil
	}

	res.Outcome = s.executor.Execute(ctx, res.Plan, cal)
	s.logger.Info("Sync complete",
		zap.Int("created", res.SuccessCount),
		zap.Int("failed", len(res.Failures)),
		zap.Int("deleted", res.Deleted),
		zap.Int("delete_failed", len(res.DeleteFailures)))

	s.record(ctx, startedAt, res)
	return res, nil
}

// inWindow drops events starting outside [start, end). Servers report
// anything overlapping the range, including the tail of a night shift that
// began the day before.
func inWindow(events []calendar.Event, start, end time.Time) []calendar.Event {
	kept := events[:0:0]
	for _, e := range events {
		if e.Start.Before(start) || !e.Start.Before(end) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func (s *Syncer) record(ctx context.Context, startedAt time.Time, res *Result) {
	if s.recorder == nil {
		return
	}
	run := &journal.Run{
		StartedAt:    startedAt,
		Name:         res.Name,
		Calendar:     s.calendarName,
		WindowStart:  res.WindowStart,
		WindowEnd:    res.WindowEnd,
		DryRun:       res.DryRun,
		Planned:      len(res.Plan.ToCreate),
		Created:      res.SuccessCount,
		Deleted:      res.Deleted,
		DeleteFailed: len(res.DeleteFailures),
	}
	for _, f := range res.Failures {
		run.Failures = append(run.Failures, journal.Failure{
			UID:      f.Shift.UID.String(),
			Summary:  f.Shift.Summary,
			Start:    f.Shift.Start,
			Conflict: f.Conflict(),
			Message:  f.Err.Error(),
		})
	}
	if err := s.recorder.Record(ctx, run); err != nil {
		s.logger.Warn("Failed to record sync run", zap.Error(err))
	}
}
