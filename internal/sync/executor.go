package sync

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beekhof/shiftsync/internal/calendar"
	"github.com/beekhof/shiftsync/internal/shift"
)

// DefaultMaxWorkers caps the number of concurrent calendar writes.
const DefaultMaxWorkers = 32

// Failure is a shift that could not be written.
type Failure struct {
	Shift shift.Shift
	Err   error
}

// Conflict reports whether the server rejected the write because the event
// already exists in an incompatible state.
func (f Failure) Conflict() bool {
	return errors.Is(f.Err, calendar.ErrConflict)
}

// Outcome is what applying a Plan achieved.
// SuccessCount+len(Failures) always equals len(plan.ToCreate).
type Outcome struct {
	Deleted        int
	DeleteFailures []calendar.Event
	SuccessCount   int
	Failures       []Failure
}

// Executor applies plans to a calendar.
type Executor struct {
	maxWorkers int
	logger     *zap.Logger
}

// NewExecutor returns an Executor running at most maxWorkers writes at once.
// A non-positive maxWorkers means DefaultMaxWorkers.
func NewExecutor(maxWorkers int, logger *zap.Logger) *Executor {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{maxWorkers: maxWorkers, logger: logger}
}

// Execute applies the deletions one at a time, then the creations
// concurrently. Individual failures are collected, never returned. Execute
// returns once every write has finished.
func (x *Executor) Execute(ctx context.Context, plan Plan, cal calendar.Client) Outcome {
	var out Outcome

	for _, e := range plan.ToDelete {
		if err := cal.DeleteShift(ctx, e); err != nil {
			x.logger.Error("Failed to delete stale shift",
				zap.String("uid", e.UID), zap.String("summary", e.Summary), zap.Error(err))
			out.DeleteFailures = append(out.DeleteFailures, e)
			continue
		}
		x.logger.Debug("Deleted stale shift", zap.String("uid", e.UID), zap.String("summary", e.Summary))
		out.Deleted++
	}

	if len(plan.ToCreate) == 0 {
		return out
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(min(len(plan.ToCreate), x.maxWorkers))

	for _, s := range plan.ToCreate {
		g.Go(func() error {
			err := cal.PutShift(ctx, s)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				out.SuccessCount++
				x.logger.Debug("Created shift",
					zap.String("uid", s.UID.String()), zap.String("summary", s.Summary), zap.Time("start", s.Start))
				return nil
			}

			f := Failure{Shift: s, Err: err}
			fields := []zap.Field{
				zap.String("uid", s.UID.String()),
				zap.String("summary", s.Summary),
				zap.Time("start", s.Start),
				zap.Error(err),
			}
			if f.Conflict() {
				x.logger.Warn("Shift conflicts with existing event", append(fields, zap.String("reason", "conflict"))...)
			} else {
				x.logger.Error("Failed to create shift", append(fields, zap.String("reason", "unexpected"))...)
			}
			out.Failures = append(out.Failures, f)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(out.Failures, func(i, j int) bool {
		return shift.Less(out.Failures[i].Shift, out.Failures[j].Shift)
	})
	return out
}
