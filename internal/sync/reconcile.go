package sync

import (
	"github.com/beekhof/shiftsync/internal/calendar"
	"github.com/beekhof/shiftsync/internal/shift"
)

// Plan is the set of remote changes that makes the calendar match the roster.
type Plan struct {
	ToDelete []calendar.Event
	ToCreate []shift.Shift
}

// Empty reports whether applying the plan would change nothing.
func (p Plan) Empty() bool {
	return len(p.ToDelete) == 0 && len(p.ToCreate) == 0
}

// Reconcile compares the published shifts with the roster-derived ones by UID.
// Remote events with no local counterpart are deleted and local shifts with no
// remote counterpart are created. A UID present on both sides is left alone,
// even if its summary differs.
//
// An empty local set yields an empty plan: with no roster dates there is no
// window, and nothing remote may be deleted.
func Reconcile(remote []calendar.Event, local []shift.Shift) Plan {
	if len(local) == 0 {
		return Plan{}
	}

	localUIDs := make(map[string]struct{}, len(local))
	for _, s := range local {
		localUIDs[s.UID.String()] = struct{}{}
	}
	remoteUIDs := make(map[string]struct{}, len(remote))
	for _, e := range remote {
		remoteUIDs[e.UID] = struct{}{}
	}

	var plan Plan
	for _, e := range remote {
		if _, ok := localUIDs[e.UID]; !ok {
			plan.ToDelete = append(plan.ToDelete, e)
		}
	}

	queued := make(map[string]struct{}, len(local))
	for _, s := range local {
		uid := s.UID.String()
		if _, ok := remoteUIDs[uid]; ok {
			continue
		}
		if _, ok := queued[uid]; ok {
			continue
		}
		queued[uid] = struct{}{}
		plan.ToCreate = append(plan.ToCreate, s)
	}
	shift.Sort(plan.ToCreate)
	return plan
}
