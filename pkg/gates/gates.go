// Package gates implements the four structural validation gates run
// over the full event set. Gates are independent: each scans every
// event, none short-circuits another, and a single run reports all
// problems. Grouping uses the raw source activity_id so malformed logs
// are caught even for activities that never resolve.
package gates

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

// Gate names.
const (
	GatePairClosure    = "pair_closure"
	GateHoldClosure    = "hold_closure"
	GateMilestoneUsage = "milestone_usage"
	GateTimestampOrder = "timestamp_order"
)

// Gate checks the full event set and reports findings for one concern.
type Gate func(events []model.EventLogItem) model.ValidationResult

// All returns the gates in their canonical reporting order.
func All() []Gate {
	return []Gate{PairClosure, HoldClosure, MilestoneUsage, TimestampOrder}
}

// RunAll executes every gate to completion and returns results in
// canonical order. Gates run concurrently (they are independent pure
// scans) but the aggregated output is deterministic.
func RunAll(ctx context.Context, events []model.EventLogItem) []model.ValidationResult {
	all := All()
	results := make([]model.ValidationResult, len(all))

	g, _ := errgroup.WithContext(ctx)
	for i, gate := range all {
		i, gate := i, gate
		g.Go(func() error {
			results[i] = gate(events)
			return nil
		})
	}
	_ = g.Wait() // gates collect findings, they never fail
	return results
}

// HasBlockingErrors reports whether any gate produced an error-severity
// finding. Warnings never block.
func HasBlockingErrors(results []model.ValidationResult) bool {
	for _, r := range results {
		if len(r.Errors) > 0 {
			return true
		}
	}
	return false
}

// PairClosure checks that every activity has balanced START/END counts
// and that each positional pair runs forward in time.
func PairClosure(events []model.EventLogItem) model.ValidationResult {
	res := model.ValidationResult{Valid: true, Gate: GatePairClosure}

	forEachActivity(events, func(activityID string, group []model.EventLogItem) {
		var starts, ends []model.EventLogItem
		for _, ev := range group {
			if ev.EventType == model.EventTypeMilestone {
				continue
			}
			switch ev.State {
			case model.StateStart:
				starts = append(starts, ev)
			case model.StateEnd:
				ends = append(ends, ev)
			}
		}

		if len(starts) != len(ends) {
			res.Errors = append(res.Errors, model.ValidationError{
				Severity: model.SeverityError,
				Code:     model.CodeUnpairedStateChange,
				Message: fmt.Sprintf("activity %s has %d START and %d END events",
					activityID, len(starts), len(ends)),
				Events: eventIDs(append(append([]model.EventLogItem{}, starts...), ends...)),
				Details: map[string]any{
					"activity_id": activityID,
					"start_count": len(starts),
					"end_count":   len(ends),
				},
			})
		}

		// Positional pairing: i-th START against i-th END, in
		// appearance order.
		n := len(starts)
		if len(ends) < n {
			n = len(ends)
		}
		for i := 0; i < n; i++ {
			st, errS := starts[i].Time()
			et, errE := ends[i].Time()
			if errS != nil || errE != nil {
				continue // the timestamp gate attributes these
			}
			if !st.Before(et) {
				res.Errors = append(res.Errors, model.ValidationError{
					Severity: model.SeverityError,
					Code:     model.CodeReversedTimestamps,
					Message: fmt.Sprintf("activity %s: START %s is not before END %s",
						activityID, starts[i].EventID, ends[i].EventID),
					Events:  []string{starts[i].EventID, ends[i].EventID},
					Details: map[string]any{"activity_id": activityID},
				})
			}
		}
	})

	res.Valid = len(res.Errors) == 0
	return res
}

// HoldClosure warns on holds that were never resumed (operationally
// normal) and errors on holds missing the reason tag required for
// delay attribution.
func HoldClosure(events []model.EventLogItem) model.ValidationResult {
	res := model.ValidationResult{Valid: true, Gate: GateHoldClosure}

	forEachActivity(events, func(activityID string, group []model.EventLogItem) {
		var holds []model.EventLogItem
		resumes := 0
		for _, ev := range group {
			switch ev.State {
			case model.StateHold:
				holds = append(holds, ev)
				if ev.ReasonTag == "" {
					res.Errors = append(res.Errors, model.ValidationError{
						Severity: model.SeverityError,
						Code:     model.CodeHoldMissingReasonTag,
						Message:  fmt.Sprintf("HOLD event %s has no reason_tag", ev.EventID),
						Events:   []string{ev.EventID},
						Details:  map[string]any{"activity_id": activityID},
					})
				}
			case model.StateResume:
				resumes++
			}
		}

		if excess := len(holds) - resumes; excess > 0 {
			open := holds[len(holds)-excess:]
			reasons := make([]string, len(open))
			for i, ev := range open {
				reasons[i] = ev.ReasonTag
			}
			res.Warnings = append(res.Warnings, model.ValidationError{
				Severity: model.SeverityWarning,
				Code:     model.CodeUnclosedHold,
				Message: fmt.Sprintf("activity %s has %d unresolved HOLD event(s)",
					activityID, excess),
				Events: eventIDs(open),
				Details: map[string]any{
					"activity_id": activityID,
					"reason_tags": reasons,
				},
			})
		}
	})

	res.Valid = len(res.Errors) == 0
	return res
}

// MilestoneUsage rejects milestones conflated with duration
// boundaries: ARRIVE/DEPART are points in time, never START/END.
func MilestoneUsage(events []model.EventLogItem) model.ValidationResult {
	res := model.ValidationResult{Valid: true, Gate: GateMilestoneUsage}

	for _, ev := range events {
		if !ev.IsMilestone() {
			continue
		}
		if ev.State == model.StateStart || ev.State == model.StateEnd {
			res.Errors = append(res.Errors, model.ValidationError{
				Severity: model.SeverityError,
				Code:     model.CodeMilestoneAsDuration,
				Message: fmt.Sprintf("MILESTONE event %s uses duration state %s",
					ev.EventID, ev.State),
				Events:  []string{ev.EventID},
				Details: map[string]any{"activity_id": ev.ActivityID},
			})
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// TimestampOrder checks that every event timestamp parses as ISO-8601
// with an explicit offset.
func TimestampOrder(events []model.EventLogItem) model.ValidationResult {
	res := model.ValidationResult{Valid: true, Gate: GateTimestampOrder}

	for _, ev := range events {
		if _, err := ev.Time(); err != nil {
			res.Errors = append(res.Errors, model.ValidationError{
				Severity: model.SeverityError,
				Code:     model.CodeInvalidTimestamp,
				Message:  fmt.Sprintf("event %s has invalid timestamp %q", ev.EventID, ev.TS),
				Events:   []string{ev.EventID},
				Details:  map[string]any{"activity_id": ev.ActivityID},
			})
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// forEachActivity visits event groups keyed by raw activity_id in
// sorted id order, preserving appearance order within a group.
func forEachActivity(events []model.EventLogItem, fn func(activityID string, group []model.EventLogItem)) {
	groups := make(map[string][]model.EventLogItem)
	for _, ev := range events {
		groups[ev.ActivityID] = append(groups[ev.ActivityID], ev)
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fn(id, groups[id])
	}
}

func eventIDs(events []model.EventLogItem) []string {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.EventID
	}
	return ids
}
