// Package patch generates, validates and applies the RFC6902-style
// operations that carry observed events onto the canonical document's
// mutable surface. The plan subtree is never touched; the set
// validator is the single enforcement point of that invariant.
package patch

import (
	"strings"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

// Activity states driven by events.
const (
	ActivityInProgress = "in_progress"
	ActivityDone       = "done"
	ActivityBlocked    = "blocked"
	ActivityPaused     = "paused"
)

// GenerateForEvent translates one resolved event into patch operations
// against the activity's current state. Pure: the add-vs-replace
// decision is made by inspecting current, nothing is mutated here.
func GenerateForEvent(ev model.EventLogItem, activityID string, current model.Activity) []model.PatchOp {
	base := ActivityPath(activityID)
	var ops []model.PatchOp

	switch ev.State {
	case model.StateStart:
		ops = append(ops,
			fieldOp(current.Actual(), "start_ts", base+"/actual/start_ts", ev.TS),
			fieldOp(current, "state", base+"/state", ActivityInProgress),
		)

	case model.StateEnd:
		ops = append(ops,
			fieldOp(current.Actual(), "end_ts", base+"/actual/end_ts", ev.TS),
			fieldOp(current.Actual(), "progress_pct", base+"/actual/progress_pct", 100),
			fieldOp(current, "state", base+"/state", ActivityDone),
		)

	case model.StateHold:
		// Weather holds block outright; every other reason merely
		// pauses. Intentional asymmetry, pinned by tests.
		state := ActivityPaused
		if ev.ReasonTag == model.ReasonWeather {
			state = ActivityBlocked
		}
		ops = append(ops, fieldOp(current, "state", base+"/state", state))

		if ev.ReasonTag != "" {
			reason := ev.Note
			if reason == "" {
				reason = ev.ReasonTag
			}
			ops = append(ops,
				fieldOp(current, "blocker_code", base+"/blocker_code", ev.ReasonTag),
				fieldOp(current, "blocker_detail", base+"/blocker_detail", map[string]any{
					"hold_start_ts": ev.TS,
					"reason":        reason,
					"eta_to_clear":  nil,
				}),
			)
		}

	case model.StateResume:
		ops = append(ops,
			fieldOp(current, "state", base+"/state", ActivityInProgress),
			fieldOp(current, "blocker_code", base+"/blocker_code", nil),
		)
		if detail, ok := current["blocker_detail"].(map[string]any); ok {
			ops = append(ops, fieldOp(detail, "hold_end_ts", base+"/blocker_detail/hold_end_ts", ev.TS))
		}

	case model.StateArrive, model.StateDepart:
		// Milestones never represent duration; they only append to the
		// activity's history.
		ops = append(ops, appendOps(current, "history_events", base, map[string]any{
			"event_id":   ev.EventID,
			"ts":         ev.TS,
			"actor":      ev.Actor,
			"event_type": "milestone",
			"entity_ref": activityID,
			"details": map[string]any{
				"phase": ev.Phase,
				"state": ev.State,
				"note":  ev.Note,
				"site":  ev.Site,
			},
		})...)
	}

	// Audit trail: every event records itself on the activity,
	// whatever its state.
	ops = append(ops, appendOps(current, "event_log_refs", base, ev.EventID)...)
	return ops
}

// ActivityPath returns the escaped pointer prefix for an activity.
// Every patch path targeting an activity goes through here so ids
// containing pointer metacharacters escape consistently.
func ActivityPath(id string) string {
	return "/entities/activities/" + escapeSegment(id)
}

// fieldOp emits add when the field is currently absent, replace
// otherwise.
func fieldOp(container map[string]any, key, path string, value any) model.PatchOp {
	op := model.OpAdd
	if container != nil {
		if _, ok := container[key]; ok {
			op = model.OpReplace
		}
	}
	return model.PatchOp{Op: op, Path: path, Value: value}
}

// appendOps appends value to the named array of the activity, emitting
// an array-creation op first when the array does not exist yet.
func appendOps(current model.Activity, field, base string, value any) []model.PatchOp {
	var ops []model.PatchOp
	if _, ok := current[field]; !ok {
		ops = append(ops, model.PatchOp{Op: model.OpAdd, Path: base + "/" + field, Value: []any{}})
	}
	ops = append(ops, model.PatchOp{Op: model.OpAdd, Path: base + "/" + field + "/-", Value: value})
	return ops
}

// escapeSegment applies JSON pointer escaping to one path segment.
func escapeSegment(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}
