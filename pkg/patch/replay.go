package patch

import (
	"fmt"
	"sort"
	"time"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

// GenerateAll replays resolved events in chronological order and
// returns the combined patch set. Each activity gets a lazily-cloned
// accumulator on first touch; patches are generated against the
// accumulator and folded back into it before the next event for the
// same activity, so add-vs-replace decisions (and HOLD/RESUME
// bookkeeping) see all earlier effects within the run. The accumulator
// map is discarded when the run ends; the input document is untouched.
//
// Events with no resolution, an unlinked resolution, or an unparseable
// timestamp are skipped; the stage-1 gates attribute those.
func GenerateAll(events []model.EventLogItem, resolutions map[string]model.ResolutionResult, doc model.Document) ([]model.PatchOp, error) {
	ordered := chronological(events)

	acc := make(map[string]model.Activity)
	var out []model.PatchOp

	for _, ev := range ordered {
		res, ok := resolutions[ev.EventID]
		if !ok || !res.Linked() {
			continue
		}
		id := res.ResolvedID

		current, ok := acc[id]
		if !ok {
			orig, found := doc.Activity(id)
			if !found {
				// A resolution always points at an existing activity;
				// anything else is a logic defect worth surfacing.
				return nil, fmt.Errorf("resolved activity %q not in document", id)
			}
			current = orig.Clone()
			acc[id] = current
		}

		ops := GenerateForEvent(ev, id, current)
		out = append(out, ops...)

		updated, err := fold(id, current, ops)
		if err != nil {
			return nil, fmt.Errorf("fold event %s: %w", ev.EventID, err)
		}
		acc[id] = updated
	}

	return out, nil
}

// fold applies ops to a document shaped around the single accumulator
// activity and returns the updated activity state.
func fold(id string, current model.Activity, ops []model.PatchOp) (model.Activity, error) {
	tmp := model.Document{
		"entities": map[string]any{
			"activities": map[string]any{id: map[string]any(current)},
		},
	}
	res := Apply(tmp, ops)
	if !res.Success {
		return nil, fmt.Errorf("apply to accumulator: %v", res.Errors)
	}
	updated, ok := res.Document.Activity(id)
	if !ok {
		return nil, fmt.Errorf("accumulator for %q lost", id)
	}
	return updated, nil
}

// chronological returns the events sorted ts-ascending. The sort is
// stable so same-timestamp events keep input order; events whose
// timestamp does not parse are dropped (replay order is undefined for
// them).
func chronological(events []model.EventLogItem) []model.EventLogItem {
	type timed struct {
		ev model.EventLogItem
		t  time.Time
	}
	ordered := make([]timed, 0, len(events))
	for _, ev := range events {
		t, err := ev.Time()
		if err != nil {
			continue
		}
		ordered = append(ordered, timed{ev, t})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].t.Before(ordered[j].t)
	})

	out := make([]model.EventLogItem, len(ordered))
	for i, te := range ordered {
		out[i] = te.ev
	}
	return out
}
