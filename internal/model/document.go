package model

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Document is the decoded canonical planning document (the SSOT).
// It stays a generic JSON tree because patches navigate arbitrary
// pointer paths; typed views are provided where the pipeline needs
// structure. The `plan` subtree of every activity is read-only.
type Document map[string]any

// DecodeDocument reads a canonical document from r.
func DecodeDocument(r io.Reader) (Document, error) {
	var d Document
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode canonical document: %w", err)
	}
	return d, nil
}

// Encode writes the document as indented JSON.
func (d Document) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// Activities returns the entities.activities map, or nil if absent.
func (d Document) Activities() map[string]any {
	entities, ok := d["entities"].(map[string]any)
	if !ok {
		return nil
	}
	acts, ok := entities["activities"].(map[string]any)
	if !ok {
		return nil
	}
	return acts
}

// Activity returns the activity with the given id.
func (d Document) Activity(id string) (Activity, bool) {
	acts := d.Activities()
	if acts == nil {
		return nil, false
	}
	raw, ok := acts[id].(map[string]any)
	if !ok {
		return nil, false
	}
	return Activity(raw), true
}

// ActivityIDs returns all activity ids, unordered.
func (d Document) ActivityIDs() []string {
	acts := d.Activities()
	ids := make([]string, 0, len(acts))
	for id := range acts {
		ids = append(ids, id)
	}
	return ids
}

// Clone returns a deep copy of the document. Every reconciliation run
// works on its own clone; the input document is never mutated.
func (d Document) Clone() Document {
	return Document(deepCopyMap(d))
}

// Activity is a typed view over one activity object in the document.
// The underlying map is shared with the document it came from.
type Activity map[string]any

// Clone returns a deep copy of the activity, detached from its document.
func (a Activity) Clone() Activity {
	return Activity(deepCopyMap(a))
}

// Plan returns the immutable plan block, or nil if absent.
func (a Activity) Plan() map[string]any {
	p, _ := a["plan"].(map[string]any)
	return p
}

// Actual returns the mutable actual block, or nil if absent.
func (a Activity) Actual() map[string]any {
	m, _ := a["actual"].(map[string]any)
	return m
}

// State returns the activity state (e.g. planned, in_progress, done).
func (a Activity) State() string {
	s, _ := a["state"].(string)
	return s
}

// TypeID returns the activity type identifier (e.g. "loadout_ops").
func (a Activity) TypeID() string {
	s, _ := a["type_id"].(string)
	return s
}

// TRUnits returns the transport units assigned to the activity.
func (a Activity) TRUnits() []string {
	raw, ok := a["tr_units"].([]any)
	if !ok {
		return nil
	}
	units := make([]string, 0, len(raw))
	for _, u := range raw {
		if s, ok := u.(string); ok {
			units = append(units, s)
		}
	}
	return units
}

// PlanStart returns the planned start timestamp, if present and valid.
func (a Activity) PlanStart() (time.Time, bool) {
	plan := a.Plan()
	if plan == nil {
		return time.Time{}, false
	}
	s, ok := plan["start_ts"].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// PlanDurationMin returns plan.duration_min as a float, 0 if absent.
func (a Activity) PlanDurationMin() float64 {
	plan := a.Plan()
	if plan == nil {
		return 0
	}
	return toFloat(plan["duration_min"])
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		// Scalars (string, bool, float64, json.Number, nil) are immutable.
		return v
	}
}
