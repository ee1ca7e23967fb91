package model

import (
	"encoding/json"
	"time"
)

// Patch operation kinds (the subset of RFC6902 the pipeline emits).
const (
	OpAdd     = "add"
	OpReplace = "replace"
	OpRemove  = "remove"
)

// PatchSchemaURL identifies the patch document flavor.
const PatchSchemaURL = "https://datatracker.ietf.org/doc/html/rfc6902"

// PatchOp is one RFC6902-style operation. Paths are JSON pointers
// rooted at /entities/activities/{id}/... and are only ever produced
// by the patch generator, never hand-authored.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// MarshalJSON emits the value member for add/replace even when the
// value is null (e.g. blocker_code -> null), and omits it for remove.
func (p PatchOp) MarshalJSON() ([]byte, error) {
	if p.Op == OpRemove {
		return json.Marshal(struct {
			Op   string `json:"op"`
			Path string `json:"path"`
		}{p.Op, p.Path})
	}
	return json.Marshal(struct {
		Op    string `json:"op"`
		Path  string `json:"path"`
		Value any    `json:"value"`
	}{p.Op, p.Path, p.Value})
}

// PatchSource records what a patch document was generated from.
type PatchSource struct {
	PR1ReportID       string `json:"pr1_report_id"`
	EventsCount       int    `json:"events_count"`
	LinkedEventsCount int    `json:"linked_events_count"`
}

// PatchDocument is the PR2 output artifact.
type PatchDocument struct {
	Schema      string      `json:"schema"`
	GeneratedAt time.Time   `json:"generated_at"`
	Source      PatchSource `json:"source"`
	Operations  []PatchOp   `json:"operations"`
}
