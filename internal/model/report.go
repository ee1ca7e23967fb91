package model

import "time"

// ResolutionResult documents how an event was linked to a canonical
// activity. Confidence records how trust was established; it is never
// combined with other signals afterwards.
type ResolutionResult struct {
	ResolvedID string  `json:"resolved_id,omitempty"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
}

// Resolution methods, in ladder order.
const (
	MethodDirect   = "direct"
	MethodAlias    = "alias"
	MethodAuto     = "auto"
	MethodUnlinked = "unlinked"
)

// Linked reports whether the event resolved to a canonical activity.
func (r ResolutionResult) Linked() bool {
	return r.ResolvedID != ""
}

// UnlinkedEvent annotates an unresolved event with its best auto-match
// suggestion (surfaced even below the acceptance threshold) for human
// curation.
type UnlinkedEvent struct {
	EventID          string  `json:"event_id"`
	SourceActivityID string  `json:"source_activity_id"`
	Suggestion       string  `json:"suggestion,omitempty"`
	Confidence       float64 `json:"confidence"`
}

// AliasSuggestion is a deduplicated from->to alias correction
// candidate; the highest-confidence reason per pair is kept.
type AliasSuggestion struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// PR1Report summarizes the resolve+validate stage. Read-only audit
// artifact; later stages never consume it as state.
type PR1Report struct {
	ReportID          string             `json:"report_id"`
	GeneratedAt       time.Time          `json:"generated_at"`
	TotalEvents       int                `json:"total_events"`
	LinkedCount       int                `json:"linked_count"`
	UnlinkedCount     int                `json:"unlinked_count"`
	MatchingRate      float64            `json:"matching_rate"`
	ValidationResults []ValidationResult `json:"validation_results"`
	UnlinkedEvents    []UnlinkedEvent    `json:"unlinked_events"`
	AliasSuggestions  []AliasSuggestion  `json:"alias_suggestions"`
}

// BlockingErrors returns all error-severity findings across gates.
// Any one of them blocks stage 2; warnings never do.
func (r *PR1Report) BlockingErrors() []ValidationError {
	var errs []ValidationError
	for _, vr := range r.ValidationResults {
		errs = append(errs, vr.Errors...)
	}
	return errs
}

// PatchStats summarizes a generated patch set.
type PatchStats struct {
	OpsByType          map[string]int `json:"ops_by_type"`
	OpsByField         map[string]int `json:"ops_by_field"`
	AffectedActivities int            `json:"affected_activities"`
	AvgOpsPerActivity  float64        `json:"avg_ops_per_activity"`
}

// PR2Report summarizes the patch+apply stage.
type PR2Report struct {
	ReportID    string        `json:"report_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Patch       PatchDocument `json:"patch_document"`
	Stats       PatchStats    `json:"stats"`
}

// Variance alert levels.
const (
	AlertHigh     = "high"
	AlertCritical = "critical"
)

// VarianceAlert flags an activity whose |variance| crossed a threshold.
type VarianceAlert struct {
	ActivityID string  `json:"activity_id"`
	VarianceHr float64 `json:"variance_hr"`
	Level      string  `json:"level"`
}

// PR3Report summarizes the derived-KPI stage.
type PR3Report struct {
	ReportID        string                `json:"report_id"`
	GeneratedAt     time.Time             `json:"generated_at"`
	KPIs            map[string]DerivedKPI `json:"kpis"`
	KPIPatches      []PatchOp             `json:"kpi_patches"`
	MeanVarianceHr  float64               `json:"mean_variance_hr"`
	TotalDelayHr    float64               `json:"total_delay_hr"`
	DelayByReasonHr map[string]float64    `json:"delay_by_reason_hr"`
	Alerts          []VarianceAlert       `json:"alerts"`
}
