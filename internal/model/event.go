// Package model defines the core data structures shared by the
// reconciliation pipeline: observed events, the canonical planning
// document, patches, validation findings, KPIs and stage reports.
package model

import "time"

// Event types.
const (
	EventTypeStateChange = "STATE_CHANGE"
	EventTypeMilestone   = "MILESTONE"
)

// Event states.
const (
	StateStart  = "START"
	StateEnd    = "END"
	StateHold   = "HOLD"
	StateResume = "RESUME"
	StateArrive = "ARRIVE"
	StateDepart = "DEPART"
)

// Reason tags (closed vocabulary for delay attribution).
const (
	ReasonWeather       = "WEATHER"
	ReasonTide          = "TIDE"
	ReasonBerthOccupied = "BERTH_OCCUPIED"
	ReasonPTW           = "PTW"
	ReasonHM            = "HM"
	ReasonMWS           = "MWS"
	ReasonCert          = "CERT"
	ReasonResource      = "RESOURCE"

	// ReasonOther buckets holds carrying no reason tag in KPI breakdowns.
	ReasonOther = "OTHER"
)

// EventLogItem is one observed real-world fact about an activity's
// execution. Items are created by the parser and immutable thereafter;
// only their derived effects (patches, KPIs) persist.
type EventLogItem struct {
	EventID    string `json:"event_id"`
	TripID     string `json:"trip_id"`
	TRUnit     string `json:"tr_unit,omitempty"`
	Site       string `json:"site"`
	Asset      string `json:"asset"`
	EventType  string `json:"event_type"`
	Phase      string `json:"phase"`
	State      string `json:"state"`
	TS         string `json:"ts"`
	ActivityID string `json:"activity_id"`
	ReasonTag  string `json:"reason_tag,omitempty"`
	Actor      string `json:"actor,omitempty"`
	Note       string `json:"note,omitempty"`
}

// Time parses the event timestamp (ISO-8601 with explicit UTC offset).
func (e EventLogItem) Time() (time.Time, error) {
	return time.Parse(time.RFC3339, e.TS)
}

// IsMilestone reports whether the event is a point-in-time milestone.
func (e EventLogItem) IsMilestone() bool {
	return e.EventType == EventTypeMilestone
}
