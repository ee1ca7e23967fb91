package model

import (
	"fmt"
	"time"
)

// CalendarTrackKPI is derived purely from events and plan, on the
// calendar clock. Positive variance is an overrun.
type CalendarTrackKPI struct {
	ActualDurationHr  float64            `json:"actual_duration_hr"`
	PlannedDurationHr float64            `json:"planned_duration_hr"`
	VarianceHr        float64            `json:"variance_hr"`
	DelayCalHr        float64            `json:"delay_cal_hr"`
	DelayBreakdownHr  map[string]float64 `json:"delay_breakdown_hr"`
}

// WorkdayTrackKPI measures work-hours-only duration under a ShiftRule.
// Zero when no rule matches; that is not an error.
type WorkdayTrackKPI struct {
	WorkdayDurationHr float64 `json:"workday_duration_hr"`
	EfficiencyRatio   float64 `json:"efficiency_ratio"`
}

// DerivedKPI is the per-activity KPI pair attached by PR3.
type DerivedKPI struct {
	Cal CalendarTrackKPI `json:"cal"`
	WD  WorkdayTrackKPI  `json:"wd"`
}

// ShiftRule describes the working window at a site over a validity
// range. Owned externally, consumed read-only.
type ShiftRule struct {
	Site      string `yaml:"site" json:"site"`
	ValidFrom string `yaml:"valid_from" json:"valid_from"` // YYYY-MM-DD, inclusive
	ValidTo   string `yaml:"valid_to" json:"valid_to"`     // YYYY-MM-DD, inclusive
	DayStart  string `yaml:"day_start" json:"day_start"`   // HH:MM local to the event offset
	DayEnd    string `yaml:"day_end" json:"day_end"`       // HH:MM
}

// Contains reports whether t falls inside the rule's validity range.
func (r ShiftRule) Contains(t time.Time) bool {
	from, err := time.Parse("2006-01-02", r.ValidFrom)
	if err != nil {
		return false
	}
	to, err := time.Parse("2006-01-02", r.ValidTo)
	if err != nil {
		return false
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(from) && !day.After(to)
}

// Window returns the shift start/end as minutes from midnight.
func (r ShiftRule) Window() (startMin, endMin int, err error) {
	startMin, err = parseClock(r.DayStart)
	if err != nil {
		return 0, 0, fmt.Errorf("shift rule day_start: %w", err)
	}
	endMin, err = parseClock(r.DayEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("shift rule day_end: %w", err)
	}
	return startMin, endMin, nil
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*60 + m, nil
}
