// Package kpi derives calendar-track and workday-track performance
// indicators per activity from its resolved events and plan.
package kpi

import (
	"sort"
	"time"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

// CalcHours returns the fractional hours between two RFC3339 timestamps.
// Malformed timestamps yield zero; missing-data KPIs are zeros, not
// errors.
func CalcHours(from, to string) float64 {
	a, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return 0
	}
	b, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return 0
	}
	return b.Sub(a).Hours()
}

// CalcCalendarKPI derives the calendar-clock KPIs for one activity from
// its events. Requires both a START and an END; otherwise all fields
// are zero, with no partial-duration estimation.
func CalcCalendarKPI(activity model.Activity, events []model.EventLogItem) model.CalendarTrackKPI {
	out := model.CalendarTrackKPI{DelayBreakdownHr: map[string]float64{}}

	sorted := chronological(events)

	var firstStart, lastEnd string
	var holds, resumes []model.EventLogItem
	for _, ev := range sorted {
		if ev.IsMilestone() {
			continue
		}
		switch ev.State {
		case model.StateStart:
			if firstStart == "" {
				firstStart = ev.TS
			}
		case model.StateEnd:
			lastEnd = ev.TS
		case model.StateHold:
			holds = append(holds, ev)
		case model.StateResume:
			resumes = append(resumes, ev)
		}
	}

	if firstStart == "" || lastEnd == "" {
		return out
	}

	out.ActualDurationHr = CalcHours(firstStart, lastEnd)
	out.PlannedDurationHr = activity.PlanDurationMin() / 60
	out.VarianceHr = out.ActualDurationHr - out.PlannedDurationHr

	// Strict positional pairing: i-th HOLD with i-th RESUME after the
	// chronological sort, never nearest-neighbor.
	n := len(holds)
	if len(resumes) < n {
		n = len(resumes)
	}
	for i := 0; i < n; i++ {
		hr := CalcHours(holds[i].TS, resumes[i].TS)
		if hr <= 0 {
			continue
		}
		reason := holds[i].ReasonTag
		if reason == "" {
			reason = model.ReasonOther
		}
		out.DelayCalHr += hr
		out.DelayBreakdownHr[reason] += hr
	}
	return out
}

// CalcWorkdayKPI derives work-hours-only KPIs. It needs a shift rule
// matching the activity's site whose validity range contains the first
// START event; without one, the workday track is zero.
func CalcWorkdayKPI(events []model.EventLogItem, rules []model.ShiftRule, cal model.CalendarTrackKPI) model.WorkdayTrackKPI {
	var out model.WorkdayTrackKPI
	if cal.ActualDurationHr <= 0 {
		return out
	}

	sorted := chronological(events)

	var start, end time.Time
	var site string
	for _, ev := range sorted {
		if ev.IsMilestone() {
			continue
		}
		switch ev.State {
		case model.StateStart:
			if start.IsZero() {
				t, err := ev.Time()
				if err != nil {
					return out
				}
				start = t
				site = ev.Site
			}
		case model.StateEnd:
			t, err := ev.Time()
			if err == nil {
				end = t
			}
		}
	}
	if start.IsZero() || end.IsZero() {
		return out
	}

	rule, ok := matchRule(rules, site, start)
	if !ok {
		return out
	}
	dayStart, dayEnd, err := rule.Window()
	if err != nil || dayEnd <= dayStart {
		return out
	}

	out.WorkdayDurationHr = workMinutes(start, end, dayStart, dayEnd) / 60
	out.EfficiencyRatio = out.WorkdayDurationHr / cal.ActualDurationHr
	return out
}

// chronological returns the events sorted ts-ascending by parsed
// timestamp. Comparing raw ts strings mis-orders mixed-offset logs, so
// the sort parses. The sort is stable; events whose timestamp does not
// parse sort last in input order, and the hour math treats them as
// zero anyway.
func chronological(events []model.EventLogItem) []model.EventLogItem {
	type timed struct {
		ev model.EventLogItem
		t  time.Time
		ok bool
	}
	ordered := make([]timed, len(events))
	for i, ev := range events {
		t, err := ev.Time()
		ordered[i] = timed{ev: ev, t: t, ok: err == nil}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ok != ordered[j].ok {
			return ordered[i].ok
		}
		return ordered[i].t.Before(ordered[j].t)
	})

	out := make([]model.EventLogItem, len(ordered))
	for i, te := range ordered {
		out[i] = te.ev
	}
	return out
}

func matchRule(rules []model.ShiftRule, site string, at time.Time) (model.ShiftRule, bool) {
	for _, r := range rules {
		if r.Site == site && r.Contains(at) {
			return r, true
		}
	}
	return model.ShiftRule{}, false
}

// workMinutes sums, day by day, the overlap between [start, end] and
// that day's shift window.
func workMinutes(start, end time.Time, dayStart, dayEnd int) float64 {
	var total float64
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	for !day.After(end) {
		ws := day.Add(time.Duration(dayStart) * time.Minute)
		we := day.Add(time.Duration(dayEnd) * time.Minute)
		if ws.Before(start) {
			ws = start
		}
		if we.After(end) {
			we = end
		}
		if we.After(ws) {
			total += we.Sub(ws).Minutes()
		}
		day = day.AddDate(0, 0, 1)
	}
	return total
}
