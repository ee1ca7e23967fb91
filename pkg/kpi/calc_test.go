package kpi

import (
	"math"
	"testing"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

const eps = 1e-9

func planned(durationMin float64) model.Activity {
	return model.Activity{
		"plan": map[string]any{
			"start_ts":     "2026-01-26T08:00:00+04:00",
			"duration_min": durationMin,
		},
	}
}

func TestCalcHoursOvernight(t *testing.T) {
	got := CalcHours("2026-01-26T20:00:00+04:00", "2026-01-27T08:00:00+04:00")
	if math.Abs(got-12) > eps {
		t.Errorf("CalcHours = %v, want 12", got)
	}
}

func TestCalcHoursMalformed(t *testing.T) {
	if got := CalcHours("not-a-time", "2026-01-27T08:00:00+04:00"); got != 0 {
		t.Errorf("CalcHours = %v, want 0", got)
	}
}

func TestCalendarKPIZeroVariance(t *testing.T) {
	events := []model.EventLogItem{
		{EventID: "E1", State: model.StateStart, TS: "2026-01-26T08:00:00+04:00"},
		{EventID: "E2", State: model.StateEnd, TS: "2026-01-26T18:00:00+04:00"},
	}
	kpi := CalcCalendarKPI(planned(600), events)
	if math.Abs(kpi.ActualDurationHr-10) > eps {
		t.Errorf("actual = %v, want 10", kpi.ActualDurationHr)
	}
	if math.Abs(kpi.VarianceHr) > eps {
		t.Errorf("variance = %v, want 0", kpi.VarianceHr)
	}
}

func TestCalendarKPIMissingEndIsAllZero(t *testing.T) {
	events := []model.EventLogItem{
		{EventID: "E1", State: model.StateStart, TS: "2026-01-26T08:00:00+04:00"},
	}
	kpi := CalcCalendarKPI(planned(600), events)
	if kpi.ActualDurationHr != 0 || kpi.PlannedDurationHr != 0 || kpi.VarianceHr != 0 {
		t.Errorf("kpi = %+v, want zeros", kpi)
	}
}

func TestCalendarKPIDelayBreakdown(t *testing.T) {
	events := []model.EventLogItem{
		{EventID: "E1", State: model.StateStart, TS: "2026-01-26T08:00:00+04:00"},
		{EventID: "E2", State: model.StateHold, TS: "2026-01-26T10:00:00+04:00", ReasonTag: model.ReasonWeather},
		{EventID: "E3", State: model.StateResume, TS: "2026-01-26T12:00:00+04:00"},
		{EventID: "E4", State: model.StateHold, TS: "2026-01-26T14:00:00+04:00", ReasonTag: model.ReasonPTW},
		{EventID: "E5", State: model.StateResume, TS: "2026-01-26T15:00:00+04:00"},
		{EventID: "E6", State: model.StateEnd, TS: "2026-01-26T18:00:00+04:00"},
	}
	kpi := CalcCalendarKPI(planned(600), events)
	if math.Abs(kpi.DelayCalHr-3) > eps {
		t.Errorf("delay = %v, want 3", kpi.DelayCalHr)
	}
	if math.Abs(kpi.DelayBreakdownHr[model.ReasonWeather]-2) > eps ||
		math.Abs(kpi.DelayBreakdownHr[model.ReasonPTW]-1) > eps {
		t.Errorf("breakdown = %v", kpi.DelayBreakdownHr)
	}
}

func TestCalendarKPIPositionalPairing(t *testing.T) {
	// Events shuffled on input; pairing uses the sorted order, so the
	// first HOLD pairs with the first RESUME by timestamp.
	events := []model.EventLogItem{
		{EventID: "E4", State: model.StateEnd, TS: "2026-01-26T18:00:00+04:00"},
		{EventID: "E3", State: model.StateResume, TS: "2026-01-26T12:00:00+04:00"},
		{EventID: "E2", State: model.StateHold, TS: "2026-01-26T10:00:00+04:00", ReasonTag: model.ReasonWeather},
		{EventID: "E1", State: model.StateStart, TS: "2026-01-26T08:00:00+04:00"},
	}
	kpi := CalcCalendarKPI(planned(600), events)
	if math.Abs(kpi.DelayCalHr-2) > eps {
		t.Errorf("delay = %v, want 2", kpi.DelayCalHr)
	}
}

func TestCalendarKPIMixedOffsetOrdering(t *testing.T) {
	// The +04:00 timestamps sort after the Z ones lexicographically but
	// before them on the clock; pairing must follow the clock. The
	// WEATHER hold runs 19:00Z-20:00Z and the PTW hold 21:00Z-21:30Z.
	events := []model.EventLogItem{
		{EventID: "E1", State: model.StateStart, TS: "2026-01-26T18:00:00Z"},
		{EventID: "E2", State: model.StateHold, TS: "2026-01-26T23:00:00+04:00", ReasonTag: model.ReasonWeather},
		{EventID: "E3", State: model.StateResume, TS: "2026-01-26T20:00:00Z"},
		{EventID: "E4", State: model.StateHold, TS: "2026-01-26T21:00:00Z", ReasonTag: model.ReasonPTW},
		{EventID: "E5", State: model.StateResume, TS: "2026-01-27T01:30:00+04:00"},
		{EventID: "E6", State: model.StateEnd, TS: "2026-01-26T22:00:00Z"},
	}
	kpi := CalcCalendarKPI(planned(600), events)
	if math.Abs(kpi.DelayCalHr-1.5) > eps {
		t.Errorf("delay = %v, want 1.5", kpi.DelayCalHr)
	}
	if math.Abs(kpi.DelayBreakdownHr[model.ReasonWeather]-1) > eps ||
		math.Abs(kpi.DelayBreakdownHr[model.ReasonPTW]-0.5) > eps {
		t.Errorf("breakdown = %v", kpi.DelayBreakdownHr)
	}
}

func TestCalendarKPIHoldWithoutReasonBucketsOther(t *testing.T) {
	events := []model.EventLogItem{
		{EventID: "E1", State: model.StateStart, TS: "2026-01-26T08:00:00+04:00"},
		{EventID: "E2", State: model.StateHold, TS: "2026-01-26T10:00:00+04:00"},
		{EventID: "E3", State: model.StateResume, TS: "2026-01-26T11:00:00+04:00"},
		{EventID: "E4", State: model.StateEnd, TS: "2026-01-26T18:00:00+04:00"},
	}
	kpi := CalcCalendarKPI(planned(600), events)
	if math.Abs(kpi.DelayBreakdownHr[model.ReasonOther]-1) > eps {
		t.Errorf("breakdown = %v", kpi.DelayBreakdownHr)
	}
}

func TestWorkdayKPISingleDay(t *testing.T) {
	events := []model.EventLogItem{
		{EventID: "E1", State: model.StateStart, TS: "2026-01-26T06:00:00+04:00", Site: "MINA"},
		{EventID: "E2", State: model.StateEnd, TS: "2026-01-26T20:00:00+04:00", Site: "MINA"},
	}
	rules := []model.ShiftRule{
		{Site: "MINA", ValidFrom: "2026-01-01", ValidTo: "2026-12-31", DayStart: "08:00", DayEnd: "18:00"},
	}
	cal := CalcCalendarKPI(planned(600), events)
	wd := CalcWorkdayKPI(events, rules, cal)

	// 06:00-20:00 span overlaps the 08:00-18:00 shift for 10 hours.
	if math.Abs(wd.WorkdayDurationHr-10) > eps {
		t.Errorf("workday = %v, want 10", wd.WorkdayDurationHr)
	}
	if math.Abs(wd.EfficiencyRatio-10.0/14.0) > eps {
		t.Errorf("efficiency = %v", wd.EfficiencyRatio)
	}
}

func TestWorkdayKPICrossMidnight(t *testing.T) {
	events := []model.EventLogItem{
		{EventID: "E1", State: model.StateStart, TS: "2026-01-26T16:00:00+04:00", Site: "MINA"},
		{EventID: "E2", State: model.StateEnd, TS: "2026-01-27T10:00:00+04:00", Site: "MINA"},
	}
	rules := []model.ShiftRule{
		{Site: "MINA", ValidFrom: "2026-01-01", ValidTo: "2026-12-31", DayStart: "08:00", DayEnd: "18:00"},
	}
	cal := CalcCalendarKPI(planned(600), events)
	wd := CalcWorkdayKPI(events, rules, cal)

	// Day one contributes 16:00-18:00, day two 08:00-10:00.
	if math.Abs(wd.WorkdayDurationHr-4) > eps {
		t.Errorf("workday = %v, want 4", wd.WorkdayDurationHr)
	}
}

func TestWorkdayKPINoMatchingRuleIsZero(t *testing.T) {
	events := []model.EventLogItem{
		{EventID: "E1", State: model.StateStart, TS: "2026-01-26T08:00:00+04:00", Site: "AGI"},
		{EventID: "E2", State: model.StateEnd, TS: "2026-01-26T18:00:00+04:00", Site: "AGI"},
	}
	rules := []model.ShiftRule{
		{Site: "MINA", ValidFrom: "2026-01-01", ValidTo: "2026-12-31", DayStart: "08:00", DayEnd: "18:00"},
	}
	cal := CalcCalendarKPI(planned(600), events)
	wd := CalcWorkdayKPI(events, rules, cal)
	if wd.WorkdayDurationHr != 0 || wd.EfficiencyRatio != 0 {
		t.Errorf("wd = %+v, want zeros", wd)
	}
}

func TestWorkdayKPIRuleOutsideValidityIsZero(t *testing.T) {
	events := []model.EventLogItem{
		{EventID: "E1", State: model.StateStart, TS: "2026-01-26T08:00:00+04:00", Site: "MINA"},
		{EventID: "E2", State: model.StateEnd, TS: "2026-01-26T18:00:00+04:00", Site: "MINA"},
	}
	rules := []model.ShiftRule{
		{Site: "MINA", ValidFrom: "2025-01-01", ValidTo: "2025-12-31", DayStart: "08:00", DayEnd: "18:00"},
	}
	cal := CalcCalendarKPI(planned(600), events)
	if wd := CalcWorkdayKPI(events, rules, cal); wd.WorkdayDurationHr != 0 {
		t.Errorf("wd = %+v, want zeros", wd)
	}
}
