package pipeline

import (
	"context"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/macho715/tr-dash-sub000/internal/model"
	"github.com/macho715/tr-dash-sub000/pkg/parser"
)

const eventCSV = `event_id,trip_id,tr_unit,site,asset,event_type,phase,state,ts,activity_id,reason_tag,actor,note
E1,TRIP-1,TR-01,MINA,SPMT-1,STATE_CHANGE,LOADOUT,START,2026-01-26T08:00:00+04:00,ACT-001,,ops,
E2,TRIP-1,TR-01,MINA,SPMT-1,STATE_CHANGE,LOADOUT,HOLD,2026-01-26T10:00:00+04:00,ACT-001,WEATHER,ops,wind
E3,TRIP-1,TR-01,MINA,SPMT-1,STATE_CHANGE,LOADOUT,RESUME,2026-01-26T12:00:00+04:00,ACT-001,,ops,
E4,TRIP-1,TR-01,MINA,SPMT-1,STATE_CHANGE,LOADOUT,END,2026-01-26T20:00:00+04:00,ACT-001,,ops,
E5,TRIP-1,TR-02,MINA,SPMT-2,STATE_CHANGE,LOADOUT,START,2026-01-27T08:00:00+04:00,GHOST-9,,ops,
`

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := parser.NewParser(parser.FormatCSV)
	if err != nil {
		t.Fatal(err)
	}
	return New(p, nil, nil)
}

func testDocument() model.Document {
	return model.Document{
		"entities": map[string]any{
			"activities": map[string]any{
				"ACT-001": map[string]any{
					"type_id": "loadout_ops",
					"state":   "planned",
					"plan": map[string]any{
						"start_ts":     "2026-01-26T08:00:00+04:00",
						"duration_min": float64(600),
					},
				},
			},
		},
	}
}

func parseEvents(t *testing.T, p *Pipeline) []model.EventLogItem {
	t.Helper()
	events, err := p.Parse(strings.NewReader(eventCSV))
	if err != nil {
		t.Fatal(err)
	}
	return events
}

func TestPR1Counts(t *testing.T) {
	p := testPipeline(t)
	events := parseEvents(t, p)

	report, err := p.RunPR1(context.Background(), events, testDocument())
	if err != nil {
		t.Fatal(err)
	}

	if report.TotalEvents != 5 || report.LinkedCount != 4 || report.UnlinkedCount != 1 {
		t.Errorf("counts = %d/%d/%d", report.TotalEvents, report.LinkedCount, report.UnlinkedCount)
	}
	if math.Abs(report.MatchingRate-0.8) > 1e-9 {
		t.Errorf("matching rate = %v", report.MatchingRate)
	}
	if report.ReportID == "" {
		t.Error("missing report id")
	}
	if len(report.ValidationResults) != 4 {
		t.Errorf("gate results = %d, want 4", len(report.ValidationResults))
	}
}

func TestPR1UnlinkedCarriesSuggestion(t *testing.T) {
	p := testPipeline(t)
	events := parseEvents(t, p)

	report, err := p.RunPR1(context.Background(), events, testDocument())
	if err != nil {
		t.Fatal(err)
	}

	if len(report.UnlinkedEvents) != 1 {
		t.Fatalf("unlinked = %+v", report.UnlinkedEvents)
	}
	ue := report.UnlinkedEvents[0]
	if ue.EventID != "E5" || ue.SourceActivityID != "GHOST-9" {
		t.Errorf("unlinked event = %+v", ue)
	}
	// E5 scores phase(40) + one-day date proximity(20) against ACT-001
	// but misses the TR unit: 60, below acceptance, surfaced for review.
	if ue.Suggestion != "ACT-001" {
		t.Errorf("suggestion = %q", ue.Suggestion)
	}
	if math.Abs(ue.Confidence-0.6) > 1e-9 {
		t.Errorf("confidence = %v", ue.Confidence)
	}
}

func TestPR2PatchesAndApplies(t *testing.T) {
	p := testPipeline(t)
	events := parseEvents(t, p)
	doc := testDocument()

	report, patched, err := p.RunPR2(context.Background(), events, doc, "pr1-id")
	if err != nil {
		t.Fatal(err)
	}

	if report.Patch.Schema != model.PatchSchemaURL {
		t.Errorf("schema = %q", report.Patch.Schema)
	}
	if report.Patch.Source.PR1ReportID != "pr1-id" ||
		report.Patch.Source.EventsCount != 5 ||
		report.Patch.Source.LinkedEventsCount != 4 {
		t.Errorf("source = %+v", report.Patch.Source)
	}

	act, _ := patched.Activity("ACT-001")
	if act["state"] != "done" {
		t.Errorf("state = %v, want done", act["state"])
	}
	actual := act["actual"].(map[string]any)
	if actual["start_ts"] != "2026-01-26T08:00:00+04:00" || actual["end_ts"] != "2026-01-26T20:00:00+04:00" {
		t.Errorf("actual = %v", actual)
	}

	if report.Stats.AffectedActivities != 1 {
		t.Errorf("stats = %+v", report.Stats)
	}
	if report.Stats.OpsByType[model.OpAdd] == 0 {
		t.Errorf("ops by type = %v", report.Stats.OpsByType)
	}
}

// Immutability round-trip law: a full PR2 run never changes anything
// under any activity's plan subtree.
func TestPR2PlanRoundTrip(t *testing.T) {
	p := testPipeline(t)
	events := parseEvents(t, p)
	doc := testDocument()

	_, patched, err := p.RunPR2(context.Background(), events, doc, "pr1-id")
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range doc.ActivityIDs() {
		before, _ := doc.Activity(id)
		after, _ := patched.Activity(id)
		if !reflect.DeepEqual(before["plan"], after["plan"]) {
			t.Errorf("activity %s plan changed: %v -> %v", id, before["plan"], after["plan"])
		}
	}
}

func TestPR3KPIsAndAlerts(t *testing.T) {
	p := testPipeline(t)
	events := parseEvents(t, p)
	doc := testDocument()

	_, patched, err := p.RunPR2(context.Background(), events, doc, "pr1-id")
	if err != nil {
		t.Fatal(err)
	}

	report, err := p.RunPR3(context.Background(), events, patched)
	if err != nil {
		t.Fatal(err)
	}

	derived, ok := report.KPIs["ACT-001"]
	if !ok {
		t.Fatalf("kpis = %+v", report.KPIs)
	}
	// 08:00 to 20:00 is 12h actual against a 10h plan.
	if math.Abs(derived.Cal.ActualDurationHr-12) > 1e-9 {
		t.Errorf("actual = %v", derived.Cal.ActualDurationHr)
	}
	if math.Abs(derived.Cal.VarianceHr-2) > 1e-9 {
		t.Errorf("variance = %v", derived.Cal.VarianceHr)
	}
	if math.Abs(report.TotalDelayHr-2) > 1e-9 {
		t.Errorf("delay = %v", report.TotalDelayHr)
	}
	if math.Abs(report.DelayByReasonHr["WEATHER"]-2) > 1e-9 {
		t.Errorf("delay by reason = %v", report.DelayByReasonHr)
	}

	// variance 2h is under the 8h alert threshold
	if len(report.Alerts) != 0 {
		t.Errorf("alerts = %+v", report.Alerts)
	}

	if len(report.KPIPatches) != 1 {
		t.Fatalf("kpi patches = %+v", report.KPIPatches)
	}
	kp := report.KPIPatches[0]
	if kp.Op != model.OpAdd || kp.Path != "/entities/activities/ACT-001/derived_kpi" {
		t.Errorf("kpi patch = %+v", kp)
	}
}

func TestPR3EscapesActivityIDInPatchPath(t *testing.T) {
	p := testPipeline(t)
	events := []model.EventLogItem{
		{EventID: "E1", EventType: model.EventTypeStateChange, State: model.StateStart,
			TS: "2026-01-26T08:00:00Z", ActivityID: "LOT/7"},
		{EventID: "E2", EventType: model.EventTypeStateChange, State: model.StateEnd,
			TS: "2026-01-26T18:00:00Z", ActivityID: "LOT/7"},
	}
	doc := model.Document{
		"entities": map[string]any{
			"activities": map[string]any{
				"LOT/7": map[string]any{
					"state": "planned",
					"plan":  map[string]any{"duration_min": float64(600)},
				},
			},
		},
	}

	report, err := p.RunPR3(context.Background(), events, doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.KPIPatches) != 1 {
		t.Fatalf("kpi patches = %+v", report.KPIPatches)
	}
	if got := report.KPIPatches[0].Path; got != "/entities/activities/LOT~17/derived_kpi" {
		t.Errorf("path = %q, want escaped id segment", got)
	}
}

func TestPR3AlertLevels(t *testing.T) {
	cases := []struct {
		variance float64
		level    string
	}{
		{7.9, ""},
		{8, model.AlertHigh},
		{-9, model.AlertHigh},
		{16, model.AlertCritical},
		{-20, model.AlertCritical},
	}
	for _, c := range cases {
		if got := alertLevel(c.variance); got != c.level {
			t.Errorf("alertLevel(%v) = %q, want %q", c.variance, got, c.level)
		}
	}
}

func TestPatchStatsHelpers(t *testing.T) {
	ops := []model.PatchOp{
		{Op: model.OpAdd, Path: "/entities/activities/ACT-001/actual/start_ts", Value: "x"},
		{Op: model.OpAdd, Path: "/entities/activities/ACT-001/event_log_refs/-", Value: "E1"},
		{Op: model.OpReplace, Path: "/entities/activities/ACT-002/state", Value: "done"},
	}
	stats := patchStats(ops)
	if stats.AffectedActivities != 2 {
		t.Errorf("affected = %d", stats.AffectedActivities)
	}
	if stats.OpsByField["start_ts"] != 1 || stats.OpsByField["event_log_refs"] != 1 || stats.OpsByField["state"] != 1 {
		t.Errorf("by field = %v", stats.OpsByField)
	}
	if math.Abs(stats.AvgOpsPerActivity-1.5) > 1e-9 {
		t.Errorf("avg = %v", stats.AvgOpsPerActivity)
	}
}
