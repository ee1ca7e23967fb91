package model

import (
	"strings"
	"testing"
	"time"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func testDoc(t *testing.T) Document {
	t.Helper()
	doc, err := DecodeDocument(strings.NewReader(`{
		"entities": {
			"activities": {
				"ACT-001": {
					"type_id": "loadout_ops",
					"state": "planned",
					"tr_units": ["TR-A", "TR-B"],
					"plan": {"start_ts": "2026-01-26T08:00:00Z", "duration_min": 600}
				}
			}
		}
	}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return doc
}

func TestActivityTypedView(t *testing.T) {
	doc := testDoc(t)

	act, ok := doc.Activity("ACT-001")
	if !ok {
		t.Fatal("ACT-001 not found")
	}
	if act.State() != "planned" {
		t.Errorf("state = %q, want planned", act.State())
	}
	if act.TypeID() != "loadout_ops" {
		t.Errorf("type_id = %q", act.TypeID())
	}
	if units := act.TRUnits(); len(units) != 2 || units[0] != "TR-A" {
		t.Errorf("tr_units = %v", units)
	}
	if got := act.PlanDurationMin(); got != 600 {
		t.Errorf("plan duration = %v, want 600", got)
	}
	if _, ok := act.PlanStart(); !ok {
		t.Error("plan start not parsed")
	}

	if _, ok := doc.Activity("ACT-999"); ok {
		t.Error("missing activity reported as found")
	}
}

func TestDocumentCloneIsIndependent(t *testing.T) {
	doc := testDoc(t)
	clone := doc.Clone()

	act, _ := clone.Activity("ACT-001")
	act["state"] = "done"
	act.Plan()["duration_min"] = 1

	orig, _ := doc.Activity("ACT-001")
	if orig.State() != "planned" {
		t.Error("clone mutation leaked into original state")
	}
	if orig.PlanDurationMin() != 600 {
		t.Error("clone mutation leaked into original plan")
	}
}

func TestActivitiesAbsent(t *testing.T) {
	doc := Document{"entities": map[string]any{}}
	if doc.Activities() != nil {
		t.Error("expected nil activities map")
	}
	if ids := doc.ActivityIDs(); len(ids) != 0 {
		t.Errorf("ids = %v, want empty", ids)
	}
}

func TestShiftRuleWindow(t *testing.T) {
	rule := ShiftRule{Site: "AGI", ValidFrom: "2026-01-01", ValidTo: "2026-03-31", DayStart: "07:00", DayEnd: "19:00"}

	start, end, err := rule.Window()
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if start != 7*60 || end != 19*60 {
		t.Errorf("window = %d..%d", start, end)
	}

	bad := ShiftRule{DayStart: "25:00", DayEnd: "19:00"}
	if _, _, err := bad.Window(); err == nil {
		t.Error("expected error for out-of-range clock")
	}
}

func TestShiftRuleContains(t *testing.T) {
	rule := ShiftRule{ValidFrom: "2026-01-01", ValidTo: "2026-01-31"}

	tests := []struct {
		ts   string
		want bool
	}{
		{"2026-01-01T00:00:00Z", true},
		{"2026-01-31T23:59:59Z", true},
		{"2025-12-31T23:59:59Z", false},
		{"2026-02-01T00:00:00Z", false},
	}
	for _, tt := range tests {
		t0 := mustParse(t, tt.ts)
		if got := rule.Contains(t0); got != tt.want {
			t.Errorf("Contains(%s) = %v, want %v", tt.ts, got, tt.want)
		}
	}
}
