package patch

import (
	"testing"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

func TestValidateSetFlagsPlanPaths(t *testing.T) {
	ops := []model.PatchOp{
		{Op: model.OpReplace, Path: "/entities/activities/ACT-001/plan/start_ts", Value: "x"},
		{Op: model.OpAdd, Path: "/entities/activities/ACT-001/actual/start_ts", Value: "y"},
		{Op: model.OpReplace, Path: "/entities/activities/ACT-001/duration_min", Value: 1},
	}

	res := ValidateSet(ops)
	if res.Valid {
		t.Fatal("set with plan writes must be invalid")
	}
	if len(res.ForbiddenPaths) != 2 {
		t.Fatalf("forbidden paths = %v", res.ForbiddenPaths)
	}

	codes := map[string]bool{}
	for _, e := range res.Errors {
		codes[e.Code] = true
	}
	if !codes[model.CodeForbiddenPlanModification] || !codes[model.CodeForbiddenDurationModification] {
		t.Errorf("error codes = %v", codes)
	}
}

func TestValidateSetPassesActualPaths(t *testing.T) {
	ops := []model.PatchOp{
		{Op: model.OpAdd, Path: "/entities/activities/ACT-001/actual/start_ts", Value: "x"},
		{Op: model.OpReplace, Path: "/entities/activities/ACT-001/state", Value: "in_progress"},
		{Op: model.OpAdd, Path: "/entities/activities/ACT-001/event_log_refs/-", Value: "E1"},
		// "planned" as a value is fine; only the plan subtree is protected.
		{Op: model.OpReplace, Path: "/entities/activities/ACT-002/state", Value: "planned"},
	}

	res := ValidateSet(ops)
	if !res.Valid || len(res.ForbiddenPaths) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestValidateSetDurationAnywhere(t *testing.T) {
	res := ValidateSet([]model.PatchOp{
		{Op: model.OpAdd, Path: "/entities/activities/ACT-001/nested/duration_min", Value: 5},
	})
	if res.Valid {
		t.Error("any path ending in /duration_min is forbidden")
	}
}
