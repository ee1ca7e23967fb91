package export

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

func TestWriteKPIWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kpis.xlsx")
	report := &model.PR3Report{
		KPIs: map[string]model.DerivedKPI{
			"ACT-001": {
				Cal: model.CalendarTrackKPI{ActualDurationHr: 12, PlannedDurationHr: 10, VarianceHr: 2},
				WD:  model.WorkdayTrackKPI{WorkdayDurationHr: 10, EfficiencyRatio: 0.83},
			},
		},
		Alerts: []model.VarianceAlert{
			{ActivityID: "ACT-002", VarianceHr: 9, Level: model.AlertHigh},
		},
	}

	if err := WriteKPIWorkbook(path, report); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	id, err := f.GetCellValue("KPIs", "A2")
	if err != nil || id != "ACT-001" {
		t.Errorf("A2 = %q, err = %v", id, err)
	}
	level, err := f.GetCellValue("Alerts", "C2")
	if err != nil || level != "high" {
		t.Errorf("alert level = %q, err = %v", level, err)
	}
}

func TestWriteUnlinkedWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unlinked.xlsx")
	report := &model.PR1Report{
		UnlinkedEvents: []model.UnlinkedEvent{
			{EventID: "E9", SourceActivityID: "GHOST", Suggestion: "ACT-001", Confidence: 0.6},
		},
		AliasSuggestions: []model.AliasSuggestion{
			{From: "OLD-1", To: "ACT-001", Confidence: 0.8, Reason: "auto-matched event E3"},
		},
	}

	if err := WriteUnlinkedWorkbook(path, report); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	ev, err := f.GetCellValue("Unlinked", "A2")
	if err != nil || ev != "E9" {
		t.Errorf("unlinked A2 = %q, err = %v", ev, err)
	}
	from, err := f.GetCellValue("AliasSuggestions", "A2")
	if err != nil || from != "OLD-1" {
		t.Errorf("alias A2 = %q, err = %v", from, err)
	}
}
