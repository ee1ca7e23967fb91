// Package export writes reconciliation reports to XLSX workbooks for
// review outside the terminal.
package export

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

// WriteKPIWorkbook writes PR3 results as a workbook: one KPI sheet, one
// alerts sheet.
func WriteKPIWorkbook(path string, report *model.PR3Report) error {
	f := excelize.NewFile()
	defer f.Close()

	const kpiSheet = "KPIs"
	f.SetSheetName(f.GetSheetName(0), kpiSheet)

	header := []any{
		"activity_id", "actual_hr", "planned_hr", "variance_hr",
		"delay_cal_hr", "workday_hr", "efficiency",
	}
	if err := f.SetSheetRow(kpiSheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	ids := make([]string, 0, len(report.KPIs))
	for id := range report.KPIs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i, id := range ids {
		k := report.KPIs[id]
		row := []any{
			id,
			k.Cal.ActualDurationHr,
			k.Cal.PlannedDurationHr,
			k.Cal.VarianceHr,
			k.Cal.DelayCalHr,
			k.WD.WorkdayDurationHr,
			k.WD.EfficiencyRatio,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(kpiSheet, cell, &row); err != nil {
			return fmt.Errorf("writing row for %s: %w", id, err)
		}
	}

	const alertSheet = "Alerts"
	if _, err := f.NewSheet(alertSheet); err != nil {
		return fmt.Errorf("creating alerts sheet: %w", err)
	}
	alertHeader := []any{"activity_id", "variance_hr", "level"}
	if err := f.SetSheetRow(alertSheet, "A1", &alertHeader); err != nil {
		return fmt.Errorf("writing alerts header: %w", err)
	}
	for i, a := range report.Alerts {
		row := []any{a.ActivityID, a.VarianceHr, a.Level}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(alertSheet, cell, &row); err != nil {
			return fmt.Errorf("writing alert row: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

// WriteUnlinkedWorkbook writes PR1's unlinked events and alias
// suggestions for curation in a spreadsheet.
func WriteUnlinkedWorkbook(path string, report *model.PR1Report) error {
	f := excelize.NewFile()
	defer f.Close()

	const unlinkedSheet = "Unlinked"
	f.SetSheetName(f.GetSheetName(0), unlinkedSheet)

	header := []any{"event_id", "raw_activity_id", "suggestion", "confidence"}
	if err := f.SetSheetRow(unlinkedSheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, ue := range report.UnlinkedEvents {
		row := []any{ue.EventID, ue.SourceActivityID, ue.Suggestion, ue.Confidence}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(unlinkedSheet, cell, &row); err != nil {
			return fmt.Errorf("writing unlinked row: %w", err)
		}
	}

	const aliasSheet = "AliasSuggestions"
	if _, err := f.NewSheet(aliasSheet); err != nil {
		return fmt.Errorf("creating alias sheet: %w", err)
	}
	aliasHeader := []any{"from", "to", "confidence", "reason"}
	if err := f.SetSheetRow(aliasSheet, "A1", &aliasHeader); err != nil {
		return fmt.Errorf("writing alias header: %w", err)
	}
	for i, as := range report.AliasSuggestions {
		row := []any{as.From, as.To, as.Confidence, as.Reason}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(aliasSheet, cell, &row); err != nil {
			return fmt.Errorf("writing alias row: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}
