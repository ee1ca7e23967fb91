// Package tui renders reconciliation reports for the terminal.
// Simple, streaming output - no interactive TUI.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAA00")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(warning)
)

const rule = "  ─────────────────────────────────────"

// RenderPR1 renders the resolve+validate report.
func RenderPR1(r *model.PR1Report) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(accentStyle.Render("▸ STAGE 1: RESOLVE + VALIDATE") + "\n")
	sb.WriteString(mutedStyle.Render("  Report: "+r.ReportID) + "\n")
	sb.WriteString(mutedStyle.Render(rule) + "\n")
	sb.WriteString(fmt.Sprintf("  %s %s\n", mutedStyle.Render("Events:"), titleStyle.Render(fmt.Sprintf("%d", r.TotalEvents))))
	sb.WriteString(fmt.Sprintf("  %s %s / %s\n",
		mutedStyle.Render("Linked:"),
		titleStyle.Render(fmt.Sprintf("%d", r.LinkedCount)),
		mutedStyle.Render(fmt.Sprintf("%d unlinked", r.UnlinkedCount))))
	sb.WriteString(fmt.Sprintf("  %s %s\n", mutedStyle.Render("Matching:"), renderRate(r.MatchingRate)))
	sb.WriteString(mutedStyle.Render(rule) + "\n")

	for _, vr := range r.ValidationResults {
		sb.WriteString(renderGate(vr))
	}

	if len(r.UnlinkedEvents) > 0 {
		sb.WriteString("\n" + warnStyle.Render("  UNLINKED EVENTS") + "\n")
		for _, ue := range r.UnlinkedEvents {
			line := fmt.Sprintf("  %s (raw id %s)", ue.EventID, ue.SourceActivityID)
			if ue.Suggestion != "" {
				line += mutedStyle.Render(fmt.Sprintf("  suggest %s @ %.2f", ue.Suggestion, ue.Confidence))
			}
			sb.WriteString(line + "\n")
		}
	}

	if len(r.AliasSuggestions) > 0 {
		sb.WriteString("\n" + titleStyle.Render("  SUGGESTED ALIASES") + "\n")
		for _, as := range r.AliasSuggestions {
			sb.WriteString(fmt.Sprintf("  %s → %s %s\n", as.From, as.To,
				mutedStyle.Render(fmt.Sprintf("(%.2f, %s)", as.Confidence, as.Reason))))
		}
	}

	return sb.String()
}

func renderGate(vr model.ValidationResult) string {
	marker := successStyle.Render("✓")
	if len(vr.Errors) > 0 {
		marker = accentStyle.Render("✗")
	} else if len(vr.Warnings) > 0 {
		marker = warnStyle.Render("!")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s %s %s\n", marker, vr.Gate,
		mutedStyle.Render(fmt.Sprintf("(%d errors, %d warnings)", len(vr.Errors), len(vr.Warnings)))))
	for _, e := range vr.Errors {
		sb.WriteString("      " + accentStyle.Render(e.Code) + " " + e.Message + "\n")
	}
	for _, w := range vr.Warnings {
		sb.WriteString("      " + warnStyle.Render(w.Code) + " " + w.Message + "\n")
	}
	return sb.String()
}

// RenderPR2 renders the patch+apply report.
func RenderPR2(r *model.PR2Report) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(accentStyle.Render("▸ STAGE 2: PATCH + APPLY") + "\n")
	sb.WriteString(mutedStyle.Render("  Report: "+r.ReportID) + "\n")
	sb.WriteString(mutedStyle.Render(rule) + "\n")
	sb.WriteString(fmt.Sprintf("  %s %s\n", mutedStyle.Render("Operations:"),
		titleStyle.Render(fmt.Sprintf("%d", len(r.Patch.Operations)))))
	sb.WriteString(fmt.Sprintf("  %s %s\n", mutedStyle.Render("Activities:"),
		titleStyle.Render(fmt.Sprintf("%d", r.Stats.AffectedActivities))))
	sb.WriteString(fmt.Sprintf("  %s %s\n", mutedStyle.Render("Avg ops/activity:"),
		titleStyle.Render(fmt.Sprintf("%.1f", r.Stats.AvgOpsPerActivity))))

	sb.WriteString("\n  " + titleStyle.Render("BY OPERATION") + "\n")
	for _, op := range sortedCountKeys(r.Stats.OpsByType) {
		sb.WriteString(fmt.Sprintf("  %-10s %d\n", op, r.Stats.OpsByType[op]))
	}

	sb.WriteString("\n  " + titleStyle.Render("BY FIELD") + "\n")
	for _, field := range sortedCountKeys(r.Stats.OpsByField) {
		sb.WriteString(fmt.Sprintf("  %-18s %d\n", field, r.Stats.OpsByField[field]))
	}

	return sb.String()
}

// RenderPR3 renders the derived-KPI report.
func RenderPR3(r *model.PR3Report) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(accentStyle.Render("▸ STAGE 3: DERIVE KPIS") + "\n")
	sb.WriteString(mutedStyle.Render("  Report: "+r.ReportID) + "\n")
	sb.WriteString(mutedStyle.Render(rule) + "\n")
	sb.WriteString(fmt.Sprintf("  %s %s\n", mutedStyle.Render("Activities:"),
		titleStyle.Render(fmt.Sprintf("%d", len(r.KPIs)))))
	sb.WriteString(fmt.Sprintf("  %s %s\n", mutedStyle.Render("Mean variance:"), renderHours(r.MeanVarianceHr)))
	sb.WriteString(fmt.Sprintf("  %s %s\n", mutedStyle.Render("Total delay:"),
		titleStyle.Render(fmt.Sprintf("%.1fh", r.TotalDelayHr))))

	if len(r.DelayByReasonHr) > 0 {
		sb.WriteString("\n  " + titleStyle.Render("DELAY BY REASON") + "\n")
		reasons := make([]string, 0, len(r.DelayByReasonHr))
		for reason := range r.DelayByReasonHr {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			sb.WriteString(fmt.Sprintf("  %-12s %.1fh\n", reason, r.DelayByReasonHr[reason]))
		}
	}

	if len(r.Alerts) > 0 {
		sb.WriteString("\n" + warnStyle.Render("  VARIANCE ALERTS") + "\n")
		for _, a := range r.Alerts {
			style := warnStyle
			if a.Level == model.AlertCritical {
				style = accentStyle
			}
			sb.WriteString(fmt.Sprintf("  %s %-14s %+.1fh\n", style.Render(strings.ToUpper(a.Level)), a.ActivityID, a.VarianceHr))
		}
	} else {
		sb.WriteString("\n" + successStyle.Render("  ✓ no variance alerts") + "\n")
	}

	return sb.String()
}

func renderRate(rate float64) string {
	text := fmt.Sprintf("%.1f%%", rate*100)
	if rate >= 0.95 {
		return successStyle.Render(text)
	}
	if rate >= 0.8 {
		return warnStyle.Render(text)
	}
	return accentStyle.Render(text)
}

func renderHours(hr float64) string {
	text := fmt.Sprintf("%+.1fh", hr)
	if hr > 0 {
		return warnStyle.Render(text)
	}
	return successStyle.Render(text)
}

func sortedCountKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ShowProgress returns a progress bar for long event replays.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
