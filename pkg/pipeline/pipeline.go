// Package pipeline composes parsing, resolution, validation, patch
// generation and KPI derivation into three independently invocable,
// sequentially dependent stages.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macho715/tr-dash-sub000/internal/model"
	"github.com/macho715/tr-dash-sub000/pkg/gates"
	"github.com/macho715/tr-dash-sub000/pkg/kpi"
	"github.com/macho715/tr-dash-sub000/pkg/parser"
	"github.com/macho715/tr-dash-sub000/pkg/patch"
	"github.com/macho715/tr-dash-sub000/pkg/resolve"
)

// Variance alert thresholds in hours of absolute variance.
const (
	alertHighHr     = 8.0
	alertCriticalHr = 16.0
)

// Pipeline runs the reconciliation stages over one event log and one
// canonical document snapshot. A Pipeline is safe for sequential reuse
// across runs; concurrent runs against the same live document must be
// serialized by the caller.
type Pipeline struct {
	parser     parser.Parser
	resolver   *resolve.Resolver
	shiftRules []model.ShiftRule
	tracer     trace.Tracer
}

// New creates a pipeline using the given event-log parser, alias table
// and optional shift rules.
func New(p parser.Parser, aliases map[string]string, rules []model.ShiftRule) *Pipeline {
	return &Pipeline{
		parser:     p,
		resolver:   resolve.NewResolver(aliases),
		shiftRules: rules,
		tracer:     otel.Tracer("trrecon/pipeline"),
	}
}

// Parse reads the raw event log through the configured parser.
// Malformed rows pass through untouched for the gates to attribute.
func (p *Pipeline) Parse(r io.Reader) ([]model.EventLogItem, error) {
	return p.parser.Parse(r)
}

// resolveAll resolves every event against the document's activity map,
// keyed by event id. Each stage recomputes resolution rather than
// trusting an earlier stage's stored results.
func (p *Pipeline) resolveAll(events []model.EventLogItem, doc model.Document) map[string]model.ResolutionResult {
	activities := doc.Activities()
	out := make(map[string]model.ResolutionResult, len(events))
	for _, ev := range events {
		out[ev.EventID] = p.resolver.Resolve(ev, activities)
	}
	return out
}

// RunPR1 parses the event log, runs every validation gate and resolves
// every event, producing the resolve+validate report.
func (p *Pipeline) RunPR1(ctx context.Context, events []model.EventLogItem, doc model.Document) (*model.PR1Report, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.pr1",
		trace.WithAttributes(attribute.Int("events.count", len(events))))
	defer span.End()

	results := gates.RunAll(ctx, events)
	resolutions := p.resolveAll(events, doc)
	activities := doc.Activities()

	report := &model.PR1Report{
		ReportID:          uuid.NewString(),
		GeneratedAt:       time.Now().UTC(),
		TotalEvents:       len(events),
		ValidationResults: results,
	}

	suggestions := map[string]model.AliasSuggestion{}
	for _, ev := range events {
		res := resolutions[ev.EventID]
		if res.Linked() {
			report.LinkedCount++
			if res.Method == model.MethodAuto && res.Confidence >= resolve.SuggestThreshold && ev.ActivityID != res.ResolvedID {
				key := ev.ActivityID + "\x00" + res.ResolvedID
				if prev, ok := suggestions[key]; !ok || res.Confidence > prev.Confidence {
					suggestions[key] = model.AliasSuggestion{
						From:       ev.ActivityID,
						To:         res.ResolvedID,
						Confidence: res.Confidence,
						Reason:     fmt.Sprintf("auto-matched event %s", ev.EventID),
					}
				}
			}
			continue
		}
		report.UnlinkedCount++
		suggestion, confidence := p.resolver.Suggest(ev, activities)
		report.UnlinkedEvents = append(report.UnlinkedEvents, model.UnlinkedEvent{
			EventID:          ev.EventID,
			SourceActivityID: ev.ActivityID,
			Suggestion:       suggestion,
			Confidence:       confidence,
		})
	}
	if report.TotalEvents > 0 {
		report.MatchingRate = float64(report.LinkedCount) / float64(report.TotalEvents)
	}

	for _, s := range suggestions {
		report.AliasSuggestions = append(report.AliasSuggestions, s)
	}
	sort.Slice(report.AliasSuggestions, func(i, j int) bool {
		a, b := report.AliasSuggestions[i], report.AliasSuggestions[j]
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})

	span.SetAttributes(
		attribute.Int("events.linked", report.LinkedCount),
		attribute.Int("events.unlinked", report.UnlinkedCount),
	)
	return report, nil
}

// RunPR2 re-resolves the events, generates the full patch set, screens
// it for plan modifications and applies it. A forbidden-path violation
// aborts the stage; a plan-mutating patch set is a logic defect, never
// partially applied.
func (p *Pipeline) RunPR2(ctx context.Context, events []model.EventLogItem, doc model.Document, pr1ReportID string) (*model.PR2Report, model.Document, error) {
	_, span := p.tracer.Start(ctx, "pipeline.pr2",
		trace.WithAttributes(attribute.Int("events.count", len(events))))
	defer span.End()

	resolutions := p.resolveAll(events, doc)

	ops, err := patch.GenerateAll(events, resolutions, doc)
	if err != nil {
		return nil, nil, fmt.Errorf("generating patches: %w", err)
	}

	if v := patch.ValidateSet(ops); !v.Valid {
		return nil, nil, fmt.Errorf("patch set modifies immutable plan paths %v", v.ForbiddenPaths)
	}

	applied := patch.Apply(doc, ops)
	if !applied.Success {
		return nil, nil, fmt.Errorf("applying patches: %d failures, first: %v", len(applied.Errors), applied.Errors[0])
	}

	linked := 0
	for _, res := range resolutions {
		if res.Linked() {
			linked++
		}
	}

	report := &model.PR2Report{
		ReportID:    uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Patch: model.PatchDocument{
			Schema:      model.PatchSchemaURL,
			GeneratedAt: time.Now().UTC(),
			Source: model.PatchSource{
				PR1ReportID:       pr1ReportID,
				EventsCount:       len(events),
				LinkedEventsCount: linked,
			},
			Operations: ops,
		},
		Stats: patchStats(ops),
	}

	span.SetAttributes(attribute.Int("patch.ops", len(ops)))
	return report, applied.Document, nil
}

// RunPR3 derives per-activity KPIs against the patched document and
// synthesizes the derived_kpi attachment patches plus the aggregate
// variance report.
func (p *Pipeline) RunPR3(ctx context.Context, events []model.EventLogItem, patched model.Document) (*model.PR3Report, error) {
	_, span := p.tracer.Start(ctx, "pipeline.pr3",
		trace.WithAttributes(attribute.Int("events.count", len(events))))
	defer span.End()

	resolutions := p.resolveAll(events, patched)

	byActivity := map[string][]model.EventLogItem{}
	for _, ev := range events {
		res := resolutions[ev.EventID]
		if !res.Linked() {
			continue
		}
		byActivity[res.ResolvedID] = append(byActivity[res.ResolvedID], ev)
	}

	report := &model.PR3Report{
		ReportID:        uuid.NewString(),
		GeneratedAt:     time.Now().UTC(),
		KPIs:            map[string]model.DerivedKPI{},
		DelayByReasonHr: map[string]float64{},
	}

	ids := make([]string, 0, len(byActivity))
	for id := range byActivity {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var varianceSum float64
	var varianceCount int
	for _, id := range ids {
		act, ok := patched.Activity(id)
		if !ok {
			return nil, fmt.Errorf("activity %s missing from patched document", id)
		}

		cal := kpi.CalcCalendarKPI(act, byActivity[id])
		wd := kpi.CalcWorkdayKPI(byActivity[id], p.shiftRules, cal)
		derived := model.DerivedKPI{Cal: cal, WD: wd}
		report.KPIs[id] = derived

		report.KPIPatches = append(report.KPIPatches, model.PatchOp{
			Op:    model.OpAdd,
			Path:  patch.ActivityPath(id) + "/derived_kpi",
			Value: derived,
		})

		if cal.ActualDurationHr > 0 {
			varianceSum += cal.VarianceHr
			varianceCount++
		}
		report.TotalDelayHr += cal.DelayCalHr
		for reason, hr := range cal.DelayBreakdownHr {
			report.DelayByReasonHr[reason] += hr
		}

		if level := alertLevel(cal.VarianceHr); level != "" {
			report.Alerts = append(report.Alerts, model.VarianceAlert{
				ActivityID: id,
				VarianceHr: cal.VarianceHr,
				Level:      level,
			})
		}
	}
	if varianceCount > 0 {
		report.MeanVarianceHr = varianceSum / float64(varianceCount)
	}

	sort.SliceStable(report.Alerts, func(i, j int) bool {
		return math.Abs(report.Alerts[i].VarianceHr) > math.Abs(report.Alerts[j].VarianceHr)
	})

	span.SetAttributes(attribute.Int("kpi.activities", len(report.KPIs)))
	return report, nil
}

func alertLevel(varianceHr float64) string {
	switch abs := math.Abs(varianceHr); {
	case abs >= alertCriticalHr:
		return model.AlertCritical
	case abs >= alertHighHr:
		return model.AlertHigh
	default:
		return ""
	}
}

func patchStats(ops []model.PatchOp) model.PatchStats {
	stats := model.PatchStats{
		OpsByType:  map[string]int{},
		OpsByField: map[string]int{},
	}
	activities := map[string]bool{}
	for _, op := range ops {
		stats.OpsByType[op.Op]++
		stats.OpsByField[lastField(op.Path)]++
		if id := activityOf(op.Path); id != "" {
			activities[id] = true
		}
	}
	stats.AffectedActivities = len(activities)
	if len(activities) > 0 {
		stats.AvgOpsPerActivity = float64(len(ops)) / float64(len(activities))
	}
	return stats
}

func lastField(path string) string {
	segs := splitPath(path)
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] != "-" && !allDigits(segs[i]) {
			return segs[i]
		}
	}
	return path
}

// activityOf extracts the activity id from a canonical
// /entities/activities/<id>/... path.
func activityOf(path string) string {
	segs := splitPath(path)
	if len(segs) >= 3 && segs[0] == "entities" && segs[1] == "activities" {
		return segs[2]
	}
	return ""
}

func splitPath(path string) []string {
	var segs []string
	cur := ""
	for i := 1; i < len(path); i++ {
		if path[i] == '/' {
			segs = append(segs, cur)
			cur = ""
			continue
		}
		cur += string(path[i])
	}
	if len(path) > 1 {
		segs = append(segs, cur)
	}
	return segs
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
