// Package resolve maps raw event activity ids to canonical schedule
// activities. Four escalating strategies are tried in fixed order and
// the first success wins: direct key match, operator-curated alias,
// heuristic auto-match, unlinked. Strategies are never blended.
package resolve

import (
	"math"
	"sort"
	"strings"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

// Auto-match scoring policy. Fixed constants, not data-derived; kept
// package-private so deployments cannot quietly retune them.
const (
	scorePhase         = 40.0
	scoreUnit          = 30.0
	scoreDateMax       = 30.0
	scoreDatePerDay    = 10.0
	dateWindowDays     = 2.0
	acceptThreshold    = 70.0
	confidenceDirect   = 1.0
	confidenceAlias    = 0.95
	suggestThreshold   = 0.7
)

// SuggestThreshold is the minimum auto-match confidence at which an
// alias correction is suggested for human review.
const SuggestThreshold = suggestThreshold

// Resolver resolves events against an activity map. The alias table is
// injected at construction; an empty table is valid.
type Resolver struct {
	aliases map[string]string
}

// NewResolver creates a resolver with the given alias table.
func NewResolver(aliases map[string]string) *Resolver {
	if aliases == nil {
		aliases = map[string]string{}
	}
	return &Resolver{aliases: aliases}
}

// Resolve runs the strategy ladder for one event.
func (r *Resolver) Resolve(ev model.EventLogItem, activities map[string]any) model.ResolutionResult {
	// 1. Direct: the recorded id exists verbatim in the canonical map.
	if _, ok := activities[ev.ActivityID]; ok {
		return model.ResolutionResult{
			ResolvedID: ev.ActivityID,
			Method:     model.MethodDirect,
			Confidence: confidenceDirect,
		}
	}

	// 2. Alias: curated correction whose target must exist.
	if canonical, ok := r.aliases[ev.ActivityID]; ok {
		if _, exists := activities[canonical]; exists {
			return model.ResolutionResult{
				ResolvedID: canonical,
				Method:     model.MethodAlias,
				Confidence: confidenceAlias,
			}
		}
	}

	// 3. Auto-match: summed heuristic signals, accepted only at or
	// above the threshold.
	if id, score := r.bestAutoMatch(ev, activities); id != "" && score >= acceptThreshold {
		return model.ResolutionResult{
			ResolvedID: id,
			Method:     model.MethodAuto,
			Confidence: score / 100,
		}
	}

	// 4. Unlinked: an expected outcome surfaced for curation, not an error.
	return model.ResolutionResult{Method: model.MethodUnlinked, Confidence: 0}
}

// Suggest returns the best auto-match candidate and its confidence,
// even below the acceptance threshold, for stage-1 curation output.
func (r *Resolver) Suggest(ev model.EventLogItem, activities map[string]any) (string, float64) {
	id, score := r.bestAutoMatch(ev, activities)
	return id, score / 100
}

// bestAutoMatch scores every candidate and returns the winner.
// Candidates are visited in sorted id order so ties break
// deterministically toward the lexicographically smaller id.
func (r *Resolver) bestAutoMatch(ev model.EventLogItem, activities map[string]any) (string, float64) {
	ids := make([]string, 0, len(activities))
	for id := range activities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	bestID, bestScore := "", 0.0
	for _, id := range ids {
		raw, ok := activities[id].(map[string]any)
		if !ok {
			continue
		}
		score := r.scoreCandidate(ev, model.Activity(raw))
		if score > bestScore {
			bestID, bestScore = id, score
		}
	}
	return bestID, bestScore
}

// scoreCandidate sums the three independent signals: phase
// compatibility, TR unit membership, and planned-start proximity.
func (r *Resolver) scoreCandidate(ev model.EventLogItem, act model.Activity) float64 {
	score := 0.0

	if phaseMatches(ev.Phase, act.TypeID()) {
		score += scorePhase
	}

	if ev.TRUnit != "" {
		for _, unit := range act.TRUnits() {
			if unit == ev.TRUnit {
				score += scoreUnit
				break
			}
		}
	}

	score += dateProximity(ev, act)
	return score
}

// dateProximity awards up to 30 points, losing 10 per day between the
// activity's planned start and the event timestamp, zero beyond the
// two-day window.
func dateProximity(ev model.EventLogItem, act model.Activity) float64 {
	planStart, ok := act.PlanStart()
	if !ok {
		return 0
	}
	evTime, err := ev.Time()
	if err != nil {
		return 0
	}
	days := math.Abs(evTime.Sub(planStart).Hours()) / 24
	if days > dateWindowDays {
		return 0
	}
	return math.Max(0, scoreDateMax-scoreDatePerDay*days)
}

// phaseFamilies maps an event's logical work phase to the activity
// type_id families it is compatible with.
var phaseFamilies = map[string][]string{
	"LOADOUT":  {"loadout"},
	"LOADIN":   {"loadin"},
	"BERTHING": {"berthing", "mooring"},
	"SAILAWAY": {"sailaway", "transit"},
	"TRANSIT":  {"transit", "sailaway"},
	"JACKING":  {"jacking"},
}

func phaseMatches(phase, typeID string) bool {
	if phase == "" || typeID == "" {
		return false
	}
	lowerType := strings.ToLower(typeID)
	if families, ok := phaseFamilies[strings.ToUpper(phase)]; ok {
		for _, fam := range families {
			if strings.HasPrefix(lowerType, fam) {
				return true
			}
		}
		return false
	}
	// Unknown phase: fall back to a literal prefix comparison.
	return strings.HasPrefix(lowerType, strings.ToLower(phase))
}
