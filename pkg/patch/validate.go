package patch

import (
	"fmt"
	"strings"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

// SetValidation is the outcome of screening a patch set against the
// plan-immutability invariant.
type SetValidation struct {
	Valid          bool                    `json:"valid"`
	Errors         []model.ValidationError `json:"errors"`
	ForbiddenPaths []string                `json:"forbidden_paths"`
}

// ValidateSet rejects any patch that would modify the immutable plan:
// paths containing /plan/ or ending in /duration_min. Violations are
// reported, never silently dropped, and the caller must treat a
// failing set as fatal before any application.
func ValidateSet(patches []model.PatchOp) SetValidation {
	v := SetValidation{Valid: true}

	for _, p := range patches {
		switch {
		case strings.Contains(p.Path, "/plan/"):
			v.Errors = append(v.Errors, model.ValidationError{
				Severity: model.SeverityError,
				Code:     model.CodeForbiddenPlanModification,
				Message:  fmt.Sprintf("patch targets immutable plan path %s", p.Path),
			})
			v.ForbiddenPaths = append(v.ForbiddenPaths, p.Path)
		case strings.HasSuffix(p.Path, "/duration_min"):
			v.Errors = append(v.Errors, model.ValidationError{
				Severity: model.SeverityError,
				Code:     model.CodeForbiddenDurationModification,
				Message:  fmt.Sprintf("patch targets immutable duration field %s", p.Path),
			})
			v.ForbiddenPaths = append(v.ForbiddenPaths, p.Path)
		}
	}

	v.Valid = len(v.Errors) == 0
	return v
}
