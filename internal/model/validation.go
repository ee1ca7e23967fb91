package model

// Severities for validation findings.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Validation error codes.
const (
	CodeUnpairedStateChange  = "UNPAIRED_STATE_CHANGE"
	CodeReversedTimestamps   = "REVERSED_TIMESTAMPS"
	CodeUnclosedHold         = "UNCLOSED_HOLD"
	CodeHoldMissingReasonTag = "HOLD_MISSING_REASON_TAG"
	CodeMilestoneAsDuration  = "MILESTONE_AS_DURATION"
	CodeInvalidTimestamp     = "INVALID_ISO8601_TIMESTAMP"
)

// Patch-immutability violation codes.
const (
	CodeForbiddenPlanModification     = "FORBIDDEN_PLAN_MODIFICATION"
	CodeForbiddenDurationModification = "FORBIDDEN_DURATION_MODIFICATION"
)

// ValidationError is one finding from a validation gate. Events lists
// the event ids the finding is attributed to.
type ValidationError struct {
	Severity string         `json:"severity"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Events   []string       `json:"events"`
	Details  map[string]any `json:"details,omitempty"`
}

// ValidationResult is the outcome of a single gate over the full event
// set. Gates never short-circuit each other; a caller aggregates errors
// across gates to decide whether patch generation may proceed.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Gate     string            `json:"gate"`
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
}
