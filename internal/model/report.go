package model

import "time"

// AuditSummary condenses an audit run for before/after comparison.
type AuditSummary struct {
	BillsAudited   int               `json:"bills_audited"`
	IssuesFound    int               `json:"issues_found"`
	ByType         map[IssueType]int `json:"by_type"`
	AverageQuality float64           `json:"average_quality"`
}

// AuditReport is the exported artifact of one auditor run. Issues are
// already in priority order.
type AuditReport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Session     int               `json:"session,omitempty"`
	Totals      AuditSummary      `json:"totals"`
	Issues      []QualityIssue    `json:"issues"`
	ByType      map[IssueType]int `json:"by_type"`
}

// Summary returns the report's roll-up.
func (r *AuditReport) Summary() AuditSummary {
	return r.Totals
}

// Strategy names a completion approach, tried in fixed order.
type Strategy string

const (
	StrategyRefetch      Strategy = "refetch_detail"
	StrategyCrossChamber Strategy = "cross_chamber_fetch"
	StrategyRederive     Strategy = "local_rederivation"
	StrategyManualReview Strategy = "manual_review"
)

// CompletionOutcome reports the result of running the completion processor
// against one quality issue.
type CompletionOutcome struct {
	AppliedStrategy      Strategy `json:"applied_strategy"`
	Success              bool     `json:"success"`
	NewQualityScore      float64  `json:"new_quality_score,omitempty"`
	RequiresManualReview bool     `json:"requires_manual_review,omitempty"`
	Detail               string   `json:"detail,omitempty"`
}

// PlannedAction is one remediation step in a migration plan.
type PlannedAction struct {
	BillID   string       `json:"bill_id"`
	Identity Identity     `json:"identity"`
	Issue    QualityIssue `json:"issue"`
	Strategy Strategy     `json:"strategy"`
}

// MigrationPlan is the ordered remediation list produced by phase 2.
// It is immutable once execution starts.
type MigrationPlan struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Actions     []PlannedAction `json:"actions"`
}

// ActionStatus is the per-action outcome during migration execute.
type ActionStatus string

const (
	ActionSuccess ActionStatus = "success"
	ActionSkipped ActionStatus = "skip"
	ActionFailed  ActionStatus = "fail"
)

// ActionOutcome records what happened to one planned action.
type ActionOutcome struct {
	BillID          string       `json:"bill_id"`
	Identity        Identity     `json:"identity"`
	IssueType       IssueType    `json:"issue_type"`
	Strategy        Strategy     `json:"strategy"`
	Status          ActionStatus `json:"status"`
	NewQualityScore float64      `json:"new_quality_score,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// PhaseStatus is the state of one migration phase.
type PhaseStatus string

const (
	PhaseComplete PhaseStatus = "complete"
	PhaseFailed   PhaseStatus = "failed"
	PhaseSkipped  PhaseStatus = "skipped"
)

// PhaseResult records one of the five migration phases.
type PhaseResult struct {
	Name       string      `json:"name"`
	Status     PhaseStatus `json:"status"`
	DurationMs int64       `json:"duration_ms"`
	Error      string      `json:"error,omitempty"`
}

// MigrationReport is the artifact of one migration service run.
type MigrationReport struct {
	ID          string          `json:"id"`
	DryRun      bool            `json:"dry_run"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Phases      []PhaseResult   `json:"phases"`
	Plan        *MigrationPlan  `json:"plan,omitempty"`
	Before      *AuditSummary   `json:"before,omitempty"`
	After       *AuditSummary   `json:"after,omitempty"`
	Actions     []ActionOutcome `json:"actions,omitempty"`
}

// IntegrationError is a per-bill failure captured during an integration run.
type IntegrationError struct {
	Identity Identity `json:"identity"`
	Phase    string   `json:"phase"`
	Message  string   `json:"message"`
}

// IntegrationResult summarizes one Data Integration Manager run.
type IntegrationResult struct {
	Session           int                `json:"session"`
	BillsProcessed    int                `json:"bills_processed"`
	BillsCreated      int                `json:"bills_created"`
	BillsUpdated      int                `json:"bills_updated"`
	ConflictsDetected int                `json:"conflicts_detected"`
	Errors            []IntegrationError `json:"errors,omitempty"`
}
