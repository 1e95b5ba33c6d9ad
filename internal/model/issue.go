package model

import "time"

// IssueType classifies a data-quality finding. stage_regression originates
// in the integration manager's ledger entries when a re-scrape moves a bill
// backwards; the auditor surfaces it alongside the nine audit categories.
type IssueType string

const (
	IssueMissingRequiredField    IssueType = "missing_required_field"
	IssueShortOutline            IssueType = "short_outline"
	IssueMissingProvisions       IssueType = "missing_provisions"
	IssueStaleData               IssueType = "stale_data"
	IssueConflictingSource       IssueType = "conflicting_source"
	IssueLowQualityScore         IssueType = "low_quality_score"
	IssueOrphanedProcessHistory  IssueType = "orphaned_process_history"
	IssueDuplicateIdentity       IssueType = "duplicate_identity"
	IssueCategoryMissing         IssueType = "category_classification_missing"
	IssueStageRegression         IssueType = "stage_regression"
)

// Severity orders issues by how urgently they need remediation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// QualityIssue is a single audit finding. Issues are ephemeral: regenerated
// on every audit run and persisted only inside the report artifact.
type QualityIssue struct {
	BillID               string    `json:"bill_id,omitempty"`
	Identity             Identity  `json:"identity"`
	Type                 IssueType `json:"issue_type"`
	Severity             Severity  `json:"severity"`
	Detail               string    `json:"detail"`
	LastUpdated          time.Time `json:"last_updated,omitempty"`
	RequiresManualReview bool      `json:"requires_manual_review,omitempty"`
}

// rankWeight orders issue types for remediation: structural problems
// (required fields, duplicate identities) outrank cosmetic ones.
var rankWeight = map[IssueType]int{
	IssueMissingRequiredField:   0,
	IssueDuplicateIdentity:      0,
	IssueOrphanedProcessHistory: 1,
	IssueConflictingSource:      2,
	IssueStageRegression:        2,
	IssueStaleData:              3,
	IssueLowQualityScore:        4,
	IssueMissingProvisions:      5,
	IssueShortOutline:           5,
	IssueCategoryMissing:        6,
}

// RankWeight returns the issue type's remediation priority (lower is more
// urgent). Unknown types sort last.
func (t IssueType) RankWeight() int {
	if w, ok := rankWeight[t]; ok {
		return w
	}
	return len(rankWeight)
}
