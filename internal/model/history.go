package model

import "time"

// ProcessHistoryEntry is one row of the append-only audit trail of stage
// transitions. Entries are never mutated or deleted once written; they are
// owned by the bill they reference and removed only by a cascading bill
// delete.
type ProcessHistoryEntry struct {
	ID         string         `json:"id,omitempty"`
	BillID     string         `json:"bill_id"`
	Stage      Stage          `json:"stage"`
	House      House          `json:"house"`
	Committee  string         `json:"committee,omitempty"`
	ActionDate time.Time      `json:"action_date"`
	ActionType string         `json:"action_type"`
	Result     string         `json:"result,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Notes      string         `json:"notes,omitempty"`
}

// History action types recorded by the integration manager.
const (
	ActionStageChange     = "stage_change"
	ActionStageRegression = "stage_regression"
	ActionCommitteeChange = "committee_change"
	ActionVoteRecorded    = "vote_recorded"
	ActionCarryOver       = "carry_over"
)
