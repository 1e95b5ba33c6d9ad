package validate

import "github.com/diet-tracker/billsync/internal/model"

// Quality score weights. The score is a weighted completeness sum: each
// populated detailed-content field contributes its weight, and the
// submission and process groups contribute theirs when complete. Weights sum
// to 1.0 so the score is already normalized; it is monotonic in field
// completeness and deterministic, and tests assert exact values for fixed
// fixtures against these constants.
const (
	WeightOutline    = 0.15
	WeightBackground = 0.10
	WeightEffects    = 0.10
	WeightProvisions = 0.15
	WeightSubmission = 0.25
	WeightProcess    = 0.25
)

// Score computes the data quality score in [0,1] for a bill.
func Score(b *model.CanonicalBill) float64 {
	score := 0.0

	if b.BillOutline != nil && *b.BillOutline != "" {
		score += WeightOutline
	}
	if b.BackgroundContext != nil && *b.BackgroundContext != "" {
		score += WeightBackground
	}
	if b.ExpectedEffects != nil && *b.ExpectedEffects != "" {
		score += WeightEffects
	}
	if len(b.KeyProvisions) > 0 {
		score += WeightProvisions
	}
	if submissionComplete(b) {
		score += WeightSubmission
	}
	if processComplete(b) {
		score += WeightProcess
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// submissionComplete reports whether the submission field group is fully
// populated: a submission date plus either named submitters (member bills)
// or a sponsoring ministry (cabinet bills).
func submissionComplete(b *model.CanonicalBill) bool {
	if b.SubmissionDate == nil || *b.SubmissionDate == "" {
		return false
	}
	return len(b.SubmittingMembers) > 0 ||
		(b.SponsoringMinistry != nil && *b.SponsoringMinistry != "")
}

// processComplete reports whether process tracking is populated: a known
// stage, plus committee or voting data once the bill is past referral.
func processComplete(b *model.CanonicalBill) bool {
	if !b.CurrentStage.Valid() {
		return false
	}
	if b.CurrentStage.Order() <= model.StageCommitteeReferral.Order() {
		return true
	}
	return len(b.CommitteeAssignments) > 0 || len(b.VotingResults) > 0
}
