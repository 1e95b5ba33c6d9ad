package model

// Stage is a bill's position in the legislative process.
type Stage string

const (
	StagePreSubmission         Stage = "pre_submission"
	StageCommitteeReferral     Stage = "committee_referral"
	StageCommitteeDeliberation Stage = "committee_deliberation"
	StageFloorVotePending      Stage = "floor_vote_pending"
	StagePassedCurrentHouse    Stage = "passed_current_house"
	StageInterHouseReferral    Stage = "inter_house_referral"
	StagePassedBothHouses      Stage = "passed_both_houses"
	StageRejected              Stage = "rejected"
	StageWithdrawn             Stage = "withdrawn"
	StageCarriedOver           Stage = "carried_over"
)

// stageOrder gives each stage a position in the nominal forward order.
// Terminal stages share the top rank: reaching any of them is never a
// regression, leaving one always is.
var stageOrder = map[Stage]int{
	StagePreSubmission:         0,
	StageCommitteeReferral:     1,
	StageCommitteeDeliberation: 2,
	StageFloorVotePending:      3,
	StagePassedCurrentHouse:    4,
	StageInterHouseReferral:    5,
	StagePassedBothHouses:      6,
	StageRejected:              6,
	StageWithdrawn:             6,
	StageCarriedOver:           6,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// Order returns the stage's position in the nominal forward order, or -1 for
// an unknown stage.
func (s Stage) Order() int {
	if n, ok := stageOrder[s]; ok {
		return n
	}
	return -1
}

// Terminal reports whether the stage ends processing for the current session.
func (s Stage) Terminal() bool {
	switch s {
	case StagePassedBothHouses, StageRejected, StageWithdrawn, StageCarriedOver:
		return true
	}
	return false
}

// IsRegression reports whether moving from one stage to another goes
// backwards in the nominal order. Stage transitions are driven by re-scrapes
// and the government site is the source of truth, so a regression is still
// applied — the caller records it as a data-quality anomaly instead of
// blocking the update.
func IsRegression(from, to Stage) bool {
	if from == "" || to == "" || !from.Valid() || !to.Valid() {
		return false
	}
	return to.Order() < from.Order()
}
