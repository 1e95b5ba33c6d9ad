package model

import "time"

// House identifies one of the two Diet chambers.
type House string

const (
	HouseRepresentatives House = "house_of_representatives"
	HouseCouncillors     House = "house_of_councillors"
)

// Valid reports whether h is a known chamber.
func (h House) Valid() bool {
	return h == HouseRepresentatives || h == HouseCouncillors
}

// Other returns the opposite chamber.
func (h House) Other() House {
	if h == HouseRepresentatives {
		return HouseCouncillors
	}
	return HouseRepresentatives
}

// BillType distinguishes cabinet bills from member bills.
type BillType string

const (
	BillTypeGovernment BillType = "government_submitted"
	BillTypeMember     BillType = "member_submitted"
)

// Identity is the business key of a bill: one canonical record exists per
// (bill_number, diet_session, house_of_origin) triple after merge.
type Identity struct {
	BillNumber    string `json:"bill_number"`
	DietSession   int    `json:"diet_session"`
	HouseOfOrigin House  `json:"house_of_origin"`
}

// CommitteeAssignment records a bill's referral to a committee.
type CommitteeAssignment struct {
	Status       string `json:"status,omitempty"`
	ReferredDate string `json:"referred_date,omitempty"`
}

// Amendment is a structured amendment record in proposal order.
type Amendment struct {
	Title    string `json:"title"`
	Proposer string `json:"proposer,omitempty"`
	Result   string `json:"result,omitempty"`
	Date     string `json:"date,omitempty"`
}

// FieldConflict records a field where two source snapshots disagreed.
// Conflicts are kept on the merged record so the auditor can surface them
// even when the merge resolved them silently.
type FieldConflict struct {
	Field          string           `json:"field"`
	ValuesBySource map[House]string `json:"values_by_source"`
	ResolvedBy     House            `json:"resolved_by,omitempty"`
}

// CanonicalBill is the unit of record: the merged, deduplicated
// representation of a bill after combining both chambers' data.
//
// Optional fields are pointers (or nil slices/maps) so that "absent from the
// source" and "present but empty" stay distinguishable through the merge.
type CanonicalBill struct {
	ID string `json:"id,omitempty"`

	// Identity
	BillNumber    string `json:"bill_number"`
	DietSession   int    `json:"diet_session"`
	HouseOfOrigin House  `json:"house_of_origin"`

	// Descriptive
	Title              *string   `json:"title,omitempty"`
	BillType           *BillType `json:"bill_type,omitempty"`
	BillOutline        *string   `json:"bill_outline,omitempty"`
	BackgroundContext  *string   `json:"background_context,omitempty"`
	ExpectedEffects    *string   `json:"expected_effects,omitempty"`
	KeyProvisions      []string  `json:"key_provisions,omitempty"`
	ImplementationDate *string   `json:"implementation_date,omitempty"`
	RelatedLaws        []string  `json:"related_laws,omitempty"`

	// Submission
	SubmitterType      *string  `json:"submitter_type,omitempty"`
	SubmittingMembers  []string `json:"submitting_members,omitempty"`
	SupportingMembers  []string `json:"supporting_members,omitempty"`
	SponsoringMinistry *string  `json:"sponsoring_ministry,omitempty"`
	SubmissionDate     *string  `json:"submission_date,omitempty"`

	// Process
	CurrentStage         Stage                          `json:"current_stage,omitempty"`
	CommitteeAssignments map[string]CommitteeAssignment `json:"committee_assignments,omitempty"`
	VotingResults        map[string]string              `json:"voting_results,omitempty"`
	Amendments           []Amendment                    `json:"amendments,omitempty"`
	InterHouseStatus     *string                        `json:"inter_house_status,omitempty"`

	// Classification (LLM-assisted, optional)
	Category  *string  `json:"category,omitempty"`
	IssueTags []string `json:"issue_tags,omitempty"`

	// Source / quality metadata
	SourceHouse  House           `json:"source_house,omitempty"`
	SourceURL    string          `json:"source_url,omitempty"`
	LastUpdated  time.Time       `json:"last_updated"`
	QualityScore float64         `json:"data_quality_score"`
	Draft        bool            `json:"draft,omitempty"`
	Conflicts    []FieldConflict `json:"merge_conflicts,omitempty"`
}

// Identity returns the bill's business key.
func (b *CanonicalBill) Identity() Identity {
	return Identity{
		BillNumber:    b.BillNumber,
		DietSession:   b.DietSession,
		HouseOfOrigin: b.HouseOfOrigin,
	}
}

// ApplyCarryOver moves the bill into the carried_over stage at a session
// boundary. Committee and voting sub-state are reset for the new session;
// identity and descriptive fields are preserved (history stays in the ledger).
func (b *CanonicalBill) ApplyCarryOver() {
	b.CurrentStage = StageCarriedOver
	b.CommitteeAssignments = nil
	b.VotingResults = nil
	b.InterHouseStatus = nil
}
