package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diet-tracker/billsync/internal/model"
)

func strPtr(s string) *string { return &s }

func hrRecord() *model.CanonicalBill {
	return &model.CanonicalBill{
		BillNumber:        "15",
		DietSession:       217,
		HouseOfOrigin:     model.HouseRepresentatives,
		SourceHouse:       model.HouseRepresentatives,
		Title:             strPtr("環境基本法の一部を改正する法律案"),
		SubmissionDate:    strPtr("2025-02-14"),
		SubmittingMembers: []string{"山田太郎"},
		SupportingMembers: []string{"鈴木一郎", "田中次郎"},
	}
}

func hcRecord() *model.CanonicalBill {
	return &model.CanonicalBill{
		BillNumber:    "15",
		DietSession:   217,
		HouseOfOrigin: model.HouseRepresentatives,
		SourceHouse:   model.HouseCouncillors,
		Title:         strPtr("環境基本法の一部を改正する法律案"),
		CurrentStage:  model.StageCommitteeDeliberation,
		CommitteeAssignments: map[string]model.CommitteeAssignment{
			"環境委員会": {Status: "referred", ReferredDate: "2025-02-20"},
		},
	}
}

func TestMerge_ComplementaryFields(t *testing.T) {
	// One chamber has submission data, the other has process data; the merge
	// takes both and reports no conflict.
	res, err := Merge([]*model.CanonicalBill{hrRecord(), hcRecord()}, nil)
	require.NoError(t, err)

	b := res.Merged
	assert.Equal(t, "15", b.BillNumber)
	assert.Equal(t, 217, b.DietSession)
	require.NotNil(t, b.SubmissionDate)
	assert.Equal(t, "2025-02-14", *b.SubmissionDate)
	assert.Equal(t, []string{"鈴木一郎", "田中次郎"}, b.SupportingMembers)
	assert.Equal(t, model.StageCommitteeDeliberation, b.CurrentStage)
	assert.Contains(t, b.CommitteeAssignments, "環境委員会")
	assert.Empty(t, res.Conflicts)
}

func TestMerge_IdenticalValuesNoConflict(t *testing.T) {
	res, err := Merge([]*model.CanonicalBill{hrRecord(), hcRecord()}, nil)
	require.NoError(t, err)
	// Both records carry the same title.
	assert.Empty(t, res.Conflicts)
	require.NotNil(t, res.Merged.Title)
	assert.Equal(t, "環境基本法の一部を改正する法律案", *res.Merged.Title)
}

func TestMerge_ConflictResolvedByPriority(t *testing.T) {
	hr, hc := hrRecord(), hcRecord()
	hc.SubmissionDate = strPtr("2025-02-15") // disagrees with HR

	res, err := Merge([]*model.CanonicalBill{hc, hr}, nil) // HC first in input order
	require.NoError(t, err)

	// submission_date is a Representatives-priority field, so HR wins even
	// though HC came first.
	require.NotNil(t, res.Merged.SubmissionDate)
	assert.Equal(t, "2025-02-14", *res.Merged.SubmissionDate)

	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	assert.Equal(t, "submission_date", c.Field)
	assert.Equal(t, model.HouseRepresentatives, c.ResolvedBy)
	assert.Equal(t, "2025-02-14", c.ValuesBySource[model.HouseRepresentatives])
	assert.Equal(t, "2025-02-15", c.ValuesBySource[model.HouseCouncillors])
}

func TestMerge_MemberListConflictPrefersRepresentatives(t *testing.T) {
	hr, hc := hrRecord(), hcRecord()
	hr.SubmittingMembers = []string{"山田太郎", "佐藤花子"}
	hc.SubmittingMembers = []string{"山田太郎"}

	res, err := Merge([]*model.CanonicalBill{hc, hr}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"山田太郎", "佐藤花子"}, res.Merged.SubmittingMembers)
	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	assert.Equal(t, "submitting_members", c.Field)
	assert.Equal(t, model.HouseRepresentatives, c.ResolvedBy)
	assert.Equal(t, "山田太郎,佐藤花子", c.ValuesBySource[model.HouseRepresentatives])
	assert.Equal(t, "山田太郎", c.ValuesBySource[model.HouseCouncillors])
}

func TestMerge_StageConflictPrefersCouncillors(t *testing.T) {
	hr, hc := hrRecord(), hcRecord()
	hr.CurrentStage = model.StageCommitteeReferral

	res, err := Merge([]*model.CanonicalBill{hr, hc}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.StageCommitteeDeliberation, res.Merged.CurrentStage)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "current_stage", res.Conflicts[0].Field)
	assert.Equal(t, model.HouseCouncillors, res.Conflicts[0].ResolvedBy)
}

func TestMerge_UnprioritizedFieldFallsBackToInputOrder(t *testing.T) {
	hr, hc := hrRecord(), hcRecord()
	hr.BillOutline = strPtr("衆議院側の要旨")
	hc.BillOutline = strPtr("参議院側の要旨")

	res, err := Merge([]*model.CanonicalBill{hc, hr}, nil)
	require.NoError(t, err)

	// bill_outline has no priority entry: first input wins, conflict recorded.
	assert.Equal(t, "参議院側の要旨", *res.Merged.BillOutline)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "bill_outline", res.Conflicts[0].Field)
}

func TestMerge_Idempotent(t *testing.T) {
	hr, hc := hrRecord(), hcRecord()
	hc.SubmissionDate = strPtr("2025-02-15")

	first, err := Merge([]*model.CanonicalBill{hr, hc}, nil)
	require.NoError(t, err)
	second, err := Merge([]*model.CanonicalBill{hr, hc}, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Merged, second.Merged)
	assert.Equal(t, first.Conflicts, second.Conflicts)
}

func TestMerge_IdentityMismatch(t *testing.T) {
	hr, hc := hrRecord(), hcRecord()
	hc.BillNumber = "16"

	_, err := Merge([]*model.CanonicalBill{hr, hc}, nil)
	var mismatch *IdentityMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "15", mismatch.A.BillNumber)
	assert.Equal(t, "16", mismatch.B.BillNumber)
}

func TestMerge_PartialIdentityIsNotMismatch(t *testing.T) {
	hr, hc := hrRecord(), hcRecord()
	hc.DietSession = 0 // partial record still awaiting session

	res, err := Merge([]*model.CanonicalBill{hr, hc}, nil)
	require.NoError(t, err)
	assert.Equal(t, 217, res.Merged.DietSession)
}

func TestMerge_SingleRecord(t *testing.T) {
	res, err := Merge([]*model.CanonicalBill{hrRecord()}, nil)
	require.NoError(t, err)
	assert.Equal(t, "15", res.Merged.BillNumber)
	assert.Empty(t, res.Conflicts)
}

func TestMerge_NoRecords(t *testing.T) {
	_, err := Merge(nil, nil)
	assert.Error(t, err)
}

func TestMerge_DoesNotAliasSourceMaps(t *testing.T) {
	hr, hc := hrRecord(), hcRecord()
	res, err := Merge([]*model.CanonicalBill{hr, hc}, nil)
	require.NoError(t, err)

	res.Merged.CommitteeAssignments["新委員会"] = model.CommitteeAssignment{}
	assert.NotContains(t, hc.CommitteeAssignments, "新委員会")
}
