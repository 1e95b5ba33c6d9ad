package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diet-tracker/billsync/internal/model"
)

func TestMap_RepresentativesRecord(t *testing.T) {
	raw := RawRecord{
		House:     model.HouseRepresentatives,
		SourceURL: "https://example.go.jp/bills/217/15",
		Fields: map[string]any{
			"国会回次":     "第217回",
			"議案番号":     "１５",
			"議案件名":     "デジタル社会形成基本法の一部を改正する法律案",
			"議案種類":     "衆法",
			"提出者":      "山田太郎、佐藤花子",
			"議案提出の賛成者": "鈴木一郎、田中次郎",
			"提出年月日":    "2025-02-14",
			"経過":       "委員会付託",
		},
	}

	bill, err := Map(raw)
	require.NoError(t, err)

	assert.Equal(t, "15", bill.BillNumber)
	assert.Equal(t, 217, bill.DietSession)
	assert.Equal(t, model.HouseRepresentatives, bill.HouseOfOrigin)
	assert.Equal(t, model.HouseRepresentatives, bill.SourceHouse)
	require.NotNil(t, bill.Title)
	assert.Equal(t, "デジタル社会形成基本法の一部を改正する法律案", *bill.Title)
	require.NotNil(t, bill.BillType)
	assert.Equal(t, model.BillTypeMember, *bill.BillType)
	assert.Equal(t, []string{"山田太郎", "佐藤花子"}, bill.SubmittingMembers)
	assert.Equal(t, []string{"鈴木一郎", "田中次郎"}, bill.SupportingMembers)
	assert.Equal(t, model.StageCommitteeReferral, bill.CurrentStage)
	assert.Equal(t, "https://example.go.jp/bills/217/15", bill.SourceURL)
}

func TestMap_CouncillorsRecord(t *testing.T) {
	raw := RawRecord{
		House: model.HouseCouncillors,
		Fields: map[string]any{
			"国会回次":    float64(217),
			"議案番号":    "3",
			"件名":      "環境基本法の一部を改正する法律案",
			"種別":      "閣法",
			"所管省庁":    "環境省",
			"審議状況":    "委員会審査中",
			"付託委員会":   "環境委員会",
			"本会議投票結果": map[string]any{"賛成": "140", "反対": "95"},
		},
	}

	bill, err := Map(raw)
	require.NoError(t, err)

	assert.Equal(t, "3", bill.BillNumber)
	assert.Equal(t, 217, bill.DietSession)
	require.NotNil(t, bill.BillType)
	assert.Equal(t, model.BillTypeGovernment, *bill.BillType)
	require.NotNil(t, bill.SponsoringMinistry)
	assert.Equal(t, "環境省", *bill.SponsoringMinistry)
	assert.Equal(t, model.StageCommitteeDeliberation, bill.CurrentStage)
	assert.Contains(t, bill.CommitteeAssignments, "環境委員会")
	assert.Equal(t, map[string]string{"賛成": "140", "反対": "95"}, bill.VotingResults)
	// The Councillors feed has no supporters field.
	assert.Nil(t, bill.SupportingMembers)
}

func TestMap_UnknownHouse(t *testing.T) {
	_, err := Map(RawRecord{House: "house_of_lords"})
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestMap_AbsentFieldsStayNil(t *testing.T) {
	bill, err := Map(RawRecord{
		House:  model.HouseRepresentatives,
		Fields: map[string]any{"議案番号": "7"},
	})
	require.NoError(t, err)

	assert.Nil(t, bill.Title)
	assert.Nil(t, bill.BillOutline)
	assert.Nil(t, bill.SubmittingMembers)
	assert.Empty(t, bill.CurrentStage)
	assert.Zero(t, bill.QualityScore)
}

func TestMap_BlankValuesTreatedAsAbsent(t *testing.T) {
	bill, err := Map(RawRecord{
		House: model.HouseRepresentatives,
		Fields: map[string]any{
			"議案番号": "7",
			"議案件名": "   ",
			"議案要旨": "",
		},
	})
	require.NoError(t, err)

	assert.Nil(t, bill.Title)
	assert.Nil(t, bill.BillOutline)
}

func TestStageFromStatus(t *testing.T) {
	tests := []struct {
		status string
		want   model.Stage
	}{
		{"委員会付託", model.StageCommitteeReferral},
		{"環境委員会に付託", model.StageCommitteeReferral},
		{"委員会審査中", model.StageCommitteeDeliberation},
		{"継続審査", model.StageCarriedOver},
		{"閉会中審査", model.StageCarriedOver},
		{"本会議採決待ち", model.StageFloorVotePending},
		{"可決", model.StagePassedCurrentHouse},
		{"成立", model.StagePassedBothHouses},
		{"否決", model.StageRejected},
		{"撤回", model.StageWithdrawn},
		{"committee_referral", model.StageCommitteeReferral},
		{"謎のステータス", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, StageFromStatus(tt.status))
		})
	}
}

func TestParseBillType(t *testing.T) {
	assert.Equal(t, model.BillTypeGovernment, parseBillType("閣法"))
	assert.Equal(t, model.BillTypeGovernment, parseBillType("内閣提出"))
	assert.Equal(t, model.BillTypeMember, parseBillType("衆法"))
	assert.Equal(t, model.BillTypeMember, parseBillType("参法"))
	assert.Equal(t, model.BillTypeMember, parseBillType("議員立法"))
	assert.Empty(t, parseBillType("その他"))
	assert.Empty(t, parseBillType(""))
}
