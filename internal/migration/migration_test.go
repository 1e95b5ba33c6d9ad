package migration

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diet-tracker/billsync/internal/audit"
	"github.com/diet-tracker/billsync/internal/complete"
	"github.com/diet-tracker/billsync/internal/config"
	"github.com/diet-tracker/billsync/internal/model"
	"github.com/diet-tracker/billsync/internal/store/storetest"
)

func strPtr(s string) *string { return &s }

func newService(st *storetest.Fake, exportDir string) *Service {
	auditor := audit.New(st, config.AuditConfig{StaleDays: 14, QualityScoreThreshold: 0.6})
	processor := complete.New(st, nil, config.CompletionConfig{})
	return New(auditor, processor, config.MigrationConfig{ExportDir: exportDir})
}

// fixableBill has a long outline but no provisions, so local re-derivation
// can improve it without a scraper.
func fixableBill() *model.CanonicalBill {
	return &model.CanonicalBill{
		BillNumber:    "15",
		DietSession:   217,
		HouseOfOrigin: model.HouseRepresentatives,
		Title:         strPtr("環境基本法の一部を改正する法律案"),
		BillOutline: strPtr("一、環境基準の設定方法を全面的に見直すこと。" +
			"二、事業者による環境負荷の報告義務を大幅に拡充すること。" +
			"三、違反に対する罰則規定を整備すること。"),
		LastUpdated: time.Now(),
	}
}

func phaseByName(report *model.MigrationReport, name string) *model.PhaseResult {
	for i := range report.Phases {
		if report.Phases[i].Name == name {
			return &report.Phases[i]
		}
	}
	return nil
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	st := &storetest.Fake{}
	st.Seed(fixableBill())

	report, err := newService(st, t.TempDir()).Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	require.NotNil(t, report.Plan)
	assert.NotEmpty(t, report.Plan.Actions)
	assert.NotNil(t, report.Before)
	assert.Nil(t, report.After)
	assert.Empty(t, report.Actions)

	assert.Equal(t, model.PhaseComplete, phaseByName(report, PhaseAudit).Status)
	assert.Equal(t, model.PhaseComplete, phaseByName(report, PhasePlan).Status)
	assert.Equal(t, model.PhaseComplete, phaseByName(report, PhaseGate).Status)
	assert.Equal(t, model.PhaseSkipped, phaseByName(report, PhaseExecute).Status)
	assert.Equal(t, model.PhaseSkipped, phaseByName(report, PhaseReaudit).Status)

	// The store saw zero mutating calls.
	assert.Zero(t, st.MutatingCalls())
}

func TestRun_FullMigrationImprovesCorpus(t *testing.T) {
	st := &storetest.Fake{}
	st.Seed(fixableBill())

	report, err := newService(st, t.TempDir()).Run(context.Background(), Options{})
	require.NoError(t, err)

	require.NotNil(t, report.Before)
	require.NotNil(t, report.After)
	assert.Greater(t, report.After.AverageQuality, report.Before.AverageQuality)

	succeeded := 0
	for _, a := range report.Actions {
		if a.Status == model.ActionSuccess {
			succeeded++
			assert.Equal(t, model.StrategyRederive, a.Strategy)
		}
	}
	assert.Equal(t, 1, succeeded, "one bill remediated once")
}

func TestRun_OneBillRemediatedOncePerRun(t *testing.T) {
	st := &storetest.Fake{}
	// fixableBill yields several issues (missing provisions, low score,
	// missing category) but only one completion attempt per bill.
	st.Seed(fixableBill())

	report, err := newService(st, t.TempDir()).Run(context.Background(), Options{})
	require.NoError(t, err)

	attempts := 0
	for _, a := range report.Actions {
		if a.Status == model.ActionSuccess || a.Status == model.ActionFailed {
			attempts++
		}
	}
	assert.LessOrEqual(t, attempts, 1)
}

func TestRun_ManualReviewActionsAreSkipped(t *testing.T) {
	st := &storetest.Fake{}
	a, b := fixableBill(), fixableBill()
	a.ID, b.ID = "row-a", "row-b"
	st.Seed(a, b) // duplicate identity → manual review

	report, err := newService(st, t.TempDir()).Run(context.Background(), Options{})
	require.NoError(t, err)

	var sawManual bool
	for _, act := range report.Actions {
		if act.IssueType == model.IssueDuplicateIdentity {
			sawManual = true
			assert.Equal(t, model.ActionSkipped, act.Status)
		}
	}
	assert.True(t, sawManual)
}

func TestRun_AuditFailureAborts(t *testing.T) {
	st := &storetest.Fake{ListErr: eris.New("store down")}

	report, err := newService(st, t.TempDir()).Run(context.Background(), Options{})
	require.Error(t, err)
	require.NotNil(t, report, "partial report still returned")
	assert.Equal(t, model.PhaseFailed, phaseByName(report, PhaseAudit).Status)
	assert.Nil(t, phaseByName(report, PhaseExecute))
}

func TestRun_PerActionFailureDoesNotAbort(t *testing.T) {
	st := &storetest.Fake{}
	st.Seed(fixableBill())
	st.UpsertErrOnce = eris.New("disk full")

	report, err := newService(st, t.TempDir()).Run(context.Background(), Options{})
	require.NoError(t, err, "execute continues past per-item failures")

	var sawFailure bool
	for _, a := range report.Actions {
		if a.Status == model.ActionFailed {
			sawFailure = true
			assert.Contains(t, a.Error, "disk full")
		}
	}
	assert.True(t, sawFailure)
	assert.Equal(t, model.PhaseComplete, phaseByName(report, PhaseExecute).Status)
	assert.Equal(t, model.PhaseComplete, phaseByName(report, PhaseReaudit).Status)
}

func TestRecommendStrategy(t *testing.T) {
	tests := []struct {
		issue model.IssueType
		want  model.Strategy
	}{
		{model.IssueMissingRequiredField, model.StrategyRefetch},
		{model.IssueShortOutline, model.StrategyRefetch},
		{model.IssueStaleData, model.StrategyRefetch},
		{model.IssueLowQualityScore, model.StrategyRefetch},
		{model.IssueMissingProvisions, model.StrategyRederive},
		{model.IssueConflictingSource, model.StrategyCrossChamber},
		{model.IssueDuplicateIdentity, model.StrategyManualReview},
		{model.IssueOrphanedProcessHistory, model.StrategyManualReview},
		{model.IssueCategoryMissing, model.StrategyManualReview},
	}
	for _, tt := range tests {
		t.Run(string(tt.issue), func(t *testing.T) {
			assert.Equal(t, tt.want, recommendStrategy(model.QualityIssue{Type: tt.issue}))
		})
	}
}

func TestExport_WritesReportFile(t *testing.T) {
	dir := t.TempDir()
	st := &storetest.Fake{}
	st.Seed(fixableBill())
	svc := newService(st, dir)

	report, err := svc.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	path, err := svc.Export(report)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Contains(t, path, dir)
}
