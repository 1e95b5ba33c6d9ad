package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diet-tracker/billsync/internal/model"
)

func strPtr(s string) *string { return &s }

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleBill(num string) *model.CanonicalBill {
	return &model.CanonicalBill{
		BillNumber:    num,
		DietSession:   217,
		HouseOfOrigin: model.HouseRepresentatives,
		Title:         strPtr("環境基本法の一部を改正する法律案"),
		CurrentStage:  model.StageCommitteeReferral,
		QualityScore:  0.4,
		LastUpdated:   time.Now().UTC(),
	}
}

func TestSQLite_UpsertAndGetByIdentity(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	b := sampleBill("15")
	id, err := st.Upsert(ctx, b)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := st.GetByIdentity(ctx, b.Identity())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "15", got.BillNumber)
	require.NotNil(t, got.Title)
	assert.Equal(t, *b.Title, *got.Title)
	assert.Equal(t, model.StageCommitteeReferral, got.CurrentStage)
}

func TestSQLite_GetMissingReturnsNil(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	got, err := st.GetByIdentity(ctx, model.Identity{BillNumber: "404", DietSession: 1, HouseOfOrigin: model.HouseCouncillors})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = st.GetBill(ctx, "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_UpsertIsIdentityKeyedLastWriteWins(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := sampleBill("15")
	firstID, err := st.Upsert(ctx, first)
	require.NoError(t, err)

	// A second writer for the same identity starts from a fresh struct.
	second := sampleBill("15")
	second.CurrentStage = model.StageFloorVotePending
	secondID, err := st.Upsert(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, firstID, secondID, "row ID is stable across upserts")

	bills, err := st.ListAll(ctx, BillFilter{})
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, model.StageFloorVotePending, bills[0].CurrentStage)
	// The stored JSON agrees with the row ID.
	assert.Equal(t, firstID, bills[0].ID)
}

func TestSQLite_ListAllFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a := sampleBill("1")
	b := sampleBill("2")
	b.CurrentStage = model.StagePassedBothHouses
	c := sampleBill("3")
	c.DietSession = 216
	d := sampleBill("4")
	d.Draft = true

	for _, bill := range []*model.CanonicalBill{a, b, c, d} {
		_, err := st.Upsert(ctx, bill)
		require.NoError(t, err)
	}

	bySession, err := st.ListAll(ctx, BillFilter{Session: 216})
	require.NoError(t, err)
	assert.Len(t, bySession, 1)

	byStage, err := st.ListAll(ctx, BillFilter{Stage: model.StagePassedBothHouses})
	require.NoError(t, err)
	assert.Len(t, byStage, 1)

	drafts := true
	byDraft, err := st.ListAll(ctx, BillFilter{Draft: &drafts})
	require.NoError(t, err)
	assert.Len(t, byDraft, 1)

	limited, err := st.ListAll(ctx, BillFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLite_CountByStage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, num := range []string{"1", "2"} {
		_, err := st.Upsert(ctx, sampleBill(num))
		require.NoError(t, err)
	}
	passed := sampleBill("3")
	passed.CurrentStage = model.StagePassedBothHouses
	_, err := st.Upsert(ctx, passed)
	require.NoError(t, err)

	counts, err := st.CountByStage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.StageCommitteeReferral])
	assert.Equal(t, 1, counts[model.StagePassedBothHouses])
}

func TestSQLite_DeleteDrafts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	stale := sampleBill("1")
	stale.Draft = true
	stale.LastUpdated = time.Now().UTC().AddDate(0, 0, -60)

	freshDraft := sampleBill("2")
	freshDraft.Draft = true

	keeper := sampleBill("3")

	for _, bill := range []*model.CanonicalBill{stale, freshDraft, keeper} {
		_, err := st.Upsert(ctx, bill)
		require.NoError(t, err)
	}

	n, err := st.DeleteDrafts(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	bills, err := st.ListAll(ctx, BillFilter{})
	require.NoError(t, err)
	assert.Len(t, bills, 2)
}

func TestSQLite_HistoryRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	billID, err := st.Upsert(ctx, sampleBill("15"))
	require.NoError(t, err)

	entry := &model.ProcessHistoryEntry{
		BillID:     billID,
		Stage:      model.StageCommitteeDeliberation,
		House:      model.HouseRepresentatives,
		Committee:  "環境委員会",
		ActionDate: time.Now().UTC(),
		ActionType: model.ActionStageChange,
		Details:    map[string]any{"previous_stage": "committee_referral"},
	}
	require.NoError(t, st.AppendHistory(ctx, entry))

	entries, err := st.ListHistory(ctx, billID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.StageCommitteeDeliberation, entries[0].Stage)
	assert.Equal(t, "環境委員会", entries[0].Committee)
	assert.Equal(t, "committee_referral", entries[0].Details["previous_stage"])
}

func TestSQLite_HistoryByAction(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	billID, err := st.Upsert(ctx, sampleBill("15"))
	require.NoError(t, err)

	older := time.Now().UTC().Add(-time.Hour)
	for _, e := range []*model.ProcessHistoryEntry{
		{BillID: billID, Stage: model.StageCommitteeDeliberation, House: model.HouseRepresentatives,
			ActionDate: older, ActionType: model.ActionStageChange},
		{BillID: billID, Stage: model.StageCommitteeReferral, House: model.HouseRepresentatives,
			ActionDate: time.Now().UTC(), ActionType: model.ActionStageRegression,
			Details: map[string]any{"previous_stage": "committee_deliberation"}},
	} {
		require.NoError(t, st.AppendHistory(ctx, e))
	}

	entries, err := st.HistoryByAction(ctx, model.ActionStageRegression)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, billID, entries[0].BillID)
	assert.Equal(t, "committee_deliberation", entries[0].Details["previous_stage"])
}

func TestSQLite_CascadeDeleteRemovesHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	draft := sampleBill("15")
	draft.Draft = true
	draft.LastUpdated = time.Now().UTC().AddDate(0, 0, -60)
	billID, err := st.Upsert(ctx, draft)
	require.NoError(t, err)

	require.NoError(t, st.AppendHistory(ctx, &model.ProcessHistoryEntry{
		BillID:     billID,
		Stage:      model.StageCommitteeReferral,
		House:      model.HouseRepresentatives,
		ActionDate: time.Now().UTC(),
		ActionType: model.ActionStageChange,
	}))

	// Re-set last_updated: AppendHistory does not touch bills, but Upsert
	// above already wrote the stale timestamp.
	n, err := st.DeleteDrafts(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	orphans, err := st.OrphanedHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans, "cascade removed the ledger rows")

	entries, err := st.ListHistory(ctx, billID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLite_OrphanedHistoryDetection(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	billID, err := st.Upsert(ctx, sampleBill("15"))
	require.NoError(t, err)
	require.NoError(t, st.AppendHistory(ctx, &model.ProcessHistoryEntry{
		BillID:     billID,
		Stage:      model.StageCommitteeReferral,
		House:      model.HouseRepresentatives,
		ActionDate: time.Now().UTC(),
		ActionType: model.ActionStageChange,
	}))

	// Sever the link behind the store's back. The tamper needs its own
	// connection with foreign keys off, or the store's pragma rejects it.
	conn, err := st.db.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `PRAGMA foreign_keys=OFF`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `UPDATE process_history SET bill_id = 'gone'`)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	orphans, err := st.OrphanedHistory(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "gone", orphans[0].BillID)
}
