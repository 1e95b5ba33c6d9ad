package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diet-tracker/billsync/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewPostgresFromPool(mock), mock
}

func billJSON(t *testing.T, bill *model.CanonicalBill) string {
	t.Helper()
	data, err := json.Marshal(bill)
	require.NoError(t, err)
	return string(data)
}

func TestPostgres_GetByIdentity(t *testing.T) {
	st, mock := newMockStore(t)

	bill := sampleBill("15")
	bill.ID = "row-1"
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, data FROM bills WHERE bill_number = $1 AND diet_session = $2 AND house_of_origin = $3`)).
		WithArgs("15", 217, "house_of_representatives").
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}).AddRow("row-1", billJSON(t, bill)))

	got, err := st.GetByIdentity(context.Background(), bill.Identity())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "row-1", got.ID)
	assert.Equal(t, "15", got.BillNumber)
}

func TestPostgres_GetByIdentityMissing(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, data FROM bills WHERE bill_number = $1`)).
		WithArgs("404", 1, "house_of_councillors").
		WillReturnError(pgx.ErrNoRows)

	got, err := st.GetByIdentity(context.Background(), model.Identity{
		BillNumber: "404", DietSession: 1, HouseOfOrigin: model.HouseCouncillors,
	})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostgres_UpsertNewRow(t *testing.T) {
	st, mock := newMockStore(t)

	bill := sampleBill("15")
	bill.ID = "pre-assigned"
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO bills`)).
		WithArgs("pre-assigned", "15", 217, "house_of_representatives", "committee_referral",
			0.4, false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("pre-assigned"))

	id, err := st.Upsert(context.Background(), bill)
	require.NoError(t, err)
	assert.Equal(t, "pre-assigned", id)
}

func TestPostgres_UpsertExistingRowKeepsStoredID(t *testing.T) {
	st, mock := newMockStore(t)

	bill := sampleBill("15")
	bill.ID = "fresh-uuid"

	// The conflict target already has a row; RETURNING yields its ID and the
	// JSON payload must be re-synced to match.
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO bills`)).
		WithArgs("fresh-uuid", "15", 217, "house_of_representatives", "committee_referral",
			0.4, false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("stored-uuid"))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE bills SET data = $1 WHERE id = $2`)).
		WithArgs(pgxmock.AnyArg(), "stored-uuid").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	id, err := st.Upsert(context.Background(), bill)
	require.NoError(t, err)
	assert.Equal(t, "stored-uuid", id)
	assert.Equal(t, "stored-uuid", bill.ID, "caller's struct follows the stored row")
}

func TestPostgres_ListAllBuildsFilteredQuery(t *testing.T) {
	st, mock := newMockStore(t)

	bill := sampleBill("15")
	bill.ID = "row-1"
	drafts := false
	mock.ExpectQuery(`SELECT id, data FROM bills WHERE 1=1 AND diet_session = \$1 AND draft = \$2 ORDER BY diet_session, bill_number LIMIT \$3`).
		WithArgs(217, false, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}).AddRow("row-1", billJSON(t, bill)))

	bills, err := st.ListAll(context.Background(), BillFilter{Session: 217, Draft: &drafts, Limit: 10})
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, "row-1", bills[0].ID)
}

func TestPostgres_CountByStage(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(current_stage, ''), COUNT(*) FROM bills GROUP BY current_stage`)).
		WillReturnRows(pgxmock.NewRows([]string{"current_stage", "count"}).
			AddRow("committee_referral", int64(3)).
			AddRow("passed_both_houses", int64(1)))

	counts, err := st.CountByStage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[model.StageCommitteeReferral])
	assert.Equal(t, 1, counts[model.StagePassedBothHouses])
}

func TestPostgres_DeleteDrafts(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM bills WHERE draft = TRUE AND last_updated < $1`)).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := st.DeleteDrafts(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPostgres_AppendHistory(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO process_history`)).
		WithArgs(pgxmock.AnyArg(), "row-1", "committee_referral", "house_of_representatives",
			"", pgxmock.AnyArg(), "stage_change", "", "null", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.AppendHistory(context.Background(), &model.ProcessHistoryEntry{
		BillID:     "row-1",
		Stage:      model.StageCommitteeReferral,
		House:      model.HouseRepresentatives,
		ActionType: model.ActionStageChange,
	})
	require.NoError(t, err)
}

func TestPostgres_HistoryByAction(t *testing.T) {
	st, mock := newMockStore(t)

	cols := []string{"id", "bill_id", "stage", "house", "committee", "action_date", "action_type", "result", "details", "notes"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM process_history WHERE action_type = $1`)).
		WithArgs("stage_regression").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"h1", "row-1", "committee_referral", "house_of_representatives", nil,
			time.Now().UTC(), "stage_regression", nil, nil, nil))

	entries, err := st.HistoryByAction(context.Background(), model.ActionStageRegression)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "row-1", entries[0].BillID)
	assert.Equal(t, model.StageCommitteeReferral, entries[0].Stage)
}

func TestPostgres_Migrate(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS bills`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
}
