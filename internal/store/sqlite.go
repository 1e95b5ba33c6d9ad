package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/diet-tracker/billsync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for local runs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS bills (
	id              TEXT PRIMARY KEY,
	bill_number     TEXT NOT NULL,
	diet_session    INTEGER NOT NULL,
	house_of_origin TEXT NOT NULL,
	current_stage   TEXT,
	quality_score   REAL NOT NULL DEFAULT 0,
	draft           INTEGER NOT NULL DEFAULT 0,
	data            TEXT NOT NULL,
	last_updated    DATETIME NOT NULL,
	UNIQUE(bill_number, diet_session, house_of_origin)
);

CREATE TABLE IF NOT EXISTS process_history (
	id          TEXT PRIMARY KEY,
	bill_id     TEXT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
	stage       TEXT NOT NULL,
	house       TEXT NOT NULL,
	committee   TEXT,
	action_date DATETIME NOT NULL,
	action_type TEXT NOT NULL,
	result      TEXT,
	details     TEXT,
	notes       TEXT
);

CREATE INDEX IF NOT EXISTS idx_bills_session ON bills(diet_session);
CREATE INDEX IF NOT EXISTS idx_bills_stage ON bills(current_stage);
CREATE INDEX IF NOT EXISTS idx_bills_draft ON bills(draft);
CREATE INDEX IF NOT EXISTS idx_history_bill_id ON process_history(bill_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetByIdentity(ctx context.Context, id model.Identity) (*model.CanonicalBill, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data FROM bills WHERE bill_number = ? AND diet_session = ? AND house_of_origin = ?`,
		id.BillNumber, id.DietSession, string(id.HouseOfOrigin),
	)
	return scanBillRow(row, "sqlite")
}

func (s *SQLiteStore) GetBill(ctx context.Context, billID string) (*model.CanonicalBill, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, data FROM bills WHERE id = ?`, billID)
	return scanBillRow(row, "sqlite")
}

// Upsert inserts or replaces the canonical record for the bill's identity.
// Last write wins; the returned ID is stable across updates.
func (s *SQLiteStore) Upsert(ctx context.Context, bill *model.CanonicalBill) (string, error) {
	if bill.ID == "" {
		bill.ID = uuid.New().String()
	}
	if bill.LastUpdated.IsZero() {
		bill.LastUpdated = time.Now().UTC()
	}

	data, err := json.Marshal(bill)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal bill")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bills (id, bill_number, diet_session, house_of_origin, current_stage, quality_score, draft, data, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bill_number, diet_session, house_of_origin) DO UPDATE SET
			current_stage = excluded.current_stage,
			quality_score = excluded.quality_score,
			draft         = excluded.draft,
			data          = excluded.data,
			last_updated  = excluded.last_updated`,
		bill.ID, bill.BillNumber, bill.DietSession, string(bill.HouseOfOrigin),
		string(bill.CurrentStage), bill.QualityScore, boolToInt(bill.Draft),
		string(data), bill.LastUpdated,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: upsert bill")
	}

	// On conflict the original row keeps its ID; read it back so callers
	// and the stored JSON agree.
	var storedID string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM bills WHERE bill_number = ? AND diet_session = ? AND house_of_origin = ?`,
		bill.BillNumber, bill.DietSession, string(bill.HouseOfOrigin),
	).Scan(&storedID)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: read upserted id")
	}
	if storedID != bill.ID {
		bill.ID = storedID
		data, err = json.Marshal(bill)
		if err != nil {
			return "", eris.Wrap(err, "sqlite: remarshal bill")
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE bills SET data = ? WHERE id = ?`, string(data), storedID); err != nil {
			return "", eris.Wrap(err, "sqlite: sync bill id")
		}
	}

	return storedID, nil
}

func (s *SQLiteStore) ListAll(ctx context.Context, filter BillFilter) ([]model.CanonicalBill, error) {
	query := `SELECT id, data FROM bills WHERE 1=1`
	var args []any
	if filter.Session > 0 {
		query += ` AND diet_session = ?`
		args = append(args, filter.Session)
	}
	if filter.Stage != "" {
		query += ` AND current_stage = ?`
		args = append(args, string(filter.Stage))
	}
	if filter.Draft != nil {
		query += ` AND draft = ?`
		args = append(args, boolToInt(*filter.Draft))
	}
	query += ` ORDER BY diet_session, bill_number`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list bills")
	}
	defer rows.Close()

	var bills []model.CanonicalBill
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bill")
		}
		var bill model.CanonicalBill
		if err := json.Unmarshal([]byte(data), &bill); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal bill")
		}
		bill.ID = id
		bills = append(bills, bill)
	}
	return bills, eris.Wrap(rows.Err(), "sqlite: list bills rows")
}

func (s *SQLiteStore) CountByStage(ctx context.Context) (map[model.Stage]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(current_stage, ''), COUNT(*) FROM bills GROUP BY current_stage`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by stage")
	}
	defer rows.Close()

	counts := make(map[model.Stage]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage count")
		}
		counts[model.Stage(stage)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count rows")
}

func (s *SQLiteStore) DeleteDrafts(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bills WHERE draft = 1 AND last_updated < ?`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete drafts")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: delete drafts rows affected")
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, entry *model.ProcessHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal history details")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO process_history (id, bill_id, stage, house, committee, action_date, action_type, result, details, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.BillID, string(entry.Stage), string(entry.House),
		entry.Committee, entry.ActionDate, entry.ActionType, entry.Result,
		string(details), entry.Notes,
	)
	return eris.Wrap(err, "sqlite: append history")
}

func (s *SQLiteStore) ListHistory(ctx context.Context, billID string) ([]model.ProcessHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bill_id, stage, house, committee, action_date, action_type, result, details, notes
		FROM process_history WHERE bill_id = ? ORDER BY action_date`, billID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list history")
	}
	defer rows.Close()
	return scanHistoryRows(rows, "sqlite")
}

// HistoryByAction returns every ledger entry with the given action type,
// most recent first. The auditor uses it to surface stage regressions.
func (s *SQLiteStore) HistoryByAction(ctx context.Context, actionType string) ([]model.ProcessHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bill_id, stage, house, committee, action_date, action_type, result, details, notes
		FROM process_history WHERE action_type = ? ORDER BY action_date DESC`, actionType)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: history by action")
	}
	defer rows.Close()
	return scanHistoryRows(rows, "sqlite")
}

// OrphanedHistory returns ledger entries whose bill no longer exists. With
// cascading deletes these indicate external tampering or corruption and are
// surfaced by the auditor.
func (s *SQLiteStore) OrphanedHistory(ctx context.Context) ([]model.ProcessHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.id, h.bill_id, h.stage, h.house, h.committee, h.action_date, h.action_type, h.result, h.details, h.notes
		FROM process_history h LEFT JOIN bills b ON b.id = h.bill_id
		WHERE b.id IS NULL`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: orphaned history")
	}
	defer rows.Close()
	return scanHistoryRows(rows, "sqlite")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBillRow(row rowScanner, driver string) (*model.CanonicalBill, error) {
	var id, data string
	err := row.Scan(&id, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "%s: scan bill", driver)
	}
	var bill model.CanonicalBill
	if err := json.Unmarshal([]byte(data), &bill); err != nil {
		return nil, eris.Wrapf(err, "%s: unmarshal bill", driver)
	}
	bill.ID = id
	return &bill, nil
}

type rowsScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanHistoryRows(rows rowsScanner, driver string) ([]model.ProcessHistoryEntry, error) {
	var entries []model.ProcessHistoryEntry
	for rows.Next() {
		var e model.ProcessHistoryEntry
		var stage, house string
		var committee, result, details, notes sql.NullString
		if err := rows.Scan(&e.ID, &e.BillID, &stage, &house, &committee,
			&e.ActionDate, &e.ActionType, &result, &details, &notes); err != nil {
			return nil, eris.Wrapf(err, "%s: scan history", driver)
		}
		e.Stage = model.Stage(stage)
		e.House = model.House(house)
		e.Committee = committee.String
		e.Result = result.String
		e.Notes = notes.String
		if details.String != "" && details.String != "null" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, eris.Wrapf(err, "%s: unmarshal history details", driver)
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrapf(rows.Err(), "%s: history rows", driver)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
