package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/diet-tracker/billsync/internal/config"
	"github.com/diet-tracker/billsync/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. It exists so tests can
// substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a tuned connection pool.
func NewPostgres(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if cfg.MaxConns > 0 {
		maxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		minConns = cfg.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool (used by tests with pgxmock).
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS bills (
	id              UUID PRIMARY KEY,
	bill_number     TEXT NOT NULL,
	diet_session    INTEGER NOT NULL,
	house_of_origin TEXT NOT NULL,
	current_stage   TEXT,
	quality_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	draft           BOOLEAN NOT NULL DEFAULT FALSE,
	data            JSONB NOT NULL,
	last_updated    TIMESTAMPTZ NOT NULL,
	UNIQUE(bill_number, diet_session, house_of_origin)
);

CREATE TABLE IF NOT EXISTS process_history (
	id          UUID PRIMARY KEY,
	bill_id     UUID NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
	stage       TEXT NOT NULL,
	house       TEXT NOT NULL,
	committee   TEXT,
	action_date TIMESTAMPTZ NOT NULL,
	action_type TEXT NOT NULL,
	result      TEXT,
	details     JSONB,
	notes       TEXT
);

CREATE INDEX IF NOT EXISTS idx_bills_session ON bills(diet_session);
CREATE INDEX IF NOT EXISTS idx_bills_stage ON bills(current_stage);
CREATE INDEX IF NOT EXISTS idx_bills_draft ON bills(draft);
CREATE INDEX IF NOT EXISTS idx_history_bill_id ON process_history(bill_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetByIdentity(ctx context.Context, id model.Identity) (*model.CanonicalBill, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, data FROM bills WHERE bill_number = $1 AND diet_session = $2 AND house_of_origin = $3`,
		id.BillNumber, id.DietSession, string(id.HouseOfOrigin),
	)
	return scanPgxBill(row)
}

func (s *PostgresStore) GetBill(ctx context.Context, billID string) (*model.CanonicalBill, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, data FROM bills WHERE id = $1`, billID)
	return scanPgxBill(row)
}

func (s *PostgresStore) Upsert(ctx context.Context, bill *model.CanonicalBill) (string, error) {
	if bill.ID == "" {
		bill.ID = uuid.New().String()
	}
	if bill.LastUpdated.IsZero() {
		bill.LastUpdated = time.Now().UTC()
	}

	data, err := json.Marshal(bill)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal bill")
	}

	var storedID string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO bills (id, bill_number, diet_session, house_of_origin, current_stage, quality_score, draft, data, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (bill_number, diet_session, house_of_origin) DO UPDATE SET
			current_stage = EXCLUDED.current_stage,
			quality_score = EXCLUDED.quality_score,
			draft         = EXCLUDED.draft,
			data          = EXCLUDED.data,
			last_updated  = EXCLUDED.last_updated
		RETURNING id`,
		bill.ID, bill.BillNumber, bill.DietSession, string(bill.HouseOfOrigin),
		string(bill.CurrentStage), bill.QualityScore, bill.Draft,
		string(data), bill.LastUpdated,
	).Scan(&storedID)
	if err != nil {
		return "", eris.Wrap(err, "postgres: upsert bill")
	}

	if storedID != bill.ID {
		// Existing row kept its ID; keep the stored JSON consistent with it.
		bill.ID = storedID
		data, err = json.Marshal(bill)
		if err != nil {
			return "", eris.Wrap(err, "postgres: remarshal bill")
		}
		if _, err := s.pool.Exec(ctx, `UPDATE bills SET data = $1 WHERE id = $2`, string(data), storedID); err != nil {
			return "", eris.Wrap(err, "postgres: sync bill id")
		}
	}

	return storedID, nil
}

func (s *PostgresStore) ListAll(ctx context.Context, filter BillFilter) ([]model.CanonicalBill, error) {
	query := `SELECT id, data FROM bills WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Session > 0 {
		query += ` AND diet_session = ` + arg(filter.Session)
	}
	if filter.Stage != "" {
		query += ` AND current_stage = ` + arg(string(filter.Stage))
	}
	if filter.Draft != nil {
		query += ` AND draft = ` + arg(*filter.Draft)
	}
	query += ` ORDER BY diet_session, bill_number`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ` + arg(filter.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list bills")
	}
	defer rows.Close()

	var bills []model.CanonicalBill
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bill")
		}
		var bill model.CanonicalBill
		if err := json.Unmarshal([]byte(data), &bill); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal bill")
		}
		bill.ID = id
		bills = append(bills, bill)
	}
	return bills, eris.Wrap(rows.Err(), "postgres: list bills rows")
}

func (s *PostgresStore) CountByStage(ctx context.Context) (map[model.Stage]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(current_stage, ''), COUNT(*) FROM bills GROUP BY current_stage`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by stage")
	}
	defer rows.Close()

	counts := make(map[model.Stage]int)
	for rows.Next() {
		var stage string
		var n int64
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage count")
		}
		counts[model.Stage(stage)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count rows")
}

func (s *PostgresStore) DeleteDrafts(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM bills WHERE draft = TRUE AND last_updated < $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete drafts")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, entry *model.ProcessHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal history details")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO process_history (id, bill_id, stage, house, committee, action_date, action_type, result, details, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.BillID, string(entry.Stage), string(entry.House),
		entry.Committee, entry.ActionDate, entry.ActionType, entry.Result,
		string(details), entry.Notes,
	)
	return eris.Wrap(err, "postgres: append history")
}

func (s *PostgresStore) ListHistory(ctx context.Context, billID string) ([]model.ProcessHistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, bill_id, stage, house, committee, action_date, action_type, result, details, notes
		FROM process_history WHERE bill_id = $1 ORDER BY action_date`, billID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list history")
	}
	defer rows.Close()
	return scanPgxHistory(rows)
}

func (s *PostgresStore) HistoryByAction(ctx context.Context, actionType string) ([]model.ProcessHistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, bill_id, stage, house, committee, action_date, action_type, result, details, notes
		FROM process_history WHERE action_type = $1 ORDER BY action_date DESC`, actionType)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: history by action")
	}
	defer rows.Close()
	return scanPgxHistory(rows)
}

func (s *PostgresStore) OrphanedHistory(ctx context.Context) ([]model.ProcessHistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT h.id, h.bill_id, h.stage, h.house, h.committee, h.action_date, h.action_type, h.result, h.details, h.notes
		FROM process_history h LEFT JOIN bills b ON b.id = h.bill_id
		WHERE b.id IS NULL`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: orphaned history")
	}
	defer rows.Close()
	return scanPgxHistory(rows)
}

func scanPgxBill(row pgx.Row) (*model.CanonicalBill, error) {
	var id, data string
	err := row.Scan(&id, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan bill")
	}
	var bill model.CanonicalBill
	if err := json.Unmarshal([]byte(data), &bill); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal bill")
	}
	bill.ID = id
	return &bill, nil
}

func scanPgxHistory(rows pgx.Rows) ([]model.ProcessHistoryEntry, error) {
	var entries []model.ProcessHistoryEntry
	for rows.Next() {
		var e model.ProcessHistoryEntry
		var stage, house string
		var committee, result, details, notes *string
		if err := rows.Scan(&e.ID, &e.BillID, &stage, &house, &committee,
			&e.ActionDate, &e.ActionType, &result, &details, &notes); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		e.Stage = model.Stage(stage)
		e.House = model.House(house)
		e.Committee = deref(committee)
		e.Result = deref(result)
		e.Notes = deref(notes)
		if d := deref(details); d != "" && d != "null" {
			if err := json.Unmarshal([]byte(d), &e.Details); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal history details")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: history rows")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

