package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/onceguard/internal/dedup"
	"github.com/loykin/onceguard/internal/store"
)

// Store implements dedup.Store (and dedup.Peeker) against SQLite.
type Store struct {
	db    *sql.DB
	table string
}

func init() {
	store.Register("sqlite", func(cfg store.Config) (dedup.Store[dedup.StringKey], error) {
		return New(cfg.DSN, cfg.TableName)
	})
}

// New opens a SQLite-backed Store. dsn is a modernc.org/sqlite data
// source, e.g. "file:onceguard.db" or ":memory:".
func New(dsn, table string) (*Store, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite serializes writers best with a single connection
	if table == "" {
		table = "dedup_process"
	}
	return &Store{db: db, table: table}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id           TEXT NOT NULL,
			processor_id TEXT NOT NULL,
			started_at   INTEGER NOT NULL,
			completed_at INTEGER,
			expires_on   INTEGER,
			PRIMARY KEY (id, processor_id)
		)`, s.table))
	return err
}

// Claim is a single INSERT-wins-or-return-existing statement: if the row
// is absent it is inserted with startedAt=now and nil is returned; if
// present, the existing row is returned unchanged. SQLite's RETURNING
// clause (3.35+, which modernc.org/sqlite supports) makes this atomic.
func (s *Store) Claim(ctx context.Context, id, processorID dedup.StringKey, now time.Time) (*dedup.Process, error) {
	query := fmt.Sprintf(`
		WITH ins AS (
			INSERT INTO %[1]s (id, processor_id, started_at)
			VALUES (?, ?, ?)
			ON CONFLICT (id, processor_id) DO NOTHING
			RETURNING id, processor_id, started_at, completed_at, expires_on
		)
		SELECT id, processor_id, started_at, completed_at, expires_on FROM ins
		UNION ALL
		SELECT id, processor_id, started_at, completed_at, expires_on FROM %[1]s
		WHERE id = ? AND processor_id = ? AND NOT EXISTS (SELECT 1 FROM ins)`, s.table)

	row := s.db.QueryRowContext(ctx, query, id.String(), processorID.String(), now.UnixMilli(), id.String(), processorID.String())
	inserted, prior, err := scanClaim(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite: claim: %w", err)
	}
	if inserted {
		return nil, nil
	}
	return prior, nil
}

func (s *Store) Commit(ctx context.Context, id, processorID dedup.StringKey, now time.Time, ttl time.Duration) error {
	expires := now.Add(ttl)
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET completed_at = ?, expires_on = ? WHERE id = ? AND processor_id = ?`, s.table),
		now.UnixMilli(), expires.Unix(), id.String(), processorID.String())
	if err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Peek implements dedup.Peeker: a non-mutating read for operational
// tooling.
func (s *Store) Peek(ctx context.Context, id, processorID dedup.StringKey) (*dedup.Process, error) {
	query := fmt.Sprintf(`SELECT id, processor_id, started_at, completed_at, expires_on FROM %s WHERE id = ? AND processor_id = ?`, s.table)
	row := s.db.QueryRowContext(ctx, query, id.String(), processorID.String())
	p, err := scanProcess(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: peek: %w", err)
	}
	return p, nil
}

// Sweep deletes completed records whose expires_on has passed before,
// implementing store.Sweepable.
func (s *Store) Sweep(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE expires_on IS NOT NULL AND expires_on < ?`, s.table),
		before.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep: %w", err)
	}
	return res.RowsAffected()
}

func scanClaim(row *sql.Row) (inserted bool, prior *dedup.Process, err error) {
	p, err := scanProcess(row)
	if err == sql.ErrNoRows {
		return true, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return false, p, nil
}

func scanProcess(row *sql.Row) (*dedup.Process, error) {
	var id, processorID string
	var startedMs int64
	var completedMs, expiresSec sql.NullInt64
	if err := row.Scan(&id, &processorID, &startedMs, &completedMs, &expiresSec); err != nil {
		return nil, err
	}
	attrs := dedup.Attributes{
		"id":           id,
		"processor_id": processorID,
		"started_at":   startedMs,
	}
	if completedMs.Valid {
		attrs["completed_at"] = completedMs.Int64
	}
	if expiresSec.Valid {
		attrs["expires_on"] = expiresSec.Int64
	}
	p, err := dedup.Decode(attrs)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
