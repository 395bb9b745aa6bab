package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/onceguard/internal/dedup"
	"github.com/loykin/onceguard/internal/store"
)

// Store implements dedup.Store (and dedup.Peeker) against PostgreSQL.
type Store struct {
	db    *sql.DB
	table string
}

func init() {
	store.Register("postgres", func(cfg store.Config) (dedup.Store[dedup.StringKey], error) {
		return New(cfg.DSN, cfg.TableName)
	})
}

// New opens a Postgres-backed Store over the pgx stdlib driver.
func New(dsn, table string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
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
			started_at   BIGINT NOT NULL,
			completed_at BIGINT,
			expires_on   BIGINT,
			PRIMARY KEY (id, processor_id)
		)`, s.table))
	return err
}

// Claim performs the KV if_not_exists(...)/ReturnValues=ALL_OLD conditional
// update as a single round trip: insert wins and nil is returned, or the
// insert conflicts and the pre-existing row is returned unchanged.
func (s *Store) Claim(ctx context.Context, id, processorID dedup.StringKey, now time.Time) (*dedup.Process, error) {
	query := fmt.Sprintf(`
		WITH ins AS (
			INSERT INTO %[1]s (id, processor_id, started_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (id, processor_id) DO NOTHING
			RETURNING id, processor_id, started_at, completed_at, expires_on
		)
		SELECT id, processor_id, started_at, completed_at, expires_on FROM ins
		UNION ALL
		SELECT id, processor_id, started_at, completed_at, expires_on FROM %[1]s
		WHERE id = $1 AND processor_id = $2 AND NOT EXISTS (SELECT 1 FROM ins)`, s.table)

	row := s.db.QueryRowContext(ctx, query, id.String(), processorID.String(), now.UnixMilli())
	inserted, prior, err := scanClaim(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: claim: %w", err)
	}
	if inserted {
		return nil, nil
	}
	return prior, nil
}

func (s *Store) Commit(ctx context.Context, id, processorID dedup.StringKey, now time.Time, ttl time.Duration) error {
	expires := now.Add(ttl)
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET completed_at = $1, expires_on = $2 WHERE id = $3 AND processor_id = $4`, s.table),
		now.UnixMilli(), expires.Unix(), id.String(), processorID.String())
	if err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (s *Store) Peek(ctx context.Context, id, processorID dedup.StringKey) (*dedup.Process, error) {
	query := fmt.Sprintf(`SELECT id, processor_id, started_at, completed_at, expires_on FROM %s WHERE id = $1 AND processor_id = $2`, s.table)
	row := s.db.QueryRowContext(ctx, query, id.String(), processorID.String())
	p, err := scanProcess(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: peek: %w", err)
	}
	return p, nil
}

// Sweep deletes completed records whose expires_on has passed before,
// implementing store.Sweepable.
func (s *Store) Sweep(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE expires_on IS NOT NULL AND expires_on < $1`, s.table),
		before.Unix())
	if err != nil {
		return 0, fmt.Errorf("postgres: sweep: %w", err)
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
