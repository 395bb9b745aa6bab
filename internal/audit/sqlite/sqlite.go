package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/onceguard/internal/audit"
)

// Sink writes audit events to a SQLite database.
type Sink struct {
	db    *sql.DB
	table string
}

// New creates a SQLite audit sink. dsn accepts "sqlite:///path/to/file.db",
// "sqlite://:memory:", a bare path, or ":memory:".
func New(dsn, table string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("audit/sqlite: empty DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}
	if table == "" {
		table = "dedup_audit"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &Sink{db: db, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
		occurred_at   TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		outcome       TEXT NOT NULL,
		id            TEXT NOT NULL,
		processor_id  TEXT NOT NULL,
		poll_wait_ms  INTEGER NOT NULL DEFAULT 0,
		error         TEXT
	)`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e audit.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+s.table+` (occurred_at, outcome, id, processor_id, poll_wait_ms, error)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''))`,
		e.OccurredAt.UTC(), string(e.Outcome), e.ID, e.ProcessorID, e.PollWait.Milliseconds(), e.Err)
	return err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
