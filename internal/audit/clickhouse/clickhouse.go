// Package clickhouse ships coordinator decisions to ClickHouse for
// best-effort analytics. ClickHouse's mutation model has no atomic
// conditional update, which is why it never backs the correctness-critical
// dedup.Store — only this append-only audit trail.
package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/onceguard/internal/audit"
)

// Sink appends audit events to ClickHouse over the native protocol.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to ClickHouse at addr (host:port, native protocol) and
// targets table for inserts.
func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("audit/clickhouse: connect: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("audit/clickhouse: ping: %w", err)
	}
	if table == "" {
		table = "dedup_audit"
	}
	return &Sink{conn: conn, table: table}, nil
}

func (s *Sink) Send(ctx context.Context, e audit.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, outcome, id, processor_id, poll_wait_ms, error) VALUES (?, ?, ?, ?, ?, ?)`, s.table)
	err := s.conn.Exec(ctx, query,
		e.OccurredAt,
		string(e.Outcome),
		e.ID,
		e.ProcessorID,
		e.PollWait.Milliseconds(),
		e.Err,
	)
	if err != nil {
		return fmt.Errorf("audit/clickhouse: insert: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
