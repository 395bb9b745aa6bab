package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/onceguard/internal/audit"
)

// startClickHouseContainer spins up a disposable ClickHouse server
// reachable over the native protocol, gated on the HTTP /ping
// endpoint coming up first.
func startClickHouseContainer(t *testing.T) (addr string, terminate func()) {
	t.Helper()

	ctx := context.Background()
	container, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("failed to start ClickHouse container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Skipf("failed to get container host: %v", err)
		return "", nil
	}
	port, err := container.MappedPort(ctx, "9000/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Skipf("failed to get mapped native port: %v", err)
		return "", nil
	}

	addr = host + ":" + port.Port()
	terminate = func() { _ = container.Terminate(ctx) }
	return addr, terminate
}

func TestClickHouseSink_SendThenCount(t *testing.T) {
	addr, terminate := startClickHouseContainer(t)
	defer func() {
		if terminate != nil {
			terminate()
		}
	}()

	sink, err := New(addr, "dedup_audit")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	ctx := context.Background()
	if err := sink.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS dedup_audit (
			occurred_at  DateTime64(3),
			outcome      String,
			id           String,
			processor_id String,
			poll_wait_ms Int64,
			error        String
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, id)
	`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	events := []audit.Event{
		{Outcome: audit.OutcomeClaimed, ID: "order-1", ProcessorID: "billing", OccurredAt: time.Now().UTC()},
		{Outcome: audit.OutcomeReclaimed, ID: "order-1", ProcessorID: "billing", OccurredAt: time.Now().UTC(), PollWait: 200 * time.Millisecond},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Send(%s): %v", e.Outcome, err)
		}
	}

	row := sink.conn.QueryRow(ctx, "SELECT COUNT(*) FROM dedup_audit WHERE id = ?", "order-1")
	var count uint64
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan count: %v", err)
	}
	if count != uint64(len(events)) {
		t.Fatalf("count = %d, want %d", count, len(events))
	}
}

func TestClickHouseSink_ConnectionError(t *testing.T) {
	if _, err := New("invalid-host:9000", "dedup_audit"); err == nil {
		t.Fatal("expected error connecting to an invalid host")
	}
}
