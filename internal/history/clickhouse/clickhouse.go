package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/loykin/vigil/internal/history"
)

var _ history.Sink = (*Sink)(nil)

// Sink sends crash events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(addr, database, username, password, table string) (*Sink, error) {
	if database == "" {
		database = "default"
	}
	if table == "" {
		table = "vigil_crash_events"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return &Sink{conn: conn, table: table}, nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// EnsureTable creates the events table when it does not exist yet.
func (s *Sink) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		result String,
		reason String,
		proxied_session_id String,
		pid Int64,
		is_debug UInt8,
		observed_by String,
		occurred_at DateTime64(3)
	) ENGINE = MergeTree() ORDER BY (occurred_at, proxied_session_id)`, s.table)
	if err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure ClickHouse table: %w", err)
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (result, reason, proxied_session_id, pid, is_debug, observed_by, occurred_at) VALUES (?, ?, ?, ?, ?, ?, ?)`, s.table)

	isDebug := uint8(0)
	if e.IsDebug {
		isDebug = 1
	}
	err := s.conn.Exec(ctx, query,
		e.Result,
		e.Reason,
		e.ProxiedSessionID,
		int64(e.PID),
		isDebug,
		e.ObservedBy,
		e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
