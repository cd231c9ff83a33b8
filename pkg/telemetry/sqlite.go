package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS calls (
	call_id      TEXT NOT NULL,
	phone_number TEXT,
	room_name    TEXT,
	status       TEXT NOT NULL,
	metadata     TEXT,
	recorded_at  DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS call_events (
	call_id     TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	data        TEXT,
	recorded_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS call_metrics (
	call_id     TEXT NOT NULL,
	metric_type TEXT NOT NULL,
	value_ms    REAL NOT NULL,
	recorded_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS transcripts (
	call_id     TEXT NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	recorded_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS tool_executions (
	call_id     TEXT NOT NULL,
	tool_name   TEXT NOT NULL,
	parameters  TEXT,
	result      TEXT,
	success     INTEGER NOT NULL,
	latency_ms  INTEGER,
	recorded_at DATETIME NOT NULL
);
`

// SQLiteSink stores analytics in a local SQLite file. Useful for
// development and for deployments without a hosted analytics backend.
type SQLiteSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteSink{db: db, logger: logger.With("component", "telemetry.sqlite")}, nil
}

// LogEvent inserts a row into call_events.
func (s *SQLiteSink) LogEvent(ctx context.Context, callID, eventType string, data map[string]any) bool {
	return s.exec(ctx,
		"INSERT INTO call_events (call_id, event_type, data, recorded_at) VALUES (?, ?, ?, ?)",
		callID, eventType, asJSON(data), time.Now().UTC())
}

// LogLatencyMetric inserts a row into call_metrics.
func (s *SQLiteSink) LogLatencyMetric(ctx context.Context, callID, metricType string, valueMs float64) bool {
	return s.exec(ctx,
		"INSERT INTO call_metrics (call_id, metric_type, value_ms, recorded_at) VALUES (?, ?, ?, ?)",
		callID, metricType, valueMs, time.Now().UTC())
}

// LogTranscript inserts a row into transcripts.
func (s *SQLiteSink) LogTranscript(ctx context.Context, callID, role, content string) bool {
	return s.exec(ctx,
		"INSERT INTO transcripts (call_id, role, content, recorded_at) VALUES (?, ?, ?, ?)",
		callID, role, content, time.Now().UTC())
}

// LogToolExecution inserts a row into tool_executions.
func (s *SQLiteSink) LogToolExecution(ctx context.Context, callID, name string, args map[string]any, result string, success bool, latencyMs int64) bool {
	if len(result) > resultSnippetLimit {
		result = result[:resultSnippetLimit]
	}
	return s.exec(ctx,
		"INSERT INTO tool_executions (call_id, tool_name, parameters, result, success, latency_ms, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		callID, name, asJSON(args), result, boolInt(success), latencyMs, time.Now().UTC())
}

// LogCallStart inserts an active-call row.
func (s *SQLiteSink) LogCallStart(ctx context.Context, callID, phoneNumber, roomName string) bool {
	return s.exec(ctx,
		"INSERT INTO calls (call_id, phone_number, room_name, status, recorded_at) VALUES (?, ?, ?, 'active', ?)",
		callID, phoneNumber, roomName, time.Now().UTC())
}

// LogCallEnd inserts a completion row.
func (s *SQLiteSink) LogCallEnd(ctx context.Context, callID, status string, metrics map[string]any) bool {
	return s.exec(ctx,
		"INSERT INTO calls (call_id, status, metadata, recorded_at) VALUES (?, ?, ?, ?)",
		callID, status, asJSON(metrics), time.Now().UTC())
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func (s *SQLiteSink) exec(ctx context.Context, query string, args ...any) bool {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.Warn("telemetry insert failed", "error", err)
		return false
	}
	return true
}

func asJSON(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Verify SQLiteSink implements Sink at compile time.
var _ Sink = (*SQLiteSink)(nil)
