package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/webforge/sla-sentinel/internal/telemetry"
)

// EventStorage persists operational events emitted by the telemetry event
// emitter. It shares the sample store's database.
type EventStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEventStorage creates the event table on the sample store's database.
func NewEventStorage(store *SQLiteStore, logger *zap.Logger) (*EventStorage, error) {
	schema := `CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		workflow TEXT,
		summary TEXT NOT NULL,
		details TEXT,
		correlation_id TEXT,
		severity TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`
	if _, err := store.db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}
	if _, err := store.db.Exec(`CREATE INDEX IF NOT EXISTS idx_events_lookup ON events (type, workflow, created_at)`); err != nil {
		return nil, fmt.Errorf("failed to create events index: %w", err)
	}

	return &EventStorage{db: store.db, logger: logger}, nil
}

// StoreEvent persists one event.
func (e *EventStorage) StoreEvent(ctx context.Context, event telemetry.Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode event details: %w", err)
	}

	_, err = e.db.ExecContext(ctx,
		`INSERT INTO events (id, type, workflow, summary, details, correlation_id, severity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, string(event.Type), event.Workflow, event.Summary,
		string(details), event.CorrelationID, string(event.Severity),
		event.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// GetEvents returns events matching the filter, newest first.
func (e *EventStorage) GetEvents(ctx context.Context, filter telemetry.EventFilter) ([]telemetry.Event, error) {
	var conds []string
	var args []interface{}

	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Workflow != "" {
		conds = append(conds, "workflow = ?")
		args = append(args, filter.Workflow)
	}
	if filter.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if !filter.StartTime.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.StartTime.UnixNano())
	}
	if !filter.EndTime.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, filter.EndTime.UnixNano())
	}

	query := "SELECT id, type, workflow, summary, details, correlation_id, severity, created_at FROM events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []telemetry.Event
	for rows.Next() {
		var (
			event      telemetry.Event
			eventType  string
			severity   string
			detailsRaw string
			createdAt  int64
		)
		if err := rows.Scan(&event.ID, &eventType, &event.Workflow, &event.Summary,
			&detailsRaw, &event.CorrelationID, &severity, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Type = telemetry.EventType(eventType)
		event.Severity = telemetry.EventSeverity(severity)
		event.Timestamp = time.Unix(0, createdAt)
		if detailsRaw != "" {
			if err := json.Unmarshal([]byte(detailsRaw), &event.Details); err != nil {
				e.logger.Warn("Failed to decode event details",
					zap.String("event_id", event.ID),
					zap.Error(err))
			}
		}

		events = append(events, event)
	}
	return events, rows.Err()
}
