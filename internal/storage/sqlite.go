// Package storage implements the durable stores behind the prediction
// engine: an SQLite-backed historical sample store with an append-only audit
// trail, and a filesystem model artifact store with atomic versioned writes.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/types"
	"go.uber.org/zap"
)

// SQLiteStore is the SQLite-backed historical sample store and audit sink.
// It satisfies types.SampleStore and types.AuditSink.
type SQLiteStore struct {
	config config.StorageConfig
	logger *zap.Logger
	db     *sql.DB
	mu     sync.RWMutex

	running bool

	stmtCache map[string]*sql.Stmt
	stmtMu    sync.RWMutex
}

// NewSQLiteStore opens (or creates) the database and initializes the schema.
func NewSQLiteStore(cfg config.StorageConfig, logger *zap.Logger) (*SQLiteStore, error) {
	if cfg.DatabasePath != ":memory:" {
		dir := filepath.Dir(cfg.DatabasePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=10000&_synchronous=NORMAL", cfg.DatabasePath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.DatabasePath == ":memory:" {
		// The in-memory database is per-connection; a pool of one keeps
		// every statement on the same database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(2 * time.Hour)
	}

	s := &SQLiteStore{
		config:    cfg,
		logger:    logger,
		db:        db,
		stmtCache: make(map[string]*sql.Stmt),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workflow_id TEXT NOT NULL,
			violation_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			value REAL NOT NULL,
			context TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_lookup
			ON samples (workflow_id, violation_type, timestamp)`,
		`CREATE TABLE IF NOT EXISTS audit_predictions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workflow_id TEXT NOT NULL,
			violation_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_scaling (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_type TEXT NOT NULL,
			action TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_tests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			test_id TEXT NOT NULL,
			result TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// Start marks the store as running.
func (s *SQLiteStore) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("storage is already running")
	}
	s.running = true

	s.logger.Info("Starting sample store",
		zap.String("database_path", s.config.DatabasePath))
	return nil
}

// Stop closes the store and its prepared statements.
func (s *SQLiteStore) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping sample store")

	s.stmtMu.Lock()
	for _, stmt := range s.stmtCache {
		stmt.Close()
	}
	s.stmtCache = make(map[string]*sql.Stmt)
	s.stmtMu.Unlock()

	return s.db.Close()
}

// getOrCreateStmt returns a cached prepared statement or creates a new one.
func (s *SQLiteStore) getOrCreateStmt(query string) (*sql.Stmt, error) {
	s.stmtMu.RLock()
	if stmt, exists := s.stmtCache[query]; exists {
		s.stmtMu.RUnlock()
		return stmt, nil
	}
	s.stmtMu.RUnlock()

	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()

	if stmt, exists := s.stmtCache[query]; exists {
		return stmt, nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	s.stmtCache[query] = stmt
	return stmt, nil
}

// InsertSamples persists a batch of performance samples for a workflow and
// violation type in a single transaction.
func (s *SQLiteStore) InsertSamples(ctx context.Context, workflowID string, violationType types.ViolationType, samples []types.PerformanceSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO samples (workflow_id, violation_type, timestamp, value, context) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, sample := range samples {
		var contextJSON []byte
		if sample.Context != nil {
			contextJSON, err = json.Marshal(sample.Context)
			if err != nil {
				s.logger.Error("Failed to marshal sample context",
					zap.String("workflow_id", workflowID),
					zap.Error(err))
				continue
			}
		}

		if _, err := stmt.ExecContext(ctx,
			workflowID,
			string(violationType),
			sample.Timestamp.Unix(),
			sample.Value,
			string(contextJSON),
		); err != nil {
			s.logger.Error("Failed to insert sample",
				zap.String("workflow_id", workflowID),
				zap.Error(err))
			continue
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("Stored sample batch",
		zap.String("workflow_id", workflowID),
		zap.String("violation_type", string(violationType)),
		zap.Int("inserted", inserted))
	return nil
}

// QuerySamples returns samples at or after since, ordered by timestamp
// ascending.
func (s *SQLiteStore) QuerySamples(ctx context.Context, workflowID string, violationType types.ViolationType, since time.Time) ([]types.PerformanceSample, error) {
	stmt, err := s.getOrCreateStmt(
		`SELECT timestamp, value, context FROM samples
		 WHERE workflow_id = ? AND violation_type = ? AND timestamp >= ?
		 ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	rows, err := stmt.QueryContext(ctx, workflowID, string(violationType), since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var samples []types.PerformanceSample
	for rows.Next() {
		var ts int64
		var value float64
		var contextJSON sql.NullString

		if err := rows.Scan(&ts, &value, &contextJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		sample := types.PerformanceSample{
			Timestamp: time.Unix(ts, 0),
			Value:     value,
		}
		if contextJSON.Valid && contextJSON.String != "" {
			if err := json.Unmarshal([]byte(contextJSON.String), &sample.Context); err != nil {
				s.logger.Warn("Skipping corrupt sample context",
					zap.String("workflow_id", workflowID),
					zap.Error(err))
			}
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return samples, nil
}

// QueryServiceSamples returns samples across all workflows for one
// violation type, ordered by timestamp ascending. Used by threshold
// optimization, which reasons about the service-wide distribution.
func (s *SQLiteStore) QueryServiceSamples(ctx context.Context, violationType types.ViolationType, since time.Time) ([]types.PerformanceSample, error) {
	stmt, err := s.getOrCreateStmt(
		`SELECT timestamp, value, context FROM samples
		 WHERE violation_type = ? AND timestamp >= ?
		 ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	rows, err := stmt.QueryContext(ctx, string(violationType), since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var samples []types.PerformanceSample
	for rows.Next() {
		var ts int64
		var value float64
		var contextJSON sql.NullString

		if err := rows.Scan(&ts, &value, &contextJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		sample := types.PerformanceSample{
			Timestamp: time.Unix(ts, 0),
			Value:     value,
		}
		if contextJSON.Valid && contextJSON.String != "" {
			if err := json.Unmarshal([]byte(contextJSON.String), &sample.Context); err != nil {
				s.logger.Warn("Skipping corrupt sample context",
					zap.String("violation_type", string(violationType)),
					zap.Error(err))
			}
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return samples, nil
}

// CountViolations returns the number of samples exceeding threshold since
// the cutoff.
func (s *SQLiteStore) CountViolations(ctx context.Context, workflowID string, violationType types.ViolationType, threshold float64, since time.Time) (int, error) {
	stmt, err := s.getOrCreateStmt(
		`SELECT COUNT(*) FROM samples
		 WHERE workflow_id = ? AND violation_type = ? AND timestamp >= ? AND value > ?`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare query: %w", err)
	}

	var count int
	if err := stmt.QueryRowContext(ctx, workflowID, string(violationType), since.Unix(), threshold).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count violations: %w", err)
	}
	return count, nil
}

// RecordPrediction appends an emitted prediction to the audit trail.
func (s *SQLiteStore) RecordPrediction(ctx context.Context, workflowID string, prediction types.SLAPrediction) error {
	payload, err := json.Marshal(prediction)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}

	stmt, err := s.getOrCreateStmt(
		`INSERT INTO audit_predictions (workflow_id, violation_type, payload, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, workflowID, string(prediction.ViolationType), string(payload), time.Now().Unix())
	return err
}

// RecordScalingDecision appends an executed scaling decision to the audit
// trail.
func (s *SQLiteStore) RecordScalingDecision(ctx context.Context, decision types.ScalingDecision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to marshal scaling decision: %w", err)
	}

	stmt, err := s.getOrCreateStmt(
		`INSERT INTO audit_scaling (resource_type, action, payload, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, string(decision.ResourceType), string(decision.Action), string(payload), time.Now().Unix())
	return err
}

// RecordTestResult appends a completed experiment result to the audit trail.
func (s *SQLiteStore) RecordTestResult(ctx context.Context, testID string, result []byte) error {
	stmt, err := s.getOrCreateStmt(
		`INSERT INTO audit_tests (test_id, result, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, testID, string(result), time.Now().Unix())
	return err
}

// AuditCounts returns row counts for each audit table, for diagnostics.
func (s *SQLiteStore) AuditCounts(ctx context.Context) (predictions, scaling, tests int, err error) {
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"audit_predictions", &predictions},
		{"audit_scaling", &scaling},
		{"audit_tests", &tests},
	} {
		// Table names are fixed; no user input reaches this query.
		if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return 0, 0, 0, fmt.Errorf("failed to count %s: %w", q.table, err)
		}
	}
	return predictions, scaling, tests, nil
}

// Cleanup removes expired samples and audit rows according to retention
// policies. Intended to run on a schedule.
func (s *SQLiteStore) Cleanup(ctx context.Context) error {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		return fmt.Errorf("storage is not running")
	}

	now := time.Now()

	sampleCutoff := now.Add(-s.config.Retention.Samples)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM samples WHERE timestamp < ?", sampleCutoff.Unix())
	if err != nil {
		return fmt.Errorf("failed to cleanup samples: %w", err)
	}
	if rowsAffected, err := result.RowsAffected(); err == nil && rowsAffected > 0 {
		s.logger.Info("Cleaned up samples",
			zap.Int64("rows_deleted", rowsAffected),
			zap.Time("cutoff", sampleCutoff))
	}

	auditCutoff := now.Add(-s.config.Retention.Audit)
	for _, table := range []string{"audit_predictions", "audit_scaling", "audit_tests"} {
		result, err := s.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE created_at < ?", auditCutoff.Unix())
		if err != nil {
			return fmt.Errorf("failed to cleanup %s: %w", table, err)
		}
		if rowsAffected, err := result.RowsAffected(); err == nil && rowsAffected > 0 {
			s.logger.Info("Cleaned up audit rows",
				zap.String("table", table),
				zap.Int64("rows_deleted", rowsAffected))
		}
	}

	return nil
}

// ensure interface compliance
var (
	_ types.SampleStore = (*SQLiteStore)(nil)
	_ types.AuditSink   = (*SQLiteStore)(nil)
)
