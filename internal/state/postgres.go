package state

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the StateStore backing used in production: a
// pgxpool.Pool wrapped by a thin struct with one method per operation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// migrate creates the four logical tables idempotently, preserving
// existing data across restarts.
func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS probe_state (
			probe_id TEXT PRIMARY KEY,
			probe_json JSONB NOT NULL DEFAULT '{}',
			rule_json JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sent_alerts (
			alert_id TEXT PRIMARY KEY,
			probe_id TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			sent_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS sent_alerts_sent_at_idx ON sent_alerts (sent_at)`,
		`CREATE TABLE IF NOT EXISTS cooldowns (
			key TEXT PRIMARY KEY,
			last_sent_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS run_history (
			id BIGSERIAL PRIMARY KEY,
			probe_id TEXT NOT NULL,
			status TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS run_history_created_at_idx ON run_history (created_at)`,
		`CREATE INDEX IF NOT EXISTS run_history_probe_id_idx ON run_history (probe_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) LoadProbeState(ctx context.Context, probeID string) (ProbeState, error) {
	row := s.pool.QueryRow(ctx, `SELECT probe_json, rule_json FROM probe_state WHERE probe_id=$1`, probeID)
	var probeJSON, ruleJSON []byte
	if err := row.Scan(&probeJSON, &ruleJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NewProbeState(), nil
		}
		return ProbeState{}, err
	}
	return unmarshalState(probeJSON, ruleJSON)
}

func (s *PostgresStore) SaveProbeState(ctx context.Context, probeID string, st ProbeState) error {
	probeJSON, ruleJSON, err := marshalState(st)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO probe_state (probe_id, probe_json, rule_json, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (probe_id) DO UPDATE
			SET probe_json = EXCLUDED.probe_json,
			    rule_json = EXCLUDED.rule_json,
			    updated_at = now()`,
		probeID, probeJSON, ruleJSON)
	return err
}

func (s *PostgresStore) IsAlertSent(ctx context.Context, alertID string, ttl time.Duration) (bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT sent_at FROM sent_alerts WHERE alert_id=$1`, alertID)
	var sentAt time.Time
	if err := row.Scan(&sentAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if ttl <= 0 {
		return true, nil
	}
	return time.Since(sentAt) < ttl, nil
}

func (s *PostgresStore) RecordAlert(ctx context.Context, alertID, probeID, ruleID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sent_alerts (alert_id, probe_id, rule_id, sent_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (alert_id) DO NOTHING`,
		alertID, probeID, ruleID)
	return err
}

func (s *PostgresStore) IsInCooldown(ctx context.Context, key string, window time.Duration) (bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT last_sent_at FROM cooldowns WHERE key=$1`, key)
	var lastSentAt time.Time
	if err := row.Scan(&lastSentAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return time.Since(lastSentAt) < window, nil
}

func (s *PostgresStore) RecordCooldown(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cooldowns (key, last_sent_at)
		VALUES ($1, now())
		ON CONFLICT (key) DO UPDATE SET last_sent_at = now()`,
		key)
	return err
}

func (s *PostgresStore) RecordRun(ctx context.Context, probeID string, status RunStatus, durationMs int64, errorMessage string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_history (probe_id, status, duration_ms, error_message, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		probeID, string(status), durationMs, nullableString(errorMessage))
	return err
}

func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, probe_id, status, duration_ms, COALESCE(error_message, ''), created_at
		FROM run_history ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []RunRecord{}
	for rows.Next() {
		var rec RunRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.ProbeID, &status, &rec.DurationMs, &rec.ErrorMessage, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Status = RunStatus(status)
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (s *PostgresStore) RecentAlerts(ctx context.Context, limit int) ([]DedupRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT alert_id, probe_id, rule_id, sent_at
		FROM sent_alerts ORDER BY sent_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []DedupRecord{}
	for rows.Next() {
		var rec DedupRecord
		if err := rows.Scan(&rec.AlertID, &rec.ProbeID, &rec.RuleID, &rec.SentAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
