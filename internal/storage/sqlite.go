package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:antitrigger.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers and keeps :memory: databases whole.
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{db: db, q: sqlQueries{
		get: `SELECT value FROM state WHERE bucket = ? AND key = ?`,
		put: `INSERT INTO state (bucket, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(bucket, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		del:  `DELETE FROM state WHERE bucket = ? AND key = ?`,
		keys: `SELECT key FROM state WHERE bucket = ?`,
		alert: `INSERT INTO alerts (id, ts, kind, severity, key, actor_id, count, occurrence, alert_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	}}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS state (
			bucket TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (bucket, key)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			kind TEXT NOT NULL,
			severity TEXT NOT NULL,
			key TEXT NOT NULL,
			actor_id TEXT,
			count INTEGER NOT NULL,
			occurrence INTEGER NOT NULL,
			alert_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_key ON alerts(key)`,
	})
}
