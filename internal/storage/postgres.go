package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/antitrigger?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db, q: sqlQueries{
		get: `SELECT value FROM state WHERE bucket = $1 AND key = $2`,
		put: `INSERT INTO state (bucket, key, value, updated_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (bucket, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		del:  `DELETE FROM state WHERE bucket = $1 AND key = $2`,
		keys: `SELECT key FROM state WHERE bucket = $1`,
		alert: `INSERT INTO alerts (id, ts, kind, severity, key, actor_id, count, occurrence, alert_json)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	}}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS state (
			bucket TEXT NOT NULL,
			key TEXT NOT NULL,
			value BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (bucket, key)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			kind TEXT NOT NULL,
			severity TEXT NOT NULL,
			key TEXT NOT NULL,
			actor_id TEXT,
			count INTEGER NOT NULL,
			occurrence INTEGER NOT NULL,
			alert_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_key ON alerts(key)`,
	})
}
