package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"antitrigger/internal/config"
	"antitrigger/internal/model"
)

// Bucket separates the logically independent key spaces.
type Bucket string

const (
	BucketDumpChains  Bucket = "dump_chains"
	BucketLegitChains Bucket = "legit_chains"
	BucketSpamHistory Bucket = "spam_history"
)

// Store is a durable byte key-value surface. Get returns nil, nil for a
// missing key.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	Get(ctx context.Context, bucket Bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket Bucket, key string, value []byte) error
	Delete(ctx context.Context, bucket Bucket, key string) error
	// Keys lists every key held in bucket, in no particular order.
	Keys(ctx context.Context, bucket Bucket) ([]string, error)
	SaveAlert(ctx context.Context, alert model.Alert) error
}

// NewStore opens the configured driver. A disabled storage section yields
// an in-memory store, so correlation still works without durability.
func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return NewMemory(), nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	case "badger":
		return NewBadger(cfg.DSN)
	case "redis":
		return NewRedis(cfg.DSN, cfg.Password, cfg.DB)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

type sqlQueries struct {
	get   string
	put   string
	del   string
	keys  string
	alert string
}

type baseStore struct {
	db *sql.DB
	q  sqlQueries
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) Get(ctx context.Context, bucket Bucket, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, b.q.get, string(bucket), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return value, nil
}

func (b *baseStore) Put(ctx context.Context, bucket Bucket, key string, value []byte) error {
	if _, err := b.db.ExecContext(ctx, b.q.put, string(bucket), key, value, nowUTC()); err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (b *baseStore) Delete(ctx context.Context, bucket Bucket, key string) error {
	if _, err := b.db.ExecContext(ctx, b.q.del, string(bucket), key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (b *baseStore) Keys(ctx context.Context, bucket Bucket) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, b.q.keys, string(bucket))
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", bucket, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("keys %s: %w", bucket, err)
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

func (b *baseStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	_, err := b.db.ExecContext(ctx, b.q.alert,
		alert.ID,
		alert.Timestamp.UTC(),
		string(alert.Kind),
		alert.Severity,
		alert.Key,
		alert.ActorID,
		alert.Count,
		alert.Occurrence,
		encodeJSON(alert),
	)
	return err
}

func (b *baseStore) exec(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func compositeKey(bucket Bucket, key string) string {
	return string(bucket) + "/" + key
}

func bucketPrefix(bucket Bucket) string {
	return string(bucket) + "/"
}
