package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"antitrigger/internal/model"
)

const (
	badgerAlertPrefix = "alerts/"
	badgerAlertTTL    = 30 * 24 * time.Hour
)

type badgerStore struct {
	db *badger.DB
}

// NewBadger opens a badger directory. The special path ":memory:" keeps
// everything in RAM.
func NewBadger(path string) (Store, error) {
	path = strings.TrimSpace(path)
	var opts badger.Options
	switch path {
	case ":memory:":
		opts = badger.DefaultOptions("").WithInMemory(true)
	case "":
		opts = badger.DefaultOptions("antitrigger-state")
	default:
		opts = badger.DefaultOptions(path)
	}
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &badgerStore{db: db}, nil
}

func (s *badgerStore) Init(context.Context) error {
	return nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

func (s *badgerStore) Get(_ context.Context, bucket Bucket, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(compositeKey(bucket, key)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return out, nil
}

func (s *badgerStore) Put(_ context.Context, bucket Bucket, key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(compositeKey(bucket, key)), value)
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *badgerStore) Delete(_ context.Context, bucket Bucket, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(compositeKey(bucket, key)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *badgerStore) Keys(_ context.Context, bucket Bucket) ([]string, error) {
	prefix := []byte(bucketPrefix(bucket))
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", bucket, err)
	}
	return out, nil
}

func (s *badgerStore) SaveAlert(_ context.Context, alert model.Alert) error {
	key := badgerAlertPrefix + alert.Timestamp.UTC().Format(time.RFC3339Nano) + "/" + alert.ID
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), []byte(encodeJSON(alert))).WithTTL(badgerAlertTTL)
		return txn.SetEntry(e)
	})
}
