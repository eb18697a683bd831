// Package retention persists per-key correlation records over a byte
// key-value store. Each key's read-modify-write is atomic, and the latest
// record is mirrored in process so a failing backend only costs durability.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"

	"antitrigger/internal/metrics"
	"antitrigger/internal/model"
	"antitrigger/internal/storage"
)

const lockStripes = 64

type Store struct {
	kv     storage.Store
	logger *slog.Logger
	mirror *lru.Cache[string, []byte]
	locks  [lockStripes]sync.Mutex
}

func New(kv storage.Store, mirrorSize int, logger *slog.Logger) *Store {
	if mirrorSize <= 0 {
		mirrorSize = 4096
	}
	mirror, _ := lru.New[string, []byte](mirrorSize)
	return &Store{kv: kv, logger: logger, mirror: mirror}
}

// ChainBucket maps a salary category to its durable bucket.
func ChainBucket(cat model.Category) storage.Bucket {
	if cat == model.CategorySalaryLegit {
		return storage.BucketLegitChains
	}
	return storage.BucketDumpChains
}

func (s *Store) LoadChain(ctx context.Context, bucket storage.Bucket, actor string) model.ChainRecord {
	var rec model.ChainRecord
	s.load(ctx, bucket, actor, &rec)
	return rec
}

// SaveChain writes rec, deleting the key instead when rec holds nothing.
func (s *Store) SaveChain(ctx context.Context, bucket storage.Bucket, actor string, rec model.ChainRecord) error {
	if len(rec.Entries) == 0 && rec.LastAlerted == nil {
		return s.delete(ctx, bucket, actor)
	}
	return s.save(ctx, bucket, actor, rec)
}

// AppendChain loads the actor's record, appends entry, prunes it to the
// horizon and hands the pruned view to evaluate before persisting. The whole
// sequence holds the key's lock.
func (s *Store) AppendChain(ctx context.Context, bucket storage.Bucket, actor string, entry model.ChainEntry, horizon time.Duration, evaluate func(rec *model.ChainRecord)) model.ChainRecord {
	mu := s.lockFor(bucket, actor)
	mu.Lock()
	defer mu.Unlock()

	rec := s.LoadChain(ctx, bucket, actor)
	rec.Entries = append(rec.Entries, entry)
	rec = PruneChain(rec, horizon)
	if evaluate != nil {
		evaluate(&rec)
	}
	_ = s.SaveChain(ctx, bucket, actor, rec)
	return rec
}

func (s *Store) LoadSpam(ctx context.Context, key string) model.SpamRecord {
	var rec model.SpamRecord
	s.load(ctx, storage.BucketSpamHistory, key, &rec)
	return rec
}

// SpamKeys lists the keys with a durable spam record.
func (s *Store) SpamKeys(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, storage.BucketSpamHistory)
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("keys").Inc()
		s.warn("state listing failed", storage.BucketSpamHistory, "", err)
		return nil, err
	}
	return keys, nil
}

func (s *Store) SaveSpam(ctx context.Context, key string, rec model.SpamRecord) error {
	if SpamEmpty(rec) {
		return s.delete(ctx, storage.BucketSpamHistory, key)
	}
	return s.save(ctx, storage.BucketSpamHistory, key, rec)
}

// Forget drops the in-process mirror; durable records are untouched.
func (s *Store) Forget() {
	s.mirror.Purge()
}

func (s *Store) lockFor(bucket storage.Bucket, key string) *sync.Mutex {
	h := xxhash.Sum64String(string(bucket) + "/" + key)
	return &s.locks[h%lockStripes]
}

func (s *Store) load(ctx context.Context, bucket storage.Bucket, key string, into any) {
	ck := mirrorKey(bucket, key)
	data, ok := s.mirror.Get(ck)
	if !ok {
		var err error
		data, err = s.kv.Get(ctx, bucket, key)
		if err != nil {
			metrics.PersistenceErrors.WithLabelValues("load").Inc()
			s.warn("state load failed, starting empty", bucket, key, err)
			return
		}
	}
	if len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, into); err != nil {
		metrics.PersistenceErrors.WithLabelValues("decode").Inc()
		s.warn("malformed state record, starting empty", bucket, key, err)
		resetRecord(into)
		return
	}
	if !ok {
		s.mirror.Add(ck, data)
	}
}

func (s *Store) save(ctx context.Context, bucket storage.Bucket, key string, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mirror.Add(mirrorKey(bucket, key), data)
	if err := s.kv.Put(ctx, bucket, key, data); err != nil {
		metrics.PersistenceErrors.WithLabelValues("save").Inc()
		s.warn("state save failed, keeping in-memory copy", bucket, key, err)
		return err
	}
	return nil
}

func (s *Store) delete(ctx context.Context, bucket storage.Bucket, key string) error {
	// An empty mirror entry shadows a durable record the delete failed to remove.
	s.mirror.Add(mirrorKey(bucket, key), []byte{})
	if err := s.kv.Delete(ctx, bucket, key); err != nil {
		metrics.PersistenceErrors.WithLabelValues("delete").Inc()
		s.warn("state delete failed", bucket, key, err)
		return err
	}
	return nil
}

func (s *Store) warn(msg string, bucket storage.Bucket, key string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, "bucket", string(bucket), "key", key, "err", err)
	}
}

func mirrorKey(bucket storage.Bucket, key string) string {
	return string(bucket) + "/" + key
}

func resetRecord(into any) {
	switch r := into.(type) {
	case *model.ChainRecord:
		*r = model.ChainRecord{}
	case *model.SpamRecord:
		*r = model.SpamRecord{}
	}
}
