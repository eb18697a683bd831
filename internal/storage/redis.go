package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"antitrigger/internal/model"
)

const (
	redisPrefix     = "antitrigger:"
	redisAlertList  = redisPrefix + "alerts"
	redisAlertLimit = 10000
)

type redisStore struct {
	client *redis.Client
}

func NewRedis(addr, password string, db int) (Store, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisStore{client: client}, nil
}

func (s *redisStore) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

func (s *redisStore) Get(ctx context.Context, bucket Bucket, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.makeKey(bucket, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return val, nil
}

func (s *redisStore) Put(ctx context.Context, bucket Bucket, key string, value []byte) error {
	if err := s.client.Set(ctx, s.makeKey(bucket, key), value, 0).Err(); err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, bucket Bucket, key string) error {
	if err := s.client.Del(ctx, s.makeKey(bucket, key)).Err(); err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *redisStore) Keys(ctx context.Context, bucket Bucket) ([]string, error) {
	prefix := redisPrefix + bucketPrefix(bucket)
	var out []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("keys %s: %w", bucket, err)
	}
	return out, nil
}

func (s *redisStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, redisAlertList, encodeJSON(alert))
	pipe.LTrim(ctx, redisAlertList, 0, redisAlertLimit-1)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) makeKey(bucket Bucket, key string) string {
	return redisPrefix + compositeKey(bucket, key)
}
