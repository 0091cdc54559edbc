package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps snapshots in Redis. Entries expire after ttl, so a
// snapshot older than the recovery window is never seen again.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient parses url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, Key(snap.TestID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save progress for test %d: %w", snap.TestID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, testID int) (*Snapshot, error) {
	data, err := s.client.Get(ctx, Key(testID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress for test %d: %w", testID, err)
	}
	return decodeSnapshot(data)
}

func (s *RedisStore) Clear(ctx context.Context, testID int) error {
	if err := s.client.Del(ctx, Key(testID)).Err(); err != nil {
		return fmt.Errorf("clear progress for test %d: %w", testID, err)
	}
	return nil
}

func (s *RedisStore) SetRedirect(ctx context.Context, path string) error {
	if err := s.client.Set(ctx, RedirectKey, path, s.ttl).Err(); err != nil {
		return fmt.Errorf("set redirect: %w", err)
	}
	return nil
}

func (s *RedisStore) Redirect(ctx context.Context) (string, error) {
	path, err := s.client.Get(ctx, RedirectKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read redirect: %w", err)
	}
	return path, nil
}

func (s *RedisStore) ClearRedirect(ctx context.Context) error {
	if err := s.client.Del(ctx, RedirectKey).Err(); err != nil {
		return fmt.Errorf("clear redirect: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		s.logger.Warn("close redis client", zap.Error(err))
		return err
	}
	return nil
}
