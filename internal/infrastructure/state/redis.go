package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"AlertEnricher/internal/domain"
	"AlertEnricher/internal/ports"
)

// RedisStore keeps the checkpoint in a string key and pending ids in a set,
// so several hosts can share one view of progress.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ ports.StateStore = (*RedisStore)(nil)

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "alertenricher"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// OpenRedis connects and verifies the server answers.
func OpenRedis(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisStore(client, prefix), nil
}

func (s *RedisStore) checkpointKey() string { return s.prefix + ":checkpoint" }
func (s *RedisStore) pendingKey() string { return s.prefix + ":pending" }

func (s *RedisStore) Read(ctx context.Context) (int64, error) {
	raw, err := s.client.Get(ctx, s.checkpointKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	return parseCheckpoint(raw), nil
}

func (s *RedisStore) Write(ctx context.Context, value int64) error {
	if err := s.client.Set(ctx, s.checkpointKey(), strconv.FormatInt(value, 10), 0).Err(); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) Enqueue(ctx context.Context, key string) error {
	if err := s.client.SAdd(ctx, s.pendingKey(), key).Err(); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.SRem(ctx, s.pendingKey(), key).Err(); err != nil {
		return fmt.Errorf("remove marker: %w", err)
	}
	return nil
}

func (s *RedisStore) Pending(ctx context.Context) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.pendingKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	keys := make([]string, 0, len(members))
	for _, m := range members {
		if _, ok := domain.KeySeq(m); !ok {
			continue
		}
		keys = append(keys, m)
	}
	domain.SortKeys(keys)
	return keys, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
