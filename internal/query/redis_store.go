package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dev365-portal/internal/redis"
)

// RedisStore keeps entries in Redis so several portal instances share one cache.
// Entries expire after ttl even when GC never runs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store on client
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, found, err := s.client.CacheGet(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &e, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, e *Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.CacheSet(ctx, key, raw, s.ttl)
}

// markInvalidatedAttempts bounds retries when writers keep racing the mark
const markInvalidatedAttempts = 5

// Touch updates the access time and renews the ttl. When the entry changes
// between read and write the touch is dropped, so a concurrent invalidation
// is never overwritten.
func (s *RedisStore) Touch(ctx context.Context, key string, at time.Time) error {
	err := s.client.CacheUpdate(ctx, key, s.ttl, func(raw []byte) ([]byte, error) {
		return updateEntry(key, raw, func(e *Entry) { e.LastAccess = at })
	})
	if errors.Is(err, redis.ErrCacheConflict) {
		return nil
	}
	return err
}

// MarkInvalidated sets the invalidated flag, retrying when another writer
// changed the entry in between
func (s *RedisStore) MarkInvalidated(ctx context.Context, key string) error {
	var err error
	for i := 0; i < markInvalidatedAttempts; i++ {
		err = s.client.CacheUpdate(ctx, key, s.ttl, func(raw []byte) ([]byte, error) {
			return updateEntry(key, raw, func(e *Entry) { e.Invalidated = true })
		})
		if !errors.Is(err, redis.ErrCacheConflict) {
			return err
		}
	}
	return fmt.Errorf("mark cache entry %s invalidated: %w", key, err)
}

func updateEntry(key string, raw []byte, change func(*Entry)) ([]byte, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	change(&e)
	return json.Marshal(&e)
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	return s.client.CacheDelete(ctx, keys...)
}

func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.client.CacheKeys(ctx, prefix)
}

func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := s.client.CacheClear(ctx)
	return err
}
