// Package cache de-dupes in-flight seed lists across overlapping scheduled
// runs of the same pipeline, using redis as a short-lived lock/marker store
// so a slow clan_sync run doesn't double-queue the same ids if the next
// cron fire lands before it finishes.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// SeedLock guards a pipeline's seed-list build against concurrent overlap.
type SeedLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSeedLock returns a SeedLock backed by a redis client at addr. An empty
// addr disables locking (Acquire always succeeds, Release is a no-op) so
// the cache is optional infrastructure, not a hard dependency.
func NewSeedLock(addr string, ttl time.Duration) *SeedLock {
	if addr == "" {
		return &SeedLock{ttl: ttl}
	}
	return &SeedLock{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// Acquire attempts to take the lock for task, returning true if acquired
// (or if locking is disabled).
func (s *SeedLock) Acquire(ctx context.Context, task string) (bool, error) {
	if s.client == nil {
		return true, nil
	}
	key := lockKey(task)
	ok, err := s.client.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: acquire lock for %s: %w", task, err)
	}
	return ok, nil
}

// Release drops the lock for task so the next scheduled run can proceed
// immediately rather than waiting out the TTL.
func (s *SeedLock) Release(ctx context.Context, task string) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Del(ctx, lockKey(task)).Err(); err != nil {
		return fmt.Errorf("cache: release lock for %s: %w", task, err)
	}
	return nil
}

func lockKey(task string) string {
	return "pcrdb_collector:seedlock:" + task
}
