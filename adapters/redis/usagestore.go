// Package redis provides a Redis-backed usage counter.
// Counters live in one hash per account (field = month key) and are
// incremented with HINCRBY, which Redis applies atomically. Quota
// reservations run as Lua scripts so the check and the increment cannot
// interleave with another client.
package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/RayBen445/ChatBot/ports"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces usage hashes.
const DefaultKeyPrefix = "chatbot:usage:"

// reserveScript increments KEYS[1][ARGV[1]] unless it already reached
// ARGV[2]. Returns {count, reserved}.
var reserveScript = goredis.NewScript(`
local n = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if n >= tonumber(ARGV[2]) then
  return {n, 0}
end
return {redis.call('HINCRBY', KEYS[1], ARGV[1], 1), 1}
`)

// releaseScript decrements KEYS[1][ARGV[1]] if it is positive.
var releaseScript = goredis.NewScript(`
local n = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if n > 0 then
  return redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
end
return n
`)

// Options configures the Redis connection.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// UsageStore implements ports.UsageStore on Redis hashes.
type UsageStore struct {
	client *goredis.Client
	prefix string
}

// NewUsageStore connects to Redis and verifies the connection.
func NewUsageStore(ctx context.Context, opts Options) (*UsageStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return NewUsageStoreWithClient(client, opts.KeyPrefix), nil
}

// NewUsageStoreWithClient wraps an existing client.
func NewUsageStoreWithClient(client *goredis.Client, prefix string) *UsageStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &UsageStore{client: client, prefix: prefix}
}

func (s *UsageStore) key(uid string) string {
	return s.prefix + uid
}

// Counts returns every month counter for uid.
func (s *UsageStore) Counts(ctx context.Context, uid string) (map[string]int64, error) {
	data, err := s.client.HGetAll(ctx, s.key(uid)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall usage: %w", err)
	}
	counts := make(map[string]int64, len(data))
	for month, raw := range data {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse usage %s/%s: %w", uid, month, err)
		}
		counts[month] = n
	}
	return counts, nil
}

// Increment adds one to the month counter and returns the new value.
func (s *UsageStore) Increment(ctx context.Context, uid, monthKey string) (int64, error) {
	n, err := s.client.HIncrBy(ctx, s.key(uid), monthKey, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("hincrby usage: %w", err)
	}
	return n, nil
}

// Reserve increments the month counter if it is below limit.
func (s *UsageStore) Reserve(ctx context.Context, uid, monthKey string, limit int64) (int64, bool, error) {
	res, err := reserveScript.Run(ctx, s.client, []string{s.key(uid)}, monthKey, limit).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("reserve usage: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("reserve usage: unexpected reply %v", res)
	}
	return res[0], res[1] == 1, nil
}

// Release decrements the month counter, stopping at zero.
func (s *UsageStore) Release(ctx context.Context, uid, monthKey string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.key(uid)}, monthKey).Err(); err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	return nil
}

// Reset zeroes the month counter.
func (s *UsageStore) Reset(ctx context.Context, uid, monthKey string) error {
	if err := s.client.HSet(ctx, s.key(uid), monthKey, 0).Err(); err != nil {
		return fmt.Errorf("hset usage: %w", err)
	}
	return nil
}

// Ping checks Redis is reachable.
func (s *UsageStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *UsageStore) Close() error {
	return s.client.Close()
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
