package memory

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/RayBen445/ChatBot/ports"
)

// usageShard is a single shard of the usage store.
type usageShard struct {
	mu     sync.Mutex
	counts map[string]map[string]int64 // uid -> month key -> count
}

// UsageStore is a sharded in-memory implementation of ports.UsageStore.
// Each increment happens under its shard's mutex, so concurrent
// increments for the same uid never lose updates.
type UsageStore struct {
	shards []*usageShard
}

// NewUsageStore creates a usage store with numShards shards (default 32).
func NewUsageStore(numShards int) *UsageStore {
	if numShards <= 0 {
		numShards = 32
	}
	s := &UsageStore{shards: make([]*usageShard, numShards)}
	for i := range s.shards {
		s.shards[i] = &usageShard{counts: make(map[string]map[string]int64)}
	}
	return s
}

// getShard returns the shard for a uid using consistent hashing.
func (s *UsageStore) getShard(uid string) *usageShard {
	h := fnv.New32a()
	h.Write([]byte(uid))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Counts returns a copy of every counter for uid.
func (s *UsageStore) Counts(ctx context.Context, uid string) (map[string]int64, error) {
	sh := s.getShard(uid)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	out := make(map[string]int64, len(sh.counts[uid]))
	for k, v := range sh.counts[uid] {
		out[k] = v
	}
	return out, nil
}

// Increment adds one to the month counter and returns the new value.
func (s *UsageStore) Increment(ctx context.Context, uid, monthKey string) (int64, error) {
	sh := s.getShard(uid)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	m := sh.counts[uid]
	if m == nil {
		m = make(map[string]int64)
		sh.counts[uid] = m
	}
	m[monthKey]++
	return m[monthKey], nil
}

// Reserve increments the month counter if it is below limit.
func (s *UsageStore) Reserve(ctx context.Context, uid, monthKey string, limit int64) (int64, bool, error) {
	sh := s.getShard(uid)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	m := sh.counts[uid]
	if m[monthKey] >= limit {
		return m[monthKey], false, nil
	}
	if m == nil {
		m = make(map[string]int64)
		sh.counts[uid] = m
	}
	m[monthKey]++
	return m[monthKey], true, nil
}

// Release decrements the month counter, stopping at zero.
func (s *UsageStore) Release(ctx context.Context, uid, monthKey string) error {
	sh := s.getShard(uid)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if m := sh.counts[uid]; m[monthKey] > 0 {
		m[monthKey]--
	}
	return nil
}

// Reset zeroes the month counter.
func (s *UsageStore) Reset(ctx context.Context, uid, monthKey string) error {
	sh := s.getShard(uid)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	m := sh.counts[uid]
	if m == nil {
		m = make(map[string]int64)
		sh.counts[uid] = m
	}
	m[monthKey] = 0
	return nil
}

// Seed sets a counter directly (for tests and fixtures).
func (s *UsageStore) Seed(uid, monthKey string, count int64) {
	sh := s.getShard(uid)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.counts[uid] == nil {
		sh.counts[uid] = make(map[string]int64)
	}
	sh.counts[uid][monthKey] = count
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
