package progress

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	defaultMemoryTTL      = 30 * time.Minute
	defaultMemoryCapacity = 10000
)

// Memory is a process-local Tracker. Entries expire ttl after their last
// update, and once capacity is reached the least recently used entry is
// evicted.
type Memory struct {
	// mu makes the read-merge-write in Set atomic.
	mu    sync.Mutex
	cache *ttlcache.Cache[string, Snapshot]
	once  sync.Once
}

// NewMemory starts a Memory tracker and its expiry loop. Call Close to
// stop the loop.
func NewMemory(ttl time.Duration, capacity int) *Memory {
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	cache := ttlcache.New[string, Snapshot](
		ttlcache.WithTTL[string, Snapshot](ttl),
		ttlcache.WithCapacity[string, Snapshot](uint64(capacity)),
		// Reads must not keep an abandoned upload alive.
		ttlcache.WithDisableTouchOnHit[string, Snapshot](),
	)
	go cache.Start()
	return &Memory{cache: cache}
}

func (m *Memory) Set(_ context.Context, id string, stage Stage, percent float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	percent = clamp(percent)
	if cur := m.cache.Get(id); cur != nil && cur.Value().Percent > percent {
		percent = cur.Value().Percent
	}
	m.cache.Set(id, Snapshot{Stage: stage, Percent: percent}, ttlcache.DefaultTTL)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Snapshot, error) {
	item := m.cache.Get(id)
	if item == nil {
		return Unknown, nil
	}
	return item.Value(), nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	return m.cache.Len()
}

func (m *Memory) Close() error {
	m.once.Do(m.cache.Stop)
	return nil
}
