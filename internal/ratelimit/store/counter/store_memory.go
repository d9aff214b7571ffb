// Package counter provides fixed-window hit counters for rate limit rules.
package counter

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"tollgate/internal/ratelimit/models"
)

const (
	defaultShards        = 32
	defaultSweepInterval = time.Minute
)

// Clock returns the current time.
type Clock func() time.Time

// InMemoryStore counts hits per key in fixed windows. Keys are spread over
// independently locked shards; expired windows are swept lazily.
type InMemoryStore struct {
	shards        []*shard
	clock         Clock
	sweepInterval time.Duration
}

type shard struct {
	mu        sync.Mutex
	windows   map[string]*fixedWindow
	nextSweep time.Time
}

type fixedWindow struct {
	hits    int
	resetAt time.Time
}

type InMemoryOption func(*InMemoryStore)

func WithClock(clock Clock) InMemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithShards(n int) InMemoryOption {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.shards = make([]*shard, n)
		}
	}
}

func WithSweepInterval(d time.Duration) InMemoryOption {
	return func(s *InMemoryStore) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		shards:        make([]*shard, defaultShards),
		clock:         time.Now,
		sweepInterval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := range s.shards {
		s.shards[i] = &shard{windows: make(map[string]*fixedWindow)}
	}
	return s
}

// Increment records one hit and returns the window's hit count.
func (s *InMemoryStore) Increment(_ context.Context, key string, window time.Duration) (models.Count, error) {
	now := s.clock()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if !now.Before(sh.nextSweep) {
		sh.sweep(now)
		sh.nextSweep = now.Add(s.sweepInterval)
	}

	w, ok := sh.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &fixedWindow{resetAt: now.Add(window)}
		sh.windows[key] = w
	}
	w.hits++
	return models.Count{Hits: w.hits, ResetAt: w.resetAt}, nil
}

func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.windows, key)
	sh.mu.Unlock()
	return nil
}

// Stats reports the number of live windows in total and per shard.
func (s *InMemoryStore) Stats() (total int, perShard []int) {
	perShard = make([]int, len(s.shards))
	for i, sh := range s.shards {
		sh.mu.Lock()
		perShard[i] = len(sh.windows)
		sh.mu.Unlock()
		total += perShard[i]
	}
	return total, perShard
}

func (s *InMemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (sh *shard) sweep(now time.Time) {
	for k, w := range sh.windows {
		if !now.Before(w.resetAt) {
			delete(sh.windows, k)
		}
	}
}
