package store

import (
	"context"
	"sync"
	"time"

	"tollgate/internal/idempotency/models"
	"tollgate/pkg/platform/sentinel"
)

// Clock abstracts time for deterministic expiry in tests.
type Clock func() time.Time

type recordKey struct {
	appID     string
	requestID string
}

// MemoryStore keeps records in process. Expired records are replaced on the
// next claim and dropped by Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	records map[recordKey]time.Time
	clock   Clock
}

type MemoryOption func(*MemoryStore)

func WithClock(clock Clock) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewMemory(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[recordKey]time.Time),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Kind() string { return models.KindMemory }

func (s *MemoryStore) Create(_ context.Context, rec models.Record) error {
	k := recordKey{appID: rec.AppID, requestID: rec.RequestID}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if expireAt, ok := s.records[k]; ok && now.Before(expireAt) {
		return sentinel.ErrConflict
	}
	s.records[k] = rec.ExpireAt
	return nil
}

// Sweep removes expired records and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, expireAt := range s.records {
		if !now.Before(expireAt) {
			delete(s.records, k)
			n++
		}
	}
	return n
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// StartCleanup sweeps on every tick until ctx is done.
func (s *MemoryStore) StartCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
