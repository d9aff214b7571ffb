package counter

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func BenchmarkIncrement(b *testing.B) {
	store := NewInMemory()
	ctx := context.Background()

	for b.Loop() {
		_, _ = store.Increment(ctx, "bench-key", time.Minute)
	}
}

func BenchmarkIncrement_Parallel(b *testing.B) {
	store := NewInMemory()
	ctx := context.Background()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = store.Increment(ctx, "bench-key", time.Minute)
		}
	})
}

// High key cardinality exercises shard spread rather than a single lock.
func BenchmarkIncrement_HighCardinality_Parallel(b *testing.B) {
	store := NewInMemory()
	ctx := context.Background()
	var n atomic.Int64

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := n.Add(1)
			_, _ = store.Increment(ctx, fmt.Sprintf("rl:app:r0:10.0.%d.%d", (i/256)%256, i%256), time.Minute)
		}
	})

	total, perShard := store.Stats()
	lo, hi := perShard[0], perShard[0]
	for _, c := range perShard {
		lo, hi = min(lo, c), max(hi, c)
	}
	b.Logf("windows=%d shard min=%d max=%d", total, lo, hi)
}
