package xfuse

import (
	"context"
	"testing"
	"time"
)

// ============================================================================
// Breaker 创建基准测试
// ============================================================================

func BenchmarkNewBreaker_Default(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		brk, _ := NewBreaker("bench", Policy{})
		brk.Close()
	}
}

func BenchmarkNewBreaker_WithCache(b *testing.B) {
	policy := Policy{Cache: true, CacheTTL: time.Minute}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		brk, _ := NewBreaker("bench", policy)
		brk.Close()
	}
}

// ============================================================================
// Execute 基准测试
// ============================================================================

func BenchmarkBreaker_Execute_Success(b *testing.B) {
	brk, _ := NewBreaker("bench", Policy{Timeout: NoTimeout})
	defer brk.Close()
	ctx := context.Background()
	fn := func(ctx context.Context, _ ...any) (any, error) { return nil, nil }

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = brk.Execute(ctx, fn)
	}
}

func BenchmarkBreaker_Execute_OpenFastFail(b *testing.B) {
	brk, _ := NewBreaker("bench", Policy{
		Timeout:         NoTimeout,
		VolumeThreshold: 1,
		ResetTimeout:    time.Hour,
	})
	defer brk.Close()
	ctx := context.Background()

	_, _ = brk.Execute(ctx, func(ctx context.Context, _ ...any) (any, error) {
		return nil, errBackend
	})
	if brk.State() != StateOpen {
		b.Fatal("breaker not open")
	}

	fn := func(ctx context.Context, _ ...any) (any, error) { return nil, nil }

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = brk.Execute(ctx, fn)
	}
}

func BenchmarkBreaker_Execute_CacheHit(b *testing.B) {
	brk, _ := NewBreaker("bench", Policy{Timeout: NoTimeout, Cache: true})
	defer brk.Close()
	ctx := context.Background()
	fn := func(ctx context.Context, _ ...any) (any, error) { return "v", nil }

	_, _ = brk.Execute(ctx, fn, WithCacheKey("k"))

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = brk.Execute(ctx, fn, WithCacheKey("k"))
	}
}

func BenchmarkBreaker_Execute_Parallel(b *testing.B) {
	brk, _ := NewBreaker("bench", Policy{Timeout: NoTimeout})
	defer brk.Close()
	fn := func(ctx context.Context, _ ...any) (any, error) { return nil, nil }

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			_, _ = brk.Execute(ctx, fn)
		}
	})
}

// ============================================================================
// 组件基准测试
// ============================================================================

func BenchmarkDefaultKeyFunc(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = DefaultKeyFunc("user", 42, true)
	}
}

func BenchmarkWindow_Aggregate(b *testing.B) {
	w := newWindow(10*time.Second, 10)
	now := time.Now()
	for i := 0; i < 10; i++ {
		ts := now.Add(time.Duration(i) * time.Second)
		w.at(ts).fires = 100
		w.recordLatency(ts, time.Millisecond)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = w.aggregate(now.Add(9 * time.Second))
	}
}

func BenchmarkRegistry_Resolve(b *testing.B) {
	reg, _ := New()
	defer reg.Close()
	_, _ = reg.Resolve("bench")

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = reg.Resolve("bench")
	}
}
