package parallel

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestForVisitsEveryIndexOnce(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), Sequential(), {Workers: 3, MinSamples: 1}} {
		n := 17
		hits := make([]int32, n)
		For(n, cfg, func(i int) {
			atomic.AddInt32(&hits[i], 1)
		})
		for i, h := range hits {
			if h != 1 {
				t.Errorf("workers=%d: index %d visited %d times", cfg.Workers, i, h)
			}
		}
	}
}

func TestRangesCoverWithoutOverlap(t *testing.T) {
	var mu sync.Mutex
	covered := make([]bool, 10)
	chunks := 0
	Ranges(10, Config{Workers: 4, MinSamples: 1}, func(lo, hi int) {
		mu.Lock()
		defer mu.Unlock()
		chunks++
		for i := lo; i < hi; i++ {
			if covered[i] {
				t.Errorf("index %d in two chunks", i)
			}
			covered[i] = true
		}
	})
	for i, c := range covered {
		if !c {
			t.Errorf("index %d not covered", i)
		}
	}
	if chunks != 4 {
		t.Errorf("expected 4 chunks, got %d", chunks)
	}
}

func TestRangesInlineBelowMinimum(t *testing.T) {
	calls := 0
	Ranges(3, Config{Workers: 8, MinSamples: 4}, func(lo, hi int) {
		calls++
		if lo != 0 || hi != 3 {
			t.Errorf("expected one [0, 3) chunk, got [%d, %d)", lo, hi)
		}
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}

	Ranges(0, DefaultConfig(), func(_, _ int) { t.Error("called for empty range") })
}

func BenchmarkFor(b *testing.B) {
	n := 10000
	for _, tc := range []struct {
		name string
		cfg  Config
	}{{"parallel", DefaultConfig()}, {"sequential", Sequential()}} {
		b.Run(tc.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				var sum int64
				For(n, tc.cfg, func(i int) {
					atomic.AddInt64(&sum, int64(i))
				})
			}
		})
	}
}
