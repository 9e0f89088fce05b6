// Package parallel splits per-sample work across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution.
type Config struct {
	Workers    int // goroutines to use; 1 or less runs inline
	MinSamples int // below this many samples the work runs inline
}

// DefaultConfig uses one worker per CPU.
func DefaultConfig() Config {
	return Config{
		Workers:    runtime.NumCPU(),
		MinSamples: 2,
	}
}

// Sequential runs everything on the calling goroutine.
func Sequential() Config {
	return Config{Workers: 1}
}

// Ranges calls f(lo, hi) over contiguous chunks covering [0, n) and waits
// for all of them. Chunks never overlap, so f may hold per-chunk scratch
// buffers and must only write outputs owned by samples in [lo, hi).
func Ranges(n int, cfg Config, f func(lo, hi int)) {
	if n <= 0 {
		return
	}
	workers := min(cfg.Workers, n)
	if workers <= 1 || n < cfg.MinSamples {
		f(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(lo, hi)
		}()
	}
	wg.Wait()
}

// For calls f(i) for every i in [0, n).
func For(n int, cfg Config, f func(i int)) {
	Ranges(n, cfg, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			f(i)
		}
	})
}
