// Package parallel runs independent loop iterations on a bounded number of
// goroutines. Kernels use it for work items that write disjoint outputs, so
// results do not depend on scheduling.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Workers int // Maximum goroutines; 1 or less runs sequentially.
	Grain   int // Minimum items per goroutine.
}

// DefaultConfig uses one worker per CPU.
func DefaultConfig() Config {
	return Config{Workers: runtime.NumCPU(), Grain: 1}
}

// Sequential runs every loop on the calling goroutine.
func Sequential() Config {
	return Config{Workers: 1, Grain: 1}
}

// For executes f(i) for i in [0, n), splitting the range into contiguous
// chunks of at least cfg.Grain items.
func For(cfg Config, n int, f func(i int)) {
	grain := max(cfg.Grain, 1)
	if cfg.Workers <= 1 || n <= grain {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	chunk := max((n+cfg.Workers-1)/cfg.Workers, grain)
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := start; i < end; i++ {
				f(i)
			}
		}()
	}
	wg.Wait()
}
