// Package health checks the external dependencies the server needs to be ready.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultTimeout bounds each dependency check.
const DefaultTimeout = 2 * time.Second

// Checker checks one dependency.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Result is the outcome of checking one named dependency.
type Result struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// CheckAll runs every checker concurrently, each under its own timeout, and
// returns the results sorted by name. ready is true when all passed.
func CheckAll(ctx context.Context, checkers map[string]Checker, timeout time.Duration) (results []Result, ready bool) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, c := range checkers {
		wg.Add(1)
		go func(name string, c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			r := Result{Name: name, OK: true}
			if err := c.HealthCheck(cctx); err != nil {
				r.OK = false
				r.Error = err.Error()
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}(name, c)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	ready = true
	for _, r := range results {
		ready = ready && r.OK
	}
	return results, ready
}
