// Package health provides a registry of named upstream health checkers
// for the /health endpoint (postgres, tonapi).
package health

import (
	"context"
	"sync"
)

// Status represents the health of a single upstream.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Healthy builds a passing status.
func Healthy(name string) Status {
	return Status{Name: name, Healthy: true}
}

// Unhealthy builds a failing status carrying the failure detail.
func Unhealthy(name string, err error) Status {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return Status{Name: name, Detail: detail}
}

// Checker is a function that checks the health of an upstream.
type Checker func(ctx context.Context) Status

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry creates a new health check registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named health checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs all registered checkers concurrently and returns the
// aggregate health plus per-upstream results, in registration order.
// Checks hit the network, so they must not run serially on the request
// path.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	statuses = make([]Status, len(checkers))

	var wg sync.WaitGroup
	for i, nc := range checkers {
		wg.Add(1)
		go func(i int, nc namedChecker) {
			defer wg.Done()
			statuses[i] = nc.check(ctx)
		}(i, nc)
	}
	wg.Wait()

	healthy = true
	for _, s := range statuses {
		if !s.Healthy {
			healthy = false
			break
		}
	}
	return healthy, statuses
}
