// Package health aggregates named dependency probes into one report for the
// liveness endpoint. A single degraded dependency downgrades the overall
// status without marking the instance dead; room operations keep working on
// the local cache while dependencies recover.
package health

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/hyp3rd/roomcast/pkg/breaker"
)

// Status is the coarse outcome of a probe or of the whole report.
type Status string

// Probe outcomes, ordered by severity.
const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is one probe outcome.
type CheckResult struct {
	Status  Status        `json:"status"`
	Detail  string        `json:"detail,omitempty"`
	Latency time.Duration `json:"latencyNs"`
}

// Check probes one dependency.
type Check func(ctx context.Context) CheckResult

// Report is the aggregate of every registered probe.
type Report struct {
	Status    Status                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// Registry holds named probes.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Check)}
}

// Register adds or replaces a named probe.
func (r *Registry) Register(name string, check Check) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checks[name] = check
}

// Report runs every probe and folds the worst outcome into the overall status.
func (r *Registry) Report(ctx context.Context) Report {
	r.mu.RLock()

	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}

	checks := make(map[string]Check, len(r.checks))
	for name, c := range r.checks {
		checks[name] = c
	}
	r.mu.RUnlock()

	sort.Strings(names)

	report := Report{
		Status:    StatusHealthy,
		Checks:    make(map[string]CheckResult, len(names)),
		Timestamp: time.Now().UTC(),
	}

	for _, name := range names {
		result := checks[name](ctx)
		report.Checks[name] = result

		if severity(result.Status) > severity(report.Status) {
			report.Status = result.Status
		}
	}

	return report
}

func severity(s Status) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	}

	return 2
}

// Pinger is anything with connectivity verification, typically the room store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes a dependency's connectivity and reports its round-trip.
func PingCheck(p Pinger) Check {
	return func(ctx context.Context) CheckResult {
		start := time.Now()

		err := p.Ping(ctx)
		if err != nil {
			return CheckResult{Status: StatusUnhealthy, Detail: err.Error(), Latency: time.Since(start)}
		}

		return CheckResult{Status: StatusHealthy, Latency: time.Since(start)}
	}
}

// BreakerCheck reports degraded while the breaker is not closed. The guarded
// dependency may be down, but the instance still serves from local state.
func BreakerCheck(cb *breaker.CircuitBreaker) Check {
	return func(context.Context) CheckResult {
		status := cb.GetStatus()
		if status.State != "CLOSED" {
			return CheckResult{Status: StatusDegraded, Detail: status.Name + " breaker " + status.State}
		}

		return CheckResult{Status: StatusHealthy}
	}
}

// MemoryCheck reports degraded when the heap exceeds the soft limit.
func MemoryCheck(softLimitMB uint64) Check {
	return func(context.Context) CheckResult {
		var mem runtime.MemStats

		runtime.ReadMemStats(&mem)

		heapMB := mem.HeapAlloc / (1024 * 1024)
		if softLimitMB > 0 && heapMB > softLimitMB {
			return CheckResult{Status: StatusDegraded, Detail: "heap above soft limit"}
		}

		return CheckResult{Status: StatusHealthy}
	}
}
