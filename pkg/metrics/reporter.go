package metrics

import (
	"context"
	"runtime"
	"time"
)

// DefaultReportInterval is the system health sampling cadence.
const DefaultReportInterval = 30 * time.Second

const bytesPerMB = 1024 * 1024

// StatsFunc supplies instance-local coordination counters for a sample.
type StatsFunc func() (roomCount, memberTotal int)

// Reporter periodically writes a system_health point describing this
// instance: process memory, goroutine count, and room population.
type Reporter struct {
	sink     Sink
	instance string
	stats    StatsFunc
	interval time.Duration
	started  time.Time
}

// NewReporter creates a Reporter over the sink.
func NewReporter(sink Sink, instanceID string, stats StatsFunc, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}

	return &Reporter{
		sink:     sink,
		instance: instanceID,
		stats:    stats,
		interval: interval,
		started:  time.Now(),
	}
}

// Run emits health samples until ctx is canceled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReportOnce(ctx)
		}
	}
}

// ReportOnce writes a single health sample.
func (r *Reporter) ReportOnce(ctx context.Context) {
	var mem runtime.MemStats

	runtime.ReadMemStats(&mem)

	rooms, members := 0, 0
	if r.stats != nil {
		rooms, members = r.stats()
	}

	r.sink.WritePoint(ctx, Point{
		Measurement: MeasurementSystemHealth,
		Tags:        map[string]string{"instance": r.instance},
		Fields: map[string]any{
			"heap_alloc_mb":  int64(mem.HeapAlloc / bytesPerMB),
			"sys_mb":         int64(mem.Sys / bytesPerMB),
			"goroutines":     runtime.NumGoroutine(),
			"rooms":          rooms,
			"members":        members,
			"uptime_seconds": int64(time.Since(r.started).Seconds()),
		},
		Time: time.Now().UTC(),
	})
}
