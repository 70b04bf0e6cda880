// Package pingagg collects per-member latency samples and maintains each
// room's rolling average. Samples arrive at report rate; the aggregate is
// recomputed on a fixed cadence and written through the directory only when
// the rounded value actually moved, which keeps replication chatter bounded.
package pingagg

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.uber.org/zap"

	"github.com/hyp3rd/roomcast/internal/sentinel"
	"github.com/hyp3rd/roomcast/pkg/room"
)

// Aggregation cadence and sample retention.
const (
	// DefaultInterval is the aggregate recompute cadence.
	DefaultInterval = 10 * time.Second
	// DefaultSampleMaxAge bounds how long a member's last report keeps
	// counting toward the room aggregate.
	DefaultSampleMaxAge = 2 * time.Minute
)

// RoomService is the slice of the directory surface the aggregator needs.
type RoomService interface {
	ListRooms(ctx context.Context) ([]*room.Room, error)
	UpdateAvgPing(ctx context.Context, id string, avgPing float64) (bool, error)
}

type sample struct {
	value float64
	at    time.Time
}

// Aggregator keeps the latest latency sample per (room, user) pair.
type Aggregator struct {
	svc      RoomService
	interval time.Duration
	maxAge   time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	samples map[string]map[string]sample
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithInterval overrides the recompute cadence.
func WithInterval(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithSampleMaxAge overrides how long samples stay eligible.
func WithSampleMaxAge(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.maxAge = d
		}
	}
}

// WithLogger sets the aggregator logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an aggregator over the given room service.
func New(svc RoomService, opts ...Option) *Aggregator {
	a := &Aggregator{
		svc:      svc,
		interval: DefaultInterval,
		maxAge:   DefaultSampleMaxAge,
		logger:   zap.NewNop(),
		samples:  make(map[string]map[string]sample),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// RecordSample stores the latest latency report for a user in a room.
func (a *Aggregator) RecordSample(roomID, userID string, pingMs float64) error {
	if roomID == "" || userID == "" {
		return ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "roomID/userID")
	}

	if pingMs < 0 {
		return ewrap.Wrap(sentinel.ErrNegativePing, "sample")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	byUser := a.samples[roomID]
	if byUser == nil {
		byUser = make(map[string]sample)
		a.samples[roomID] = byUser
	}

	byUser[userID] = sample{value: pingMs, at: time.Now()}

	return nil
}

// Run recomputes aggregates on the configured cadence until ctx is canceled.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.RecomputeOnce(ctx)
		}
	}
}

// RecomputeOnce walks every known room, averages the latest sample of each
// current member, and pushes the result through the directory when the
// rounded aggregate changed. Samples of departed members, vanished rooms, and
// reports older than the retention window are pruned on the way.
func (a *Aggregator) RecomputeOnce(ctx context.Context) {
	rooms, err := a.svc.ListRooms(ctx)
	if err != nil {
		a.logger.Warn("aggregate recompute skipped", zap.Error(err))

		return
	}

	live := make(map[string]*room.Room, len(rooms))
	for _, r := range rooms {
		live[r.ID] = r
	}

	updates := a.collect(live)

	for id, avg := range updates {
		_, err := a.svc.UpdateAvgPing(ctx, id, avg)
		if err != nil {
			a.logger.Warn("avg ping update failed",
				zap.String("roomId", id),
				zap.Error(err),
			)
		}
	}
}

func (a *Aggregator) collect(live map[string]*room.Room) map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	updates := make(map[string]float64)
	cutoff := time.Now().Add(-a.maxAge)

	for roomID, byUser := range a.samples {
		r, ok := live[roomID]
		if !ok {
			delete(a.samples, roomID)

			continue
		}

		var (
			sum   float64
			count int
		)

		for userID, s := range byUser {
			if !r.HasMember(userID) || s.at.Before(cutoff) {
				delete(byUser, userID)

				continue
			}

			sum += s.value
			count++
		}

		if count == 0 {
			continue
		}

		avg := sum / float64(count)
		if math.Round(avg) != math.Round(r.AvgPing) {
			updates[roomID] = avg
		}
	}

	return updates
}
