package middleware

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hyp3rd/roomcast/pkg/directory"
	"github.com/hyp3rd/roomcast/pkg/room"
)

// OTelMetricsMiddleware emits OpenTelemetry metrics for service methods.
type OTelMetricsMiddleware struct {
	next  directory.Service
	meter metric.Meter

	// instruments
	calls     metric.Int64Counter
	durations metric.Float64Histogram
}

// NewOTelMetricsMiddleware constructs a metrics middleware using the provided meter.
func NewOTelMetricsMiddleware(next directory.Service, meter metric.Meter) (directory.Service, error) {
	calls, err := meter.Int64Counter("roomcast.calls")
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}

	durations, err := meter.Float64Histogram("roomcast.duration.ms")
	if err != nil {
		return nil, fmt.Errorf("create histogram: %w", err)
	}

	return &OTelMetricsMiddleware{next: next, meter: meter, calls: calls, durations: durations}, nil
}

// CreateRoom implements Service.CreateRoom with metrics.
func (mw *OTelMetricsMiddleware) CreateRoom(ctx context.Context, name, creatorID string) (*room.Room, error) {
	start := time.Now()
	r, err := mw.next.CreateRoom(ctx, name, creatorID)
	mw.rec(ctx, "CreateRoom", start, attribute.Bool("error", err != nil))

	return r, err
}

// GetRoom implements Service.GetRoom with metrics.
func (mw *OTelMetricsMiddleware) GetRoom(ctx context.Context, id string) (*room.Room, error) {
	start := time.Now()
	r, err := mw.next.GetRoom(ctx, id)
	mw.rec(ctx, "GetRoom", start, attribute.Bool("hit", err == nil))

	return r, err
}

// ListRooms implements Service.ListRooms with metrics.
func (mw *OTelMetricsMiddleware) ListRooms(ctx context.Context) ([]*room.Room, error) {
	start := time.Now()
	rooms, err := mw.next.ListRooms(ctx)
	mw.rec(ctx, "ListRooms", start, attribute.Int("rooms.count", len(rooms)))

	return rooms, err
}

// JoinRoom implements Service.JoinRoom with metrics.
func (mw *OTelMetricsMiddleware) JoinRoom(ctx context.Context, id, userID string) (*room.Room, error) {
	start := time.Now()
	r, err := mw.next.JoinRoom(ctx, id, userID)
	mw.rec(ctx, "JoinRoom", start, attribute.Bool("error", err != nil))

	return r, err
}

// LeaveRoom implements Service.LeaveRoom with metrics.
func (mw *OTelMetricsMiddleware) LeaveRoom(ctx context.Context, id, userID string) (bool, error) {
	start := time.Now()
	existed, err := mw.next.LeaveRoom(ctx, id, userID)
	mw.rec(ctx, "LeaveRoom", start, attribute.Bool("existed", existed))

	return existed, err
}

// UpdateAvgPing implements Service.UpdateAvgPing with metrics.
func (mw *OTelMetricsMiddleware) UpdateAvgPing(ctx context.Context, id string, avgPing float64) (bool, error) {
	start := time.Now()
	existed, err := mw.next.UpdateAvgPing(ctx, id, avgPing)
	mw.rec(ctx, "UpdateAvgPing", start, attribute.Bool("existed", existed))

	return existed, err
}

// Stats returns instance counters.
func (mw *OTelMetricsMiddleware) Stats(ctx context.Context) directory.Stats {
	return mw.next.Stats(ctx)
}

// rec records call count and duration with attributes.
func (mw *OTelMetricsMiddleware) rec(ctx context.Context, method string, start time.Time, attrs ...attribute.KeyValue) {
	base := []attribute.KeyValue{attribute.String("method", method)}
	if len(attrs) > 0 {
		base = append(base, attrs...)
	}

	mw.calls.Add(ctx, 1, metric.WithAttributes(base...))
	mw.durations.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(base...))
}
