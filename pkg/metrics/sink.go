// Package metrics records room activity measurements into a sharded
// time-series backend. Writes are fire-and-forget: a sink failure degrades
// observability, never a room operation.
package metrics

import (
	"context"
	"time"
)

// Measurement names written by the directory and the health reporter.
const (
	MeasurementRoomCreated  = "room_created"
	MeasurementUserJoined   = "user_joined"
	MeasurementUserLeft     = "user_left"
	MeasurementPingUpdate   = "ping_update"
	MeasurementSystemHealth = "system_health"
)

// Point is one measurement sample.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Time        time.Time
}

// Sink accepts measurement points. Implementations swallow their own errors.
type Sink interface {
	WritePoint(ctx context.Context, p Point)
}

// NopSink discards every point.
type NopSink struct{}

// WritePoint implements Sink.
func (NopSink) WritePoint(context.Context, Point) {}
