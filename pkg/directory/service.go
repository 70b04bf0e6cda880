package directory

import (
	"context"

	"github.com/hyp3rd/roomcast/pkg/breaker"
	"github.com/hyp3rd/roomcast/pkg/room"
)

// Service is the room coordination surface exposed to transports and
// middleware decorators. All mutating operations commit locally first;
// persistence and replication happen in the background and their failure is
// never surfaced to the caller.
type Service interface {
	// CreateRoom validates the name, registers a new active room with the
	// creator as its only member, and returns the committed snapshot.
	CreateRoom(ctx context.Context, name, creatorID string) (*room.Room, error)
	// GetRoom returns a snapshot of one room, falling back to the backing
	// store when the room is not cached locally.
	GetRoom(ctx context.Context, id string) (*room.Room, error)
	// ListRooms returns snapshots of every locally known room, newest first.
	ListRooms(ctx context.Context) ([]*room.Room, error)
	// JoinRoom adds the user to the room. Joining a room the user already
	// belongs to returns the room unchanged.
	JoinRoom(ctx context.Context, id, userID string) (*room.Room, error)
	// LeaveRoom removes the user. The last member leaving destroys the room.
	// It reports false when the room does not exist.
	LeaveRoom(ctx context.Context, id, userID string) (bool, error)
	// UpdateAvgPing overwrites the room's latency aggregate. It reports false
	// when the room does not exist.
	UpdateAvgPing(ctx context.Context, id string, avgPing float64) (bool, error)
	// Stats reports instance-local coordination counters for monitoring.
	Stats(ctx context.Context) Stats
}

// Stats is an instance-local snapshot for the monitoring surface.
type Stats struct {
	InstanceID  string           `json:"instanceId"`
	RoomCount   int              `json:"roomCount"`
	MemberTotal int              `json:"memberTotal"`
	Breakers    []breaker.Status `json:"breakers"`
}
