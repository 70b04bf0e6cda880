// Package store persists rooms in a replicated key/value store with hash-field
// semantics. One hash per room keyed by room id, plus a set of active room ids.
package store

import (
	"context"

	"github.com/hyp3rd/roomcast/pkg/room"
)

// RoomStore is the persistence boundary for the room directory. Implementations
// must treat an absent room as sentinel.ErrRoomNotFound, never as a plain error.
type RoomStore interface {
	// Save upserts the room hash, registers the id in the active set, and
	// refreshes the TTL.
	Save(ctx context.Context, r *room.Room) error
	// Load fetches one room by id.
	Load(ctx context.Context, id string) (*room.Room, error)
	// Delete removes the room hash and deregisters the id from the active set.
	Delete(ctx context.Context, id string) error
	// LoadAll returns every room in the active set, skipping ids whose hash has
	// already expired.
	LoadAll(ctx context.Context) ([]*room.Room, error)
	// Ping verifies connectivity.
	Ping(ctx context.Context) error
}
