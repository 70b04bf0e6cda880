package store

import (
	"context"
	"sync"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/roomcast/internal/sentinel"
	"github.com/hyp3rd/roomcast/pkg/room"
)

// Memory is an in-process RoomStore for tests and local development. Error
// fields inject failures per operation to exercise degradation paths.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]*room.Room

	SaveErr   error
	LoadErr   error
	DeleteErr error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]*room.Room)}
}

// Save stores a deep copy of the room.
func (m *Memory) Save(_ context.Context, r *room.Room) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}

	m.mu.Lock()
	m.rooms[r.ID] = r.Clone()
	m.mu.Unlock()

	return nil
}

// Load returns a deep copy of the stored room.
func (m *Memory) Load(_ context.Context, id string) (*room.Room, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[id]
	if !ok {
		return nil, ewrap.Wrap(sentinel.ErrRoomNotFound, id)
	}

	return r.Clone(), nil
}

// Delete removes the room.
func (m *Memory) Delete(_ context.Context, id string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}

	m.mu.Lock()
	delete(m.rooms, id)
	m.mu.Unlock()

	return nil
}

// LoadAll returns deep copies of all stored rooms.
func (m *Memory) LoadAll(_ context.Context) ([]*room.Room, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]*room.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r.Clone())
	}

	return rooms, nil
}

// Ping always succeeds.
func (m *Memory) Ping(_ context.Context) error { return nil }

// Len returns the number of stored rooms (testing helper).
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.rooms)
}
