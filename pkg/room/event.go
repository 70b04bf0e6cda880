package room

import (
	"time"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/roomcast/internal/sentinel"
	"github.com/hyp3rd/roomcast/libs/serializer"
)

// EventKind enumerates the closed set of replication event kinds.
type EventKind string

// Replication event kinds.
const (
	EventCreated     EventKind = "created"
	EventUpdated     EventKind = "updated"
	EventDeleted     EventKind = "deleted"
	EventPingUpdated EventKind = "ping_updated"
)

// Bus channel names, one per event kind.
const (
	ChannelCreated    = "room:created"
	ChannelUpdated    = "room:updated"
	ChannelDeleted    = "room:deleted"
	ChannelPingUpdate = "room:ping_update"
)

// Valid reports whether the kind belongs to the closed set.
func (k EventKind) Valid() bool {
	switch k {
	case EventCreated, EventUpdated, EventDeleted, EventPingUpdated:
		return true
	}

	return false
}

// Channel returns the bus channel carrying this kind.
func (k EventKind) Channel() string {
	switch k {
	case EventCreated:
		return ChannelCreated
	case EventUpdated:
		return ChannelUpdated
	case EventDeleted:
		return ChannelDeleted
	case EventPingUpdated:
		return ChannelPingUpdate
	}

	return ""
}

// Channels returns every bus channel an instance must subscribe to.
func Channels() []string {
	return []string{ChannelCreated, ChannelUpdated, ChannelDeleted, ChannelPingUpdate}
}

// Event is a typed message describing a room mutation, broadcast to peer
// instances for eventual consistency. The payload is partial: created/updated
// carry the room snapshot, ping_updated carries only the aggregate, deleted
// carries nothing beyond the room id.
type Event struct {
	Kind           EventKind `json:"kind"`
	RoomID         string    `json:"roomId"`
	Room           *Room     `json:"room,omitempty"`
	AvgPing        float64   `json:"avgPing,omitempty"`
	OriginInstance string    `json:"originInstance"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewEvent stamps an event with origin and current time.
func NewEvent(kind EventKind, roomID, origin string) Event {
	return Event{
		Kind:           kind,
		RoomID:         roomID,
		OriginInstance: origin,
		Timestamp:      time.Now().UTC(),
	}
}

// NewRoomEvent builds an event carrying a full room snapshot. The event
// timestamp mirrors the snapshot's last mutation so peers resolve the
// last-write-wins comparison against the exact commit instant.
func NewRoomEvent(kind EventKind, snapshot *Room, origin string) Event {
	ev := Event{
		Kind:           kind,
		RoomID:         snapshot.ID,
		Room:           snapshot,
		AvgPing:        snapshot.AvgPing,
		OriginInstance: origin,
		Timestamp:      snapshot.LastMutation,
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	return ev
}

// Validate checks the structural requirements for the event's kind.
func (e *Event) Validate() error {
	if !e.Kind.Valid() {
		return ewrap.Wrap(sentinel.ErrUnknownEventKind, string(e.Kind))
	}

	if e.RoomID == "" {
		return ewrap.Wrap(sentinel.ErrMalformedEvent, "missing room id")
	}

	if e.Timestamp.IsZero() {
		return ewrap.Wrap(sentinel.ErrMalformedEvent, "missing timestamp")
	}

	switch e.Kind {
	case EventCreated, EventUpdated:
		if e.Room == nil {
			return ewrap.Wrap(sentinel.ErrMalformedEvent, "missing room payload")
		}

		if e.Room.ID != e.RoomID {
			return ewrap.Wrap(sentinel.ErrMalformedEvent, "room id mismatch")
		}

		// A zero-member room must not exist, so a snapshot without members
		// cannot be applied.
		if len(e.Room.Members) == 0 {
			return ewrap.Wrap(sentinel.ErrMalformedEvent, "empty member list")
		}
	case EventPingUpdated:
		if e.AvgPing < 0 {
			return ewrap.Wrap(sentinel.ErrMalformedEvent, "negative ping aggregate")
		}
	case EventDeleted:
		// room id alone is sufficient
	}

	return nil
}

// DecodeEvent deserializes and validates an inbound bus payload. Any decode or
// structural failure maps to sentinel.ErrMalformedEvent so the subscriber loop
// can drop the message without distinguishing causes.
func DecodeEvent(ser serializer.ISerializer, data []byte) (Event, error) {
	var ev Event

	err := ser.Unmarshal(data, &ev)
	if err != nil {
		return Event{}, ewrap.Wrap(sentinel.ErrMalformedEvent, err.Error())
	}

	err = ev.Validate()
	if err != nil {
		return Event{}, err
	}

	return ev, nil
}
