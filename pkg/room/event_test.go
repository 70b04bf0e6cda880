package room_test

import (
	"testing"
	"time"

	"github.com/longbridgeapp/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyp3rd/roomcast/internal/sentinel"
	"github.com/hyp3rd/roomcast/libs/serializer"
	"github.com/hyp3rd/roomcast/pkg/room"
)

func TestEventKindChannels(t *testing.T) {
	assert.Equal(t, "room:created", room.EventCreated.Channel())
	assert.Equal(t, "room:updated", room.EventUpdated.Channel())
	assert.Equal(t, "room:deleted", room.EventDeleted.Channel())
	assert.Equal(t, "room:ping_update", room.EventPingUpdated.Channel())
	assert.Equal(t, 4, len(room.Channels()))
}

func TestDecodeEventRoundTrip(t *testing.T) {
	ser, err := serializer.New("default")
	require.NoError(t, err)

	r := room.New("room_1_abc", "Test", "userA", "app1")

	ev := room.NewEvent(room.EventCreated, r.ID, "app1")
	ev.Room = r

	data, err := ser.Marshal(ev)
	require.NoError(t, err)

	decoded, err := room.DecodeEvent(ser, data)
	require.NoError(t, err)
	assert.Equal(t, room.EventCreated, decoded.Kind)
	assert.Equal(t, r.ID, decoded.RoomID)
	assert.Equal(t, 1, decoded.Room.MemberCount)
}

func TestDecodeEventMalformed(t *testing.T) {
	ser, err := serializer.New("default")
	require.NoError(t, err)

	cases := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "{{{"},
		{name: "unknown kind", payload: `{"kind":"exploded","roomId":"r1","originInstance":"app1","timestamp":"2026-01-02T15:04:05Z"}`},
		{name: "missing room id", payload: `{"kind":"deleted","originInstance":"app1","timestamp":"2026-01-02T15:04:05Z"}`},
		{name: "missing timestamp", payload: `{"kind":"deleted","roomId":"r1","originInstance":"app1"}`},
		{name: "created without payload", payload: `{"kind":"created","roomId":"r1","originInstance":"app1","timestamp":"2026-01-02T15:04:05Z"}`},
		{name: "updated with no members", payload: `{"kind":"updated","roomId":"r1","room":{"id":"r1","name":"Test","members":[],"memberCount":0},"originInstance":"app1","timestamp":"2026-01-02T15:04:05Z"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := room.DecodeEvent(ser, []byte(tc.payload))
			require.Error(t, err)
		})
	}
}

func TestValidatePingEvent(t *testing.T) {
	ev := room.NewEvent(room.EventPingUpdated, "r1", "app1")
	ev.AvgPing = 42

	require.NoError(t, ev.Validate())

	ev.AvgPing = -1
	require.ErrorIs(t, ev.Validate(), sentinel.ErrMalformedEvent)

	ev = room.Event{Kind: room.EventPingUpdated, RoomID: "r1"}
	require.Error(t, ev.Validate())
}

func TestValidateMismatchedRoomID(t *testing.T) {
	r := room.New("room_1_abc", "Test", "userA", "app1")

	ev := room.NewEvent(room.EventUpdated, "room_other", "app1")
	ev.Room = r
	ev.Timestamp = time.Now()

	require.ErrorIs(t, ev.Validate(), sentinel.ErrMalformedEvent)
}
