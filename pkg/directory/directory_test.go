package directory

import (
	"context"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyp3rd/roomcast/internal/instance"
	"github.com/hyp3rd/roomcast/internal/sentinel"
	"github.com/hyp3rd/roomcast/pkg/bus"
	"github.com/hyp3rd/roomcast/pkg/replication"
	"github.com/hyp3rd/roomcast/pkg/room"
	"github.com/hyp3rd/roomcast/pkg/store"
)

func newTestDirectory(t *testing.T, st store.RoomStore, opts ...Option) *Directory {
	t.Helper()

	d, err := NewDirectory(context.Background(), st, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(d.Stop)

	return d
}

func TestCreateRoomValidatesInput(t *testing.T) {
	d := newTestDirectory(t, store.NewMemory())

	_, err := d.CreateRoom(context.Background(), "   ", "user-1")
	require.ErrorIs(t, err, sentinel.ErrInvalidRoomName)

	_, err = d.CreateRoom(context.Background(), "lobby", "")
	require.ErrorIs(t, err, sentinel.ErrParamCannotBeEmpty)
}

func TestCreateRoomCommitsLocallyAndPersists(t *testing.T) {
	mem := store.NewMemory()
	d := newTestDirectory(t, mem)

	created, err := d.CreateRoom(context.Background(), "  lobby  ", "user-1")
	require.NoError(t, err)

	assert.Equal(t, "lobby", created.Name)
	assert.Equal(t, []string{"user-1"}, created.Members)
	assert.Equal(t, 1, created.MemberCount)
	assert.Equal(t, room.StatusActive, created.Status)

	got, err := d.GetRoom(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	// The background queue drains on Stop; afterwards the room is upstream.
	d.Stop()

	persisted, err := mem.Load(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "lobby", persisted.Name)
}

func TestMutationsSucceedWhileStoreIsDown(t *testing.T) {
	mem := store.NewMemory()
	mem.SaveErr = sentinel.ErrTimeoutOrCanceled
	d := newTestDirectory(t, mem)

	created, err := d.CreateRoom(context.Background(), "lobby", "user-1")
	require.NoError(t, err)

	joined, err := d.JoinRoom(context.Background(), created.ID, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 2, joined.MemberCount)

	got, err := d.GetRoom(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MemberCount)
}

func TestJoinRoomIsIdempotent(t *testing.T) {
	d := newTestDirectory(t, store.NewMemory())

	created, err := d.CreateRoom(context.Background(), "lobby", "user-1")
	require.NoError(t, err)

	again, err := d.JoinRoom(context.Background(), created.ID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"user-1"}, again.Members)
	assert.Equal(t, 1, again.MemberCount)
}

func TestJoinRoomUnknownRoom(t *testing.T) {
	d := newTestDirectory(t, store.NewMemory())

	_, err := d.JoinRoom(context.Background(), "room_0_missing", "user-1")
	require.ErrorIs(t, err, sentinel.ErrRoomNotFound)
}

func TestJoinRoomLoadsFromStoreOnCacheMiss(t *testing.T) {
	mem := store.NewMemory()

	seeded := room.New(room.NewID(), "elsewhere", "user-9", "inst-peer")
	require.NoError(t, mem.Save(context.Background(), seeded))

	d := newTestDirectory(t, mem)

	joined, err := d.JoinRoom(context.Background(), seeded.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, joined.MemberCount)
	assert.True(t, joined.HasMember("user-9"))
}

func TestLeaveRoomKeepsNonEmptyRoom(t *testing.T) {
	d := newTestDirectory(t, store.NewMemory())

	created, err := d.CreateRoom(context.Background(), "lobby", "user-1")
	require.NoError(t, err)

	_, err = d.JoinRoom(context.Background(), created.ID, "user-2")
	require.NoError(t, err)

	left, err := d.LeaveRoom(context.Background(), created.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, left)

	got, err := d.GetRoom(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-2"}, got.Members)
}

func TestLastMemberLeavingDestroysRoom(t *testing.T) {
	mem := store.NewMemory()
	d := newTestDirectory(t, mem)

	created, err := d.CreateRoom(context.Background(), "lobby", "user-1")
	require.NoError(t, err)

	left, err := d.LeaveRoom(context.Background(), created.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, left)

	d.Stop()

	_, err = d.GetRoom(context.Background(), created.ID)
	require.ErrorIs(t, err, sentinel.ErrRoomNotFound)

	_, err = mem.Load(context.Background(), created.ID)
	require.ErrorIs(t, err, sentinel.ErrRoomNotFound)
}

func TestLeaveRoomUnknownRoomReportsFalse(t *testing.T) {
	d := newTestDirectory(t, store.NewMemory())

	left, err := d.LeaveRoom(context.Background(), "room_0_missing", "user-1")
	require.NoError(t, err)
	assert.False(t, left)
}

func TestUpdateAvgPingRejectsNegative(t *testing.T) {
	d := newTestDirectory(t, store.NewMemory())

	_, err := d.UpdateAvgPing(context.Background(), "room_0_any", -1)
	require.ErrorIs(t, err, sentinel.ErrNegativePing)
}

func TestUpdateAvgPingOverwritesAggregate(t *testing.T) {
	d := newTestDirectory(t, store.NewMemory())

	created, err := d.CreateRoom(context.Background(), "lobby", "user-1")
	require.NoError(t, err)

	updated, err := d.UpdateAvgPing(context.Background(), created.ID, 42.5)
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := d.GetRoom(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 42.5, got.AvgPing)
	assert.False(t, got.LastPingUpdate.IsZero())
}

func TestListRoomsNewestFirst(t *testing.T) {
	d := newTestDirectory(t, store.NewMemory())

	first, err := d.CreateRoom(context.Background(), "first", "user-1")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	second, err := d.CreateRoom(context.Background(), "second", "user-2")
	require.NoError(t, err)

	rooms, err := d.ListRooms(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, len(rooms))
	assert.Equal(t, second.ID, rooms[0].ID)
	assert.Equal(t, first.ID, rooms[1].ID)
}

func TestGetRoomEvictsWhenExpiredUpstream(t *testing.T) {
	d := newTestDirectory(t, store.NewMemory())

	// Seed the cache through replication with a copy whose TTL has long passed.
	old := room.New("room_1_stale", "stale", "user-1", "inst-peer")
	old.LastMutation = time.Now().UTC().Add(-25 * time.Hour)
	d.Apply(room.NewRoomEvent(room.EventCreated, old, "inst-peer"))

	_, err := d.GetRoom(context.Background(), "room_1_stale")
	require.ErrorIs(t, err, sentinel.ErrRoomNotFound)

	// Evicted: the next lookup misses the cache and the store agrees.
	_, err = d.GetRoom(context.Background(), "room_1_stale")
	require.ErrorIs(t, err, sentinel.ErrRoomNotFound)
}

func TestApplyDropsStaleEvents(t *testing.T) {
	d := newTestDirectory(t, store.NewMemory())

	created, err := d.CreateRoom(context.Background(), "lobby", "user-1")
	require.NoError(t, err)

	stale := created.Clone()
	stale.Members = []string{"ghost"}
	stale.LastMutation = created.LastMutation.Add(-time.Second)

	d.Apply(room.NewRoomEvent(room.EventUpdated, stale, "inst-peer"))

	got, err := d.GetRoom(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, got.Members)
}

func TestApplyPingUpdateForUnknownRoomIsNoop(t *testing.T) {
	d := newTestDirectory(t, store.NewMemory())

	ev := room.NewEvent(room.EventPingUpdated, "room_0_missing", "inst-peer")
	ev.AvgPing = 10

	d.Apply(ev)

	rooms, err := d.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, len(rooms))
}

func TestBootstrapSeedsCacheFromStore(t *testing.T) {
	mem := store.NewMemory()

	a := room.New(room.NewID(), "alpha", "user-1", "inst-peer")
	b := room.New(room.NewID(), "beta", "user-2", "inst-peer")
	require.NoError(t, mem.Save(context.Background(), a))
	require.NoError(t, mem.Save(context.Background(), b))

	d := newTestDirectory(t, mem)
	require.NoError(t, d.Bootstrap(context.Background()))

	rooms, err := d.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, len(rooms))
}

// Two directories share a bus but keep separate stores, so every cross-instance
// observation below travels through replication events.
func TestTwoInstancesConverge(t *testing.T) {
	shared := bus.NewInProcessBus()
	ctx := context.Background()

	newInstance := func(id string) *Directory {
		bridge, err := replication.New(shared, nil)
		require.NoError(t, err)

		d, err := NewDirectory(ctx, store.NewMemory(), bridge,
			WithInstanceID(instance.NewID(id)),
		)
		require.NoError(t, err)
		require.NoError(t, bridge.Start(ctx, d))
		t.Cleanup(d.Stop)

		return d
	}

	dirA := newInstance("inst-a")
	dirB := newInstance("inst-b")

	created, err := dirA.CreateRoom(ctx, "lobby", "user-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := dirB.GetRoom(ctx, created.ID)

		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	// The echo of dirA's own events must not duplicate its state.
	gotA, err := dirA.GetRoom(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, gotA.Members)

	_, err = dirB.JoinRoom(ctx, created.ID, "user-2")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, err := dirA.GetRoom(ctx, created.ID)

		return err == nil && r.MemberCount == 2
	}, 2*time.Second, 5*time.Millisecond)

	left, err := dirA.LeaveRoom(ctx, created.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, left)

	require.Eventually(t, func() bool {
		r, err := dirB.GetRoom(ctx, created.ID)

		return err == nil && r.MemberCount == 1 && r.HasMember("user-2")
	}, 2*time.Second, 5*time.Millisecond)

	left, err = dirB.LeaveRoom(ctx, created.ID, "user-2")
	require.NoError(t, err)
	assert.True(t, left)

	require.Eventually(t, func() bool {
		rooms, err := dirA.ListRooms(ctx)

		return err == nil && len(rooms) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLeaveRoomByNonMemberChangesNothing(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t, store.NewMemory())

	created, err := d.CreateRoom(ctx, "lobby", "user-1")
	require.NoError(t, err)

	existed, err := d.LeaveRoom(ctx, created.ID, "stranger")
	require.NoError(t, err)
	assert.True(t, existed)

	got, err := d.GetRoom(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, got.Members)
	assert.True(t, got.LastMutation.Equal(created.LastMutation))
}

func TestRoomLifecycle(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t, store.NewMemory())

	created, err := d.CreateRoom(ctx, "Test", "user-a")
	require.NoError(t, err)
	assert.Equal(t, 1, created.MemberCount)
	assert.Equal(t, []string{"user-a"}, created.Members)

	joined, err := d.JoinRoom(ctx, created.ID, "user-b")
	require.NoError(t, err)
	assert.Equal(t, 2, joined.MemberCount)
	assert.Equal(t, len(joined.Members), joined.MemberCount)

	updated, err := d.UpdateAvgPing(ctx, created.ID, 42)
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := d.GetRoom(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(42), got.AvgPing)

	left, err := d.LeaveRoom(ctx, created.ID, "user-b")
	require.NoError(t, err)
	assert.True(t, left)

	got, err = d.GetRoom(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MemberCount)

	left, err = d.LeaveRoom(ctx, created.ID, "user-a")
	require.NoError(t, err)
	assert.True(t, left)

	_, err = d.GetRoom(ctx, created.ID)
	require.ErrorIs(t, err, sentinel.ErrRoomNotFound)
}
