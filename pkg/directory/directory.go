// Package directory implements the instance-local room registry. It is the
// single writer for room state on this instance: every mutation commits to the
// in-memory cache first and is then persisted and replicated in the
// background, so room operations stay available while Redis or the bus
// degrade.
package directory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.uber.org/zap"

	"github.com/hyp3rd/roomcast/internal/instance"
	"github.com/hyp3rd/roomcast/internal/keyedmutex"
	"github.com/hyp3rd/roomcast/internal/sentinel"
	"github.com/hyp3rd/roomcast/internal/worker"
	"github.com/hyp3rd/roomcast/pkg/breaker"
	"github.com/hyp3rd/roomcast/pkg/metrics"
	"github.com/hyp3rd/roomcast/pkg/replication"
	"github.com/hyp3rd/roomcast/pkg/room"
	"github.com/hyp3rd/roomcast/pkg/store"
)

// Directory implements Service. Logical operations on one room are serialized
// by a keyed mutex; the room map itself is guarded separately so snapshot
// reads never wait on a store round-trip.
type Directory struct {
	instanceID   instance.ID
	store        store.RoomStore
	storeBreaker *breaker.CircuitBreaker
	bridge       *replication.Bridge
	queue        *worker.Queue
	sink         metrics.Sink
	logger       *zap.Logger

	mu    sync.RWMutex
	rooms map[string]*room.Room
	locks *keyedmutex.KeyedMutex

	extraBreakers []*breaker.CircuitBreaker
}

// Option configures a Directory.
type Option func(*Directory)

// WithInstanceID sets the replication origin identity.
func WithInstanceID(id instance.ID) Option {
	return func(d *Directory) {
		if id != "" {
			d.instanceID = id
		}
	}
}

// WithStoreBreaker guards every backing-store call with the given breaker.
func WithStoreBreaker(cb *breaker.CircuitBreaker) Option {
	return func(d *Directory) {
		d.storeBreaker = cb
	}
}

// WithSink sets the measurement sink for room activity points.
func WithSink(sink metrics.Sink) Option {
	return func(d *Directory) {
		if sink != nil {
			d.sink = sink
		}
	}
}

// WithLogger sets the directory logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithExtraBreakers registers additional breakers to surface in Stats.
func WithExtraBreakers(cbs ...*breaker.CircuitBreaker) Option {
	return func(d *Directory) {
		d.extraBreakers = append(d.extraBreakers, cbs...)
	}
}

// NewDirectory creates the registry. ctx bounds the background queue; cancel
// it and call Stop during shutdown. bridge may be nil to run an instance
// without replication.
func NewDirectory(ctx context.Context, roomStore store.RoomStore, bridge *replication.Bridge, opts ...Option) (*Directory, error) {
	if roomStore == nil {
		return nil, sentinel.ErrNilStore
	}

	d := &Directory{
		instanceID: instance.NewID(""),
		store:      roomStore,
		bridge:     bridge,
		sink:       metrics.NopSink{},
		logger:     zap.NewNop(),
		rooms:      make(map[string]*room.Room),
		locks:      keyedmutex.New(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.queue = worker.NewQueue(ctx, worker.WithLogger(d.logger))

	return d, nil
}

// InstanceID returns the replication origin identity of this directory.
func (d *Directory) InstanceID() instance.ID { return d.instanceID }

// Stop drains the background queue. Pending persistence and replication jobs
// run to completion before it returns.
func (d *Directory) Stop() {
	d.queue.Shutdown()
}

// Bootstrap seeds the local cache from the backing store. Called once at
// startup so an instance joining an existing deployment serves the current
// room population immediately.
func (d *Directory) Bootstrap(ctx context.Context) error {
	rooms, err := d.loadAllUpstream(ctx)
	if err != nil {
		return ewrap.Wrap(err, "bootstrap room cache")
	}

	for _, r := range rooms {
		d.adopt(r)
	}

	d.logger.Info("room cache bootstrapped", zap.Int("rooms", len(rooms)))

	return nil
}

// CreateRoom implements Service.
func (d *Directory) CreateRoom(ctx context.Context, name, creatorID string) (*room.Room, error) {
	trimmed, err := room.ValidateName(name)
	if err != nil {
		return nil, err
	}

	if creatorID == "" {
		return nil, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "creatorID")
	}

	id := room.NewID()
	r := room.New(id, trimmed, creatorID, string(d.instanceID))

	d.locks.Lock(id)
	d.mu.Lock()
	d.rooms[id] = r
	snapshot := r.Clone()
	d.mu.Unlock()
	d.propagate(room.EventCreated, snapshot)
	d.locks.Unlock(id)

	d.sink.WritePoint(ctx, metrics.Point{
		Measurement: metrics.MeasurementRoomCreated,
		Tags:        map[string]string{"room_id": id, "instance": string(d.instanceID)},
		Fields:      map[string]any{"name": trimmed, "created_by": creatorID},
		Time:        snapshot.CreatedAt,
	})

	d.logger.Info("room created",
		zap.String("roomId", id),
		zap.String("createdBy", creatorID),
	)

	return snapshot, nil
}

// GetRoom implements Service. A cached room older than its TTL is verified
// against the store and evicted when it expired upstream; if the store is
// unreachable the local copy is served.
func (d *Directory) GetRoom(ctx context.Context, id string) (*room.Room, error) {
	if id == "" {
		return nil, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "room id")
	}

	d.mu.RLock()
	local, ok := d.rooms[id]

	var cached *room.Room
	if ok {
		cached = local.Clone()
	}
	d.mu.RUnlock()

	if ok {
		if time.Since(cached.LastMutation) < cached.TTL() {
			return cached, nil
		}

		_, err := d.loadUpstream(ctx, id)
		if errors.Is(err, sentinel.ErrRoomNotFound) {
			d.evict(id)

			return nil, sentinel.ErrRoomNotFound
		}

		return cached, nil
	}

	upstream, err := d.loadUpstream(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrRoomNotFound) {
			return nil, sentinel.ErrRoomNotFound
		}

		return nil, ewrap.Wrap(err, "load room "+id)
	}

	d.adopt(upstream)

	return upstream.Clone(), nil
}

// ListRooms implements Service. Results come from the local cache only,
// ordered newest first.
func (d *Directory) ListRooms(_ context.Context) ([]*room.Room, error) {
	d.mu.RLock()

	out := make([]*room.Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, r.Clone())
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}

		return out[i].ID < out[j].ID
	})

	return out, nil
}

// JoinRoom implements Service.
func (d *Directory) JoinRoom(ctx context.Context, id, userID string) (*room.Room, error) {
	if id == "" {
		return nil, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "room id")
	}

	if userID == "" {
		return nil, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "userID")
	}

	d.locks.Lock(id)
	defer d.locks.Unlock(id)

	r := d.fetch(ctx, id)
	if r == nil {
		return nil, sentinel.ErrRoomNotFound
	}

	d.mu.Lock()

	if !r.AddMember(userID) {
		snapshot := r.Clone()
		d.mu.Unlock()

		return snapshot, nil
	}

	r.LastMutation = time.Now().UTC()
	snapshot := r.Clone()
	d.mu.Unlock()

	d.propagate(room.EventUpdated, snapshot)

	d.sink.WritePoint(ctx, metrics.Point{
		Measurement: metrics.MeasurementUserJoined,
		Tags:        map[string]string{"room_id": id, "instance": string(d.instanceID)},
		Fields:      map[string]any{"user_id": userID, "member_count": snapshot.MemberCount},
		Time:        snapshot.LastMutation,
	})

	return snapshot, nil
}

// LeaveRoom implements Service. The last member leaving destroys the room
// locally, upstream, and on every peer.
func (d *Directory) LeaveRoom(ctx context.Context, id, userID string) (bool, error) {
	if id == "" {
		return false, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "room id")
	}

	if userID == "" {
		return false, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "userID")
	}

	d.locks.Lock(id)
	defer d.locks.Unlock(id)

	r := d.fetch(ctx, id)
	if r == nil {
		return false, nil
	}

	d.mu.Lock()
	if !r.RemoveMember(userID) {
		d.mu.Unlock()

		// The caller was never a member; nothing changed, so no write may
		// race a genuine concurrent update.
		return true, nil
	}

	r.LastMutation = time.Now().UTC()

	empty := r.Empty()
	if empty {
		delete(d.rooms, id)
	}

	snapshot := r.Clone()
	d.mu.Unlock()

	if empty {
		d.propagateDelete(id)
		d.logger.Info("room destroyed, last member left", zap.String("roomId", id))
	} else {
		d.propagate(room.EventUpdated, snapshot)
	}

	d.sink.WritePoint(ctx, metrics.Point{
		Measurement: metrics.MeasurementUserLeft,
		Tags:        map[string]string{"room_id": id, "instance": string(d.instanceID)},
		Fields:      map[string]any{"user_id": userID, "member_count": snapshot.MemberCount},
		Time:        snapshot.LastMutation,
	})

	return true, nil
}

// UpdateAvgPing implements Service.
func (d *Directory) UpdateAvgPing(ctx context.Context, id string, avgPing float64) (bool, error) {
	if id == "" {
		return false, ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "room id")
	}

	if avgPing < 0 {
		return false, ewrap.Wrap(sentinel.ErrNegativePing, "avgPing")
	}

	d.locks.Lock(id)
	defer d.locks.Unlock(id)

	r := d.fetch(ctx, id)
	if r == nil {
		return false, nil
	}

	now := time.Now().UTC()

	d.mu.Lock()
	r.AvgPing = avgPing
	r.LastPingUpdate = now
	r.LastMutation = now
	snapshot := r.Clone()
	d.mu.Unlock()

	ev := room.NewEvent(room.EventPingUpdated, id, string(d.instanceID))
	ev.AvgPing = avgPing
	ev.Timestamp = now

	d.enqueueSave(snapshot)
	d.enqueuePublish(ev)

	d.sink.WritePoint(ctx, metrics.Point{
		Measurement: metrics.MeasurementPingUpdate,
		Tags:        map[string]string{"room_id": id, "instance": string(d.instanceID)},
		Fields:      map[string]any{"avg_ping": avgPing, "member_count": snapshot.MemberCount},
		Time:        now,
	})

	return true, nil
}

// Stats implements Service.
func (d *Directory) Stats(_ context.Context) Stats {
	d.mu.RLock()

	members := 0
	for _, r := range d.rooms {
		members += r.MemberCount
	}

	stats := Stats{
		InstanceID: string(d.instanceID),
		RoomCount:  len(d.rooms),
	}
	d.mu.RUnlock()

	stats.MemberTotal = members

	if d.storeBreaker != nil {
		stats.Breakers = append(stats.Breakers, d.storeBreaker.GetStatus())
	}

	for _, cb := range d.extraBreakers {
		stats.Breakers = append(stats.Breakers, cb.GetStatus())
	}

	return stats
}

// Apply implements replication.Applier. Events lose the last-write-wins
// comparison against the cached copy's last mutation and are dropped; this
// also makes redelivered same-origin events harmless.
func (d *Directory) Apply(ev room.Event) {
	d.locks.Lock(ev.RoomID)
	defer d.locks.Unlock(ev.RoomID)

	d.mu.Lock()
	defer d.mu.Unlock()

	local := d.rooms[ev.RoomID]

	if local != nil && !ev.Timestamp.After(local.LastMutation) {
		d.logger.Debug("stale replication event dropped",
			zap.String("roomId", ev.RoomID),
			zap.String("kind", string(ev.Kind)),
		)

		return
	}

	switch ev.Kind {
	case room.EventCreated, room.EventUpdated:
		incoming := ev.Room.Clone()
		incoming.MemberCount = len(incoming.Members)
		d.rooms[ev.RoomID] = incoming
	case room.EventDeleted:
		delete(d.rooms, ev.RoomID)
	case room.EventPingUpdated:
		if local == nil {
			return
		}

		local.AvgPing = ev.AvgPing
		local.LastPingUpdate = ev.Timestamp
		local.LastMutation = ev.Timestamp
	}
}

// fetch returns the live cache entry for id, loading it from the store on a
// miss. Callers must hold the keyed lock for id.
func (d *Directory) fetch(ctx context.Context, id string) *room.Room {
	d.mu.RLock()
	r := d.rooms[id]
	d.mu.RUnlock()

	if r != nil {
		return r
	}

	upstream, err := d.loadUpstream(ctx, id)
	if err != nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if cur := d.rooms[id]; cur != nil {
		return cur
	}

	d.rooms[id] = upstream

	return upstream
}

// adopt inserts an upstream snapshot unless a newer local copy exists.
func (d *Directory) adopt(upstream *room.Room) {
	d.locks.Lock(upstream.ID)
	defer d.locks.Unlock(upstream.ID)

	d.mu.Lock()
	defer d.mu.Unlock()

	if cur := d.rooms[upstream.ID]; cur != nil && !upstream.LastMutation.After(cur.LastMutation) {
		return
	}

	d.rooms[upstream.ID] = upstream
}

func (d *Directory) evict(id string) {
	d.locks.Lock(id)
	defer d.locks.Unlock(id)

	d.mu.Lock()
	delete(d.rooms, id)
	d.mu.Unlock()

	d.logger.Debug("expired room evicted", zap.String("roomId", id))
}

func (d *Directory) propagate(kind room.EventKind, snapshot *room.Room) {
	d.enqueueSave(snapshot)
	d.enqueuePublish(room.NewRoomEvent(kind, snapshot, string(d.instanceID)))
}

func (d *Directory) propagateDelete(id string) {
	d.queue.Enqueue(func(ctx context.Context) error {
		err := d.guarded(ctx, func(ctx context.Context) error {
			return d.store.Delete(ctx, id)
		})
		if err != nil {
			return ewrap.Wrap(err, "delete room "+id)
		}

		return nil
	})

	d.enqueuePublish(room.NewEvent(room.EventDeleted, id, string(d.instanceID)))
}

func (d *Directory) enqueueSave(snapshot *room.Room) {
	d.queue.Enqueue(func(ctx context.Context) error {
		err := d.guarded(ctx, func(ctx context.Context) error {
			return d.store.Save(ctx, snapshot)
		})
		if err != nil {
			return ewrap.Wrap(err, "persist room "+snapshot.ID)
		}

		return nil
	})
}

func (d *Directory) enqueuePublish(ev room.Event) {
	if d.bridge == nil {
		return
	}

	d.queue.Enqueue(func(ctx context.Context) error {
		return d.bridge.Publish(ctx, ev)
	})
}

func (d *Directory) loadUpstream(ctx context.Context, id string) (*room.Room, error) {
	var (
		loaded   *room.Room
		notFound bool
	)

	// An absent room is a valid answer, not a dependency failure; it must not
	// count toward tripping the breaker.
	err := d.guarded(ctx, func(ctx context.Context) error {
		r, err := d.store.Load(ctx, id)
		if errors.Is(err, sentinel.ErrRoomNotFound) {
			notFound = true

			return nil
		}

		if err != nil {
			return err
		}

		loaded = r

		return nil
	})
	if err != nil {
		return nil, err
	}

	if notFound {
		return nil, sentinel.ErrRoomNotFound
	}

	return loaded, nil
}

func (d *Directory) loadAllUpstream(ctx context.Context) ([]*room.Room, error) {
	var loaded []*room.Room

	err := d.guarded(ctx, func(ctx context.Context) error {
		rooms, err := d.store.LoadAll(ctx)
		if err != nil {
			return err
		}

		loaded = rooms

		return nil
	})
	if err != nil {
		return nil, err
	}

	return loaded, nil
}

func (d *Directory) guarded(ctx context.Context, op breaker.Operation) error {
	if d.storeBreaker == nil {
		return op(ctx)
	}

	return d.storeBreaker.Execute(ctx, op)
}
