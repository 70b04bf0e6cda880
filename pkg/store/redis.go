package store

import (
	"context"
	"strconv"
	"time"

	"github.com/hyp3rd/ewrap"
	"github.com/redis/go-redis/v9"

	"github.com/hyp3rd/roomcast/internal/sentinel"
	"github.com/hyp3rd/roomcast/libs/serializer"
	"github.com/hyp3rd/roomcast/pkg/room"
)

// Redis key layout.
const (
	roomKeyPrefix = "room:"
	activeSetKey  = "rooms:active"
)

// RedisStore persists rooms as Redis hashes. Member lists are encoded with the
// injected serializer so the hash stays readable field-by-field.
type RedisStore struct {
	client redis.UniversalClient
	ser    serializer.ISerializer
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithSerializer overrides the member-list serializer (default JSON).
func WithSerializer(ser serializer.ISerializer) RedisOption {
	return func(s *RedisStore) {
		if ser != nil {
			s.ser = ser
		}
	}
}

// NewRedisStore creates a store bound to an existing Redis client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, sentinel.ErrNilClient
	}

	s := &RedisStore{client: client, ser: &serializer.DefaultJSONSerializer{}}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Save upserts the room hash, adds the id to the active set, and refreshes the
// TTL. Refresh-on-write keeps a long-lived active room from silently expiring
// out of the backing store.
func (s *RedisStore) Save(ctx context.Context, r *room.Room) error {
	members, err := s.ser.Marshal(r.Members)
	if err != nil {
		return ewrap.Wrap(err, "encode members")
	}

	fields := map[string]any{
		"id":             r.ID,
		"name":           r.Name,
		"createdAt":      r.CreatedAt.Format(time.RFC3339Nano),
		"createdBy":      r.CreatedBy,
		"members":        string(members),
		"avgPing":        strconv.FormatFloat(r.AvgPing, 'f', -1, 64),
		"memberCount":    strconv.Itoa(r.MemberCount),
		"status":         string(r.Status),
		"originInstance": r.OriginInstance,
		"ttl":            strconv.Itoa(r.TTLSeconds),
		"lastMutation":   r.LastMutation.Format(time.RFC3339Nano),
	}
	if !r.LastPingUpdate.IsZero() {
		fields["lastPingUpdate"] = r.LastPingUpdate.Format(time.RFC3339Nano)
	}

	key := roomKeyPrefix + r.ID

	err = s.client.HSet(ctx, key, fields).Err()
	if err != nil {
		return ewrap.Wrap(err, "hset room")
	}

	err = s.client.SAdd(ctx, activeSetKey, r.ID).Err()
	if err != nil {
		return ewrap.Wrap(err, "register active room")
	}

	err = s.client.Expire(ctx, key, r.TTL()).Err()
	if err != nil {
		return ewrap.Wrap(err, "refresh room ttl")
	}

	return nil
}

// Load fetches a room hash. An empty hash maps to sentinel.ErrRoomNotFound.
func (s *RedisStore) Load(ctx context.Context, id string) (*room.Room, error) {
	data, err := s.client.HGetAll(ctx, roomKeyPrefix+id).Result()
	if err != nil {
		return nil, ewrap.Wrap(err, "hgetall room")
	}

	if len(data) == 0 {
		return nil, ewrap.Wrap(sentinel.ErrRoomNotFound, id)
	}

	return s.decode(data)
}

// Delete removes the hash and the active-set entry.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	err := s.client.Del(ctx, roomKeyPrefix+id).Err()
	if err != nil {
		return ewrap.Wrap(err, "del room")
	}

	err = s.client.SRem(ctx, activeSetKey, id).Err()
	if err != nil {
		return ewrap.Wrap(err, "deregister active room")
	}

	return nil
}

// LoadAll bulk-loads the active room set. Ids whose hash has already expired
// are skipped; the active set self-heals on the next delete.
func (s *RedisStore) LoadAll(ctx context.Context) ([]*room.Room, error) {
	ids, err := s.client.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, ewrap.Wrap(err, "smembers active rooms")
	}

	rooms := make([]*room.Room, 0, len(ids))

	for _, id := range ids {
		r, loadErr := s.Load(ctx, id)
		if loadErr != nil {
			continue // expired or unreadable; skip
		}

		rooms = append(rooms, r)
	}

	return rooms, nil
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	err := s.client.Ping(ctx).Err()
	if err != nil {
		return ewrap.Wrap(err, "redis ping")
	}

	return nil
}

// decode rebuilds a Room from its hash fields. Unparseable numeric fields fall
// back to zero values the way the historical service tolerated them.
func (s *RedisStore) decode(data map[string]string) (*room.Room, error) {
	r := &room.Room{
		ID:             data["id"],
		Name:           data["name"],
		CreatedBy:      data["createdBy"],
		Status:         room.Status(data["status"]),
		OriginInstance: data["originInstance"],
	}

	if r.ID == "" {
		return nil, ewrap.Wrap(sentinel.ErrRoomNotFound, "hash missing id field")
	}

	members := data["members"]
	if members == "" {
		members = "[]"
	}

	err := s.ser.Unmarshal([]byte(members), &r.Members)
	if err != nil {
		return nil, ewrap.Wrap(err, "decode members")
	}

	r.AvgPing, _ = strconv.ParseFloat(data["avgPing"], 64)
	r.MemberCount, _ = strconv.Atoi(data["memberCount"])

	r.TTLSeconds, _ = strconv.Atoi(data["ttl"])
	if r.TTLSeconds == 0 {
		r.TTLSeconds = room.DefaultTTLSeconds
	}

	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, data["createdAt"])
	r.LastMutation, _ = time.Parse(time.RFC3339Nano, data["lastMutation"])

	if v, ok := data["lastPingUpdate"]; ok {
		r.LastPingUpdate, _ = time.Parse(time.RFC3339Nano, v)
	}

	return r, nil
}
