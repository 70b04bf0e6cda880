// Package room defines the Room model and the replication event union exchanged
// between instances. A Room is a named, bounded-lifetime group with an ordered,
// duplicate-free member list and a rolling latency aggregate.
package room

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/roomcast/internal/sentinel"
)

// Status represents the lifecycle state of a room.
type Status string

// Room statuses.
const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Model constraints.
const (
	// MaxNameLength is the maximum room name length after trimming.
	MaxNameLength = 50
	// DefaultTTLSeconds is the backing-store expiry applied at creation.
	DefaultTTLSeconds = 86400
)

const idSuffixLen = 9

// Room is the authoritative in-memory representation of a lobby.
// Invariant: MemberCount == len(Members) and Members holds no duplicate ids.
type Room struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"createdAt"`
	CreatedBy      string    `json:"createdBy"`
	Members        []string  `json:"members"`
	AvgPing        float64   `json:"avgPing"`
	MemberCount    int       `json:"memberCount"`
	Status         Status    `json:"status"`
	OriginInstance string    `json:"originInstance"`
	TTLSeconds     int       `json:"ttl"`
	LastPingUpdate time.Time `json:"lastPingUpdate"`
	// LastMutation orders concurrent cross-instance updates (last-write-wins).
	LastMutation time.Time `json:"lastMutation"`
}

// ValidateName trims the candidate name and checks the length bounds.
// It returns the trimmed name.
func ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ewrap.Wrap(sentinel.ErrInvalidRoomName, "empty after trimming")
	}

	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return "", ewrap.Wrap(sentinel.ErrInvalidRoomName, "exceeds 50 characters")
	}

	return trimmed, nil
}

// NewID generates a room id with the historical time-based shape and a
// collision-resistant random suffix derived from a UUIDv4.
func NewID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:idSuffixLen]

	return fmt.Sprintf("room_%d_%s", time.Now().UnixMilli(), suffix)
}

// New initializes an active room with the creator as its only member.
func New(id, name, creatorID string, origin string) *Room {
	now := time.Now().UTC()

	return &Room{
		ID:             id,
		Name:           name,
		CreatedAt:      now,
		CreatedBy:      creatorID,
		Members:        []string{creatorID},
		AvgPing:        0,
		MemberCount:    1,
		Status:         StatusActive,
		OriginInstance: origin,
		TTLSeconds:     DefaultTTLSeconds,
		LastMutation:   now,
	}
}

// HasMember reports whether userID is a member.
func (r *Room) HasMember(userID string) bool {
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}

	return false
}

// AddMember appends userID preserving order and uniqueness. It returns false
// when the user is already a member (idempotent join).
func (r *Room) AddMember(userID string) bool {
	if r.HasMember(userID) {
		return false
	}

	r.Members = append(r.Members, userID)
	r.MemberCount = len(r.Members)

	return true
}

// RemoveMember removes userID if present. It returns false when the user was
// not a member.
func (r *Room) RemoveMember(userID string) bool {
	for i, m := range r.Members {
		if m == userID {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			r.MemberCount = len(r.Members)

			return true
		}
	}

	return false
}

// Empty reports whether the room has no members left.
func (r *Room) Empty() bool { return len(r.Members) == 0 }

// Clone returns a deep copy safe to hand to callers and goroutines.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Members = make([]string, len(r.Members))
	copy(cp.Members, r.Members)

	return &cp
}

// TTL returns the backing-store expiry as a duration.
func (r *Room) TTL() time.Duration { return time.Duration(r.TTLSeconds) * time.Second }
