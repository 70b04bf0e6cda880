// Package shard partitions room and user keys across K independent backend
// stores with a deterministic hash, and provides scatter-gather reads that
// tolerate individual shard failure.
package shard

import (
	"github.com/hyp3rd/roomcast/internal/sentinel"
	"github.com/hyp3rd/roomcast/pkg/breaker"
)

// Router selects a shard index for a key. The mapping is pure: identical key
// and shard count always yield the identical index, across processes and
// restarts. There is no per-process seed.
type Router struct {
	shardCount int
	breakers   []*breaker.CircuitBreaker
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithBreakers attaches one circuit breaker per shard, used by scatter-gather
// queries. The slice length must match the shard count.
func WithBreakers(breakers []*breaker.CircuitBreaker) RouterOption {
	return func(r *Router) { r.breakers = breakers }
}

// NewRouter creates a router over shardCount independent stores.
func NewRouter(shardCount int, opts ...RouterOption) (*Router, error) {
	if shardCount < 1 {
		return nil, sentinel.ErrInvalidShardCount
	}

	r := &Router{shardCount: shardCount}
	for _, opt := range opts {
		opt(r)
	}

	if r.breakers != nil && len(r.breakers) != shardCount {
		return nil, sentinel.ErrInvalidShardCount
	}

	return r, nil
}

// ShardCount returns the number of shards.
func (r *Router) ShardCount() int { return r.shardCount }

// Breaker returns the circuit breaker for one shard, or nil when none are attached.
func (r *Router) Breaker(index int) *breaker.CircuitBreaker {
	if r.breakers == nil || index < 0 || index >= len(r.breakers) {
		return nil
	}

	return r.breakers[index]
}

// ShardFor maps a key to a shard index using a 32-bit rolling hash
// (hash = hash*31 + byte, sign discarded) reduced modulo the shard count.
func (r *Router) ShardFor(key string) int {
	return int(Hash(key) % uint32(r.shardCount))
}

// ShardForRoom maps a room id to its shard.
func (r *Router) ShardForRoom(roomID string) int { return r.ShardFor(roomID) }

// ShardForUser maps a user id to its shard.
func (r *Router) ShardForUser(userID string) int { return r.ShardFor(userID) }

// Hash computes the 32-bit rolling hash over the key's bytes with the sign bit
// discarded. The truncation semantics match the historical implementation.
func Hash(key string) uint32 {
	var h int32

	for i := 0; i < len(key); i++ {
		h = h*31 + int32(key[i])
	}

	if h < 0 {
		return uint32(-h)
	}

	return uint32(h)
}
