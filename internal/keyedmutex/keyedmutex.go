// Package keyedmutex provides a striped mutex keyed by string. It is the
// serialization point for per-room mutations: two operations on the same room id
// always contend on the same stripe, so their read-modify-write sequences cannot
// interleave across the suspension points of store and bus calls.
package keyedmutex

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultStripes = 64

// KeyedMutex is a fixed set of mutex stripes addressed by key hash. Distinct
// keys may share a stripe; the same key never spans two.
type KeyedMutex struct {
	stripes []sync.Mutex
}

// Option configures a KeyedMutex.
type Option func(*KeyedMutex)

// WithStripes sets the number of stripes (min 1).
func WithStripes(n int) Option {
	return func(km *KeyedMutex) {
		if n > 0 {
			km.stripes = make([]sync.Mutex, n)
		}
	}
}

// New creates a KeyedMutex with the default stripe count overridden by options.
func New(opts ...Option) *KeyedMutex {
	km := &KeyedMutex{stripes: make([]sync.Mutex, defaultStripes)}
	for _, opt := range opts {
		opt(km)
	}

	return km
}

// Lock acquires the stripe for key.
func (km *KeyedMutex) Lock(key string) {
	km.stripes[km.stripeFor(key)].Lock()
}

// Unlock releases the stripe for key.
func (km *KeyedMutex) Unlock(key string) {
	km.stripes[km.stripeFor(key)].Unlock()
}

func (km *KeyedMutex) stripeFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(km.stripes)))
}
