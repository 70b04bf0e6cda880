// Package instance contains primitives for service instance identity. Every
// running process carries a stable instance id that is stamped on the rooms it
// creates and on every replication event it publishes.
package instance

import (
	"encoding/hex"
	"os"

	"github.com/cespare/xxhash/v2"
)

// internal constants.
const (
	idBytes   = 8
	byteShift = 8 // bits per byte for id derivation
)

// ID is a stable identifier for a service instance.
type ID string

// NewID returns the explicit id when provided, otherwise derives a short hex id
// from the host name using xxhash64. Identical hosts derive identical ids, so
// restarts keep their identity.
func NewID(explicit string) ID {
	if explicit != "" {
		return ID(explicit)
	}

	host, err := os.Hostname()
	if err != nil {
		host = "local"
	}

	hv := xxhash.Sum64String(host)

	b := make([]byte, idBytes)
	for i := range idBytes {
		b[i] = byte(hv >> (byteShift * i))
	}

	return ID(hex.EncodeToString(b))
}

// String returns the id as a plain string.
func (id ID) String() string { return string(id) }
