// Package bus abstracts the publish/subscribe fabric carrying replication
// events between instances. The bus is best-effort: there is no delivery
// guarantee to a disconnected subscriber and no replay, which is why instances
// bulk-load from the store snapshot at startup.
package bus

import "context"

// Handler consumes one inbound message. Implementations must never panic the
// subscriber loop; malformed payloads are the handler's problem to drop.
type Handler func(channel string, payload []byte)

// Bus publishes text-encoded messages on named channels and delivers inbound
// messages to a single handler.
type Bus interface {
	// Publish sends payload on the named channel.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe registers the handler for the channels and starts consuming in
	// the background until the context is canceled.
	Subscribe(ctx context.Context, channels []string, handler Handler) error
	// Close tears down the underlying connections.
	Close() error
}
