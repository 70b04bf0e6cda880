// Package replication bridges local room mutations onto the pub/sub bus and
// applies inbound peer events to the local directory. Replication is
// best-effort and eventually consistent: when the bus breaker is open,
// publishes are dropped (not queued) and the already-committed local mutation
// stands; cross-instance visibility resumes when the dependency recovers.
package replication

import (
	"context"
	"errors"

	"github.com/hyp3rd/ewrap"
	"go.uber.org/zap"

	"github.com/hyp3rd/roomcast/internal/sentinel"
	"github.com/hyp3rd/roomcast/libs/serializer"
	"github.com/hyp3rd/roomcast/pkg/breaker"
	"github.com/hyp3rd/roomcast/pkg/bus"
	"github.com/hyp3rd/roomcast/pkg/room"
)

// Applier merges one validated remote event into the local room cache. The
// implementation owns the last-write-wins tie-break against its cached state.
type Applier interface {
	Apply(ev room.Event)
}

// Bridge publishes replication events and feeds inbound ones to an Applier.
type Bridge struct {
	bus     bus.Bus
	breaker *breaker.CircuitBreaker
	ser     serializer.ISerializer
	logger  *zap.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithSerializer overrides the event serializer (default JSON; events travel
// the bus as text).
func WithSerializer(ser serializer.ISerializer) Option {
	return func(b *Bridge) {
		if ser != nil {
			b.ser = ser
		}
	}
}

// WithLogger sets the bridge logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a bridge over the bus, guarded by the bus dependency's breaker.
func New(eventBus bus.Bus, busBreaker *breaker.CircuitBreaker, opts ...Option) (*Bridge, error) {
	if eventBus == nil {
		return nil, sentinel.ErrNilBus
	}

	b := &Bridge{
		bus:     eventBus,
		breaker: busBreaker,
		ser:     &serializer.DefaultJSONSerializer{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Publish serializes the event and sends it on the channel named by its kind,
// wrapped by the bus breaker. A breaker-open rejection drops the event and
// logs the degradation; the caller's local mutation is unaffected.
func (b *Bridge) Publish(ctx context.Context, ev room.Event) error {
	payload, err := b.ser.Marshal(ev)
	if err != nil {
		return ewrap.Wrap(err, "encode replication event")
	}

	channel := ev.Kind.Channel()

	op := func(ctx context.Context) error {
		return b.bus.Publish(ctx, channel, payload)
	}

	if b.breaker != nil {
		err = b.breaker.Execute(ctx, op)
	} else {
		err = op(ctx)
	}

	if err != nil {
		if errors.Is(err, sentinel.ErrBreakerOpen) {
			b.logger.Warn("replication event dropped, bus degraded",
				zap.String("channel", channel),
				zap.String("roomId", ev.RoomID),
			)

			return nil
		}

		return ewrap.Wrap(err, "publish "+channel)
	}

	return nil
}

// Start subscribes to every replication channel and applies inbound events
// until the context is canceled. Malformed events are logged and dropped; the
// subscriber loop never raises.
func (b *Bridge) Start(ctx context.Context, applier Applier) error {
	handler := func(channel string, payload []byte) {
		ev, err := room.DecodeEvent(b.ser, payload)
		if err != nil {
			b.logger.Warn("dropping malformed replication event",
				zap.String("channel", channel),
				zap.Error(err),
			)

			return
		}

		applier.Apply(ev)
	}

	err := b.bus.Subscribe(ctx, room.Channels(), handler)
	if err != nil {
		return ewrap.Wrap(err, "subscribe replication channels")
	}

	return nil
}
