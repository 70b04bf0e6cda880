package bus

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hyp3rd/ewrap"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyp3rd/roomcast/internal/sentinel"
)

const initialReconnectInterval = 500 * time.Millisecond

// RedisBus implements Bus over Redis pub/sub. A dedicated client should be
// used for subscribing, since a subscribed Redis connection cannot issue other
// commands.
type RedisBus struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// RedisBusOption configures a RedisBus.
type RedisBusOption func(*RedisBus)

// WithLogger sets the reconnect/drop logger.
func WithLogger(logger *zap.Logger) RedisBusOption {
	return func(b *RedisBus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewRedisBus creates a bus bound to an existing Redis client.
func NewRedisBus(client redis.UniversalClient, opts ...RedisBusOption) (*RedisBus, error) {
	if client == nil {
		return nil, sentinel.ErrNilClient
	}

	b := &RedisBus{client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Publish sends payload on the named channel.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	err := b.client.Publish(ctx, channel, payload).Err()
	if err != nil {
		return ewrap.Wrap(err, "publish "+channel)
	}

	return nil
}

// Subscribe starts the background consume loop. The loop re-establishes the
// subscription with exponential backoff after connection loss and only exits
// when the context is canceled.
func (b *RedisBus) Subscribe(ctx context.Context, channels []string, handler Handler) error {
	if len(channels) == 0 {
		return ewrap.Wrap(sentinel.ErrParamCannotBeEmpty, "channels")
	}

	go b.consumeLoop(ctx, channels, handler)

	return nil
}

// Close releases the underlying client connection.
func (b *RedisBus) Close() error {
	err := b.client.Close()
	if err != nil {
		return ewrap.Wrap(err, "close bus client")
	}

	return nil
}

func (b *RedisBus) consumeLoop(ctx context.Context, channels []string, handler Handler) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialReconnectInterval
	bo.MaxElapsedTime = 0 // retry forever

	for {
		pubsub := b.client.Subscribe(ctx, channels...)

		_, err := pubsub.Receive(ctx)
		if err == nil {
			bo.Reset()
			b.drain(ctx, pubsub, handler)
		} else {
			b.logger.Warn("bus subscribe failed", zap.Error(err))
		}

		_ = pubsub.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// drain delivers messages until the channel closes (connection loss) or the
// context is canceled.
func (b *RedisBus) drain(ctx context.Context, pubsub *redis.PubSub, handler Handler) {
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			handler(msg.Channel, []byte(msg.Payload))
		}
	}
}
