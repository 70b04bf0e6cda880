// Package sentinel provides standardized error definitions for the roomcast system.
// This package centralizes the error taxonomy used across the room coordination
// components, ensuring consistent error handling and messaging throughout the
// application.
//
// The taxonomy distinguishes three families of failures:
// - Validation errors (bad input), returned synchronously and never retried
// - Not-found conditions, returned as explicit empty results
// - Dependency errors (store/bus), always routed through a circuit breaker
//
// All errors are created using the ewrap package to provide enhanced error
// wrapping and context capabilities.
package sentinel

import (
	"github.com/hyp3rd/ewrap"
)

var (
	// ErrInvalidRoomName is returned when a room name is empty after trimming or
	// exceeds the maximum length.
	ErrInvalidRoomName = ewrap.New("invalid room name")

	// ErrNegativePing is returned when a ping sample below zero is submitted.
	ErrNegativePing = ewrap.New("ping cannot be negative")

	// ErrRoomNotFound is returned when a room id is not present in the directory
	// or the backing store.
	ErrRoomNotFound = ewrap.New("room not found")

	// ErrBreakerOpen is returned when a circuit breaker rejects a call without
	// invoking the wrapped operation. It is distinguishable from the underlying
	// dependency error so callers can tell a degraded dependency from a failed call.
	ErrBreakerOpen = ewrap.New("circuit breaker is open")

	// ErrMalformedEvent is returned when an inbound replication event cannot be
	// decoded or is missing required fields for its kind.
	ErrMalformedEvent = ewrap.New("malformed replication event")

	// ErrUnknownEventKind is returned when a replication event carries a kind
	// outside the closed set.
	ErrUnknownEventKind = ewrap.New("unknown replication event kind")

	// ErrNilClient is returned when a nil client is passed to a component.
	ErrNilClient = ewrap.New("nil client")

	// ErrNilStore is returned when a nil store is passed to a component.
	ErrNilStore = ewrap.New("nil store")

	// ErrNilBus is returned when a nil bus is passed to a component.
	ErrNilBus = ewrap.New("nil bus")

	// ErrInvalidShardCount is returned when a shard router is built with fewer
	// than one shard.
	ErrInvalidShardCount = ewrap.New("shard count must be positive")

	// ErrShardUnavailable is returned when a single shard call fails inside a
	// scatter-gather query. The query itself degrades to a partial result.
	ErrShardUnavailable = ewrap.New("shard unavailable")

	// ErrParamCannotBeEmpty is returned when a parameter cannot be empty.
	ErrParamCannotBeEmpty = ewrap.New("param cannot be empty")

	// ErrSerializerNotFound is returned when a serializer is not found.
	ErrSerializerNotFound = ewrap.New("serializer not found")

	// ErrTimeoutOrCanceled is returned when a timeout or cancellation occurs.
	ErrTimeoutOrCanceled = ewrap.New("the operation timed out or was canceled")

	// ErrHTTPShutdownTimeout is returned when the HTTP server fails to shut down
	// before the context deadline.
	ErrHTTPShutdownTimeout = ewrap.New("http shutdown timeout")
)
