// Package middleware provides decorators for the directory service. Each
// middleware wraps a directory.Service and adds one cross-cutting concern,
// keeping the registry itself free of transport and observability code.
package middleware

import (
	"context"
	"time"

	"github.com/hyp3rd/roomcast/pkg/directory"
	"github.com/hyp3rd/roomcast/pkg/room"
)

// Logger describes a logging interface allowing to implement different external, or custom logger.
// Tested with Uber's Zap sugared logger, but should work with any other logger that matches the interface.
type Logger interface {
	Printf(format string, v ...any)
}

// LoggingMiddleware logs every service call and its execution time.
type LoggingMiddleware struct {
	next   directory.Service
	logger Logger
}

// NewLoggingMiddleware returns a new LoggingMiddleware.
func NewLoggingMiddleware(next directory.Service, logger Logger) directory.Service {
	return &LoggingMiddleware{next: next, logger: logger}
}

// CreateRoom logs the time it takes to execute the next middleware.
func (mw *LoggingMiddleware) CreateRoom(ctx context.Context, name, creatorID string) (*room.Room, error) {
	defer func(begin time.Time) {
		mw.logger.Printf("method CreateRoom took: %s", time.Since(begin))
	}(time.Now())

	mw.logger.Printf("CreateRoom method invoked with name: %s creator: %s", name, creatorID)

	return mw.next.CreateRoom(ctx, name, creatorID)
}

// GetRoom logs the time it takes to execute the next middleware.
func (mw *LoggingMiddleware) GetRoom(ctx context.Context, id string) (*room.Room, error) {
	defer func(begin time.Time) {
		mw.logger.Printf("method GetRoom took: %s", time.Since(begin))
	}(time.Now())

	mw.logger.Printf("GetRoom method invoked with id: %s", id)

	return mw.next.GetRoom(ctx, id)
}

// ListRooms logs the time it takes to execute the next middleware.
func (mw *LoggingMiddleware) ListRooms(ctx context.Context) ([]*room.Room, error) {
	defer func(begin time.Time) {
		mw.logger.Printf("method ListRooms took: %s", time.Since(begin))
	}(time.Now())

	mw.logger.Printf("ListRooms method invoked")

	return mw.next.ListRooms(ctx)
}

// JoinRoom logs the time it takes to execute the next middleware.
func (mw *LoggingMiddleware) JoinRoom(ctx context.Context, id, userID string) (*room.Room, error) {
	defer func(begin time.Time) {
		mw.logger.Printf("method JoinRoom took: %s", time.Since(begin))
	}(time.Now())

	mw.logger.Printf("JoinRoom method invoked with id: %s user: %s", id, userID)

	return mw.next.JoinRoom(ctx, id, userID)
}

// LeaveRoom logs the time it takes to execute the next middleware.
func (mw *LoggingMiddleware) LeaveRoom(ctx context.Context, id, userID string) (bool, error) {
	defer func(begin time.Time) {
		mw.logger.Printf("method LeaveRoom took: %s", time.Since(begin))
	}(time.Now())

	mw.logger.Printf("LeaveRoom method invoked with id: %s user: %s", id, userID)

	return mw.next.LeaveRoom(ctx, id, userID)
}

// UpdateAvgPing logs the time it takes to execute the next middleware.
func (mw *LoggingMiddleware) UpdateAvgPing(ctx context.Context, id string, avgPing float64) (bool, error) {
	defer func(begin time.Time) {
		mw.logger.Printf("method UpdateAvgPing took: %s", time.Since(begin))
	}(time.Now())

	mw.logger.Printf("UpdateAvgPing method invoked with id: %s avgPing: %f", id, avgPing)

	return mw.next.UpdateAvgPing(ctx, id, avgPing)
}

// Stats passes through to the next middleware.
func (mw *LoggingMiddleware) Stats(ctx context.Context) directory.Stats {
	return mw.next.Stats(ctx)
}
