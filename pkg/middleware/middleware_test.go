package middleware

import (
	"context"
	"fmt"
	"testing"

	"github.com/longbridgeapp/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyp3rd/roomcast/pkg/directory"
	"github.com/hyp3rd/roomcast/pkg/room"
)

type fakeService struct {
	calls []string
}

func (f *fakeService) CreateRoom(_ context.Context, name, creatorID string) (*room.Room, error) {
	f.calls = append(f.calls, "CreateRoom")

	return room.New(room.NewID(), name, creatorID, "inst-test"), nil
}

func (f *fakeService) GetRoom(_ context.Context, id string) (*room.Room, error) {
	f.calls = append(f.calls, "GetRoom")

	return room.New(id, "fake", "user-1", "inst-test"), nil
}

func (f *fakeService) ListRooms(context.Context) ([]*room.Room, error) {
	f.calls = append(f.calls, "ListRooms")

	return nil, nil
}

func (f *fakeService) JoinRoom(_ context.Context, id, _ string) (*room.Room, error) {
	f.calls = append(f.calls, "JoinRoom")

	return room.New(id, "fake", "user-1", "inst-test"), nil
}

func (f *fakeService) LeaveRoom(context.Context, string, string) (bool, error) {
	f.calls = append(f.calls, "LeaveRoom")

	return true, nil
}

func (f *fakeService) UpdateAvgPing(context.Context, string, float64) (bool, error) {
	f.calls = append(f.calls, "UpdateAvgPing")

	return true, nil
}

func (f *fakeService) Stats(context.Context) directory.Stats {
	f.calls = append(f.calls, "Stats")

	return directory.Stats{InstanceID: "inst-test"}
}

type captureLogger struct {
	lines []string
}

func (l *captureLogger) Printf(format string, v ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func TestLoggingMiddlewareDelegatesAndLogs(t *testing.T) {
	fake := &fakeService{}
	logger := &captureLogger{}
	svc := NewLoggingMiddleware(fake, logger)

	_, err := svc.CreateRoom(context.Background(), "lobby", "user-1")
	require.NoError(t, err)

	_, err = svc.JoinRoom(context.Background(), "room_1_abc", "user-2")
	require.NoError(t, err)

	left, err := svc.LeaveRoom(context.Background(), "room_1_abc", "user-2")
	require.NoError(t, err)
	assert.True(t, left)

	assert.Equal(t, []string{"CreateRoom", "JoinRoom", "LeaveRoom"}, fake.calls)
	assert.True(t, len(logger.lines) >= 6)
}
