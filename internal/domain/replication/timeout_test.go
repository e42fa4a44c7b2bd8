package replication

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// waitDeadline блокирует вызов мока до отмены контекста вызова
func waitDeadline(args mock.Arguments) {
	ctx := args.Get(0).(context.Context)
	<-ctx.Done()
}

func TestSyncTable_RemoteTimeoutBoundsSelect(t *testing.T) {
	ctx := context.Background()

	local := new(MockLocalStore)
	local.On("TableExists", mock.Anything, "client").Return(true, nil)
	local.On("GetLastSync", mock.Anything, "client").Return(time.Time{}, false, nil)

	remote := new(MockRemoteStore)
	remote.On("Ping", mock.Anything).Return(nil)
	remote.On("Select", mock.Anything, "client", Filter{}).
		Run(waitDeadline).
		Return(nil, context.DeadlineExceeded)

	svc := NewService(local, remote, DefaultRegistry(), nil, &Config{RemoteTimeout: 50 * time.Millisecond})

	started := time.Now()
	res := svc.SyncTable(ctx, "client", 10)

	assert.Less(t, time.Since(started), 5*time.Second)
	assert.False(t, res.Success)
	assert.False(t, res.Offline)
	assert.ErrorIs(t, res.Err, ErrRemoteOperation)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)

	// водяной знак не двигался
	local.AssertNotCalled(t, "SetLastSync", mock.Anything, mock.Anything, mock.Anything)
	local.AssertNotCalled(t, "Transaction", mock.Anything, mock.Anything)
	remote.AssertExpectations(t)
}

func TestSyncTable_ProbeTimeoutMeansOffline(t *testing.T) {
	ctx := context.Background()

	local := new(MockLocalStore)
	local.On("TableExists", mock.Anything, "client").Return(true, nil)

	remote := new(MockRemoteStore)
	remote.On("Ping", mock.Anything).
		Run(waitDeadline).
		Return(context.DeadlineExceeded)

	svc := NewService(local, remote, DefaultRegistry(), nil, &Config{ProbeTimeout: 50 * time.Millisecond})

	started := time.Now()
	res := svc.SyncTable(ctx, "client", 10)

	assert.Less(t, time.Since(started), 5*time.Second)
	assert.False(t, res.Success)
	assert.True(t, res.Offline)
	require.NoError(t, res.Err)

	remote.AssertNotCalled(t, "Select", mock.Anything, mock.Anything, mock.Anything)
	local.AssertNotCalled(t, "GetLastSync", mock.Anything, mock.Anything)
	local.AssertNotCalled(t, "SetLastSync", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, svc.Stats().OfflineCycles)
}
