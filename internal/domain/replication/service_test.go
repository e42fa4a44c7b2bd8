package replication_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offsync/internal/domain/replication"
)

func TestSyncTable_PushesUnsyncedLocalRecord(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	created := h.clock.Now()
	_, err := h.local.SaveRecord(ctx, "client", replication.Record{"id": 5, "name": "X"})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)

	res := h.service.SyncTable(ctx, "client", 0)

	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.False(t, res.Offline)
	assert.Equal(t, 0, res.Downloaded)
	assert.Equal(t, 1, res.Uploaded)

	remote, ok := h.remote.get("client", 5)
	require.True(t, ok)
	assert.Equal(t, "X", remote["name"])

	local, err := h.local.SelectByID(ctx, "client", "id", 5)
	require.NoError(t, err)
	lastSync, ok := local.LastSync()
	require.True(t, ok)
	assert.False(t, lastSync.Before(created))
	assert.False(t, local.IsUnsynced())
}

func TestSyncTable_Idempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.remote.put("client", replication.Record{"id": 1, "name": "remote", "active": true, "updated_at": h.clock.Now()})
	_, err := h.local.SaveRecord(ctx, "client", replication.Record{"id": 2, "name": "local"})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)

	first := h.service.SyncTable(ctx, "client", 0)
	require.True(t, first.Success, first.Error())
	assert.Equal(t, 1, first.Downloaded)
	assert.Equal(t, 1, first.Uploaded)

	h.clock.Advance(time.Minute)
	second := h.service.SyncTable(ctx, "client", 0)
	require.True(t, second.Success, second.Error())
	assert.Equal(t, 0, second.Downloaded)
	assert.Equal(t, 0, second.Uploaded)
}

func TestSyncTable_PullNormalizesAndStamps(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	updated := h.clock.Now()
	h.remote.put("sale", replication.Record{"id": 1, "paid": true, "delivered": false, "sold_at": updated, "updated_at": updated})
	h.clock.Advance(time.Minute)

	res := h.service.SyncTable(ctx, "sale", 0)
	require.True(t, res.Success, res.Error())
	assert.Equal(t, 1, res.Downloaded)

	rec, err := h.local.SelectByID(ctx, "sale", "id", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec["paid"])
	assert.Equal(t, int64(0), rec["delivered"])
	assert.Equal(t, replication.FormatLocalTime(updated), rec["sold_at"])
	assert.False(t, rec.IsUnsynced())

	state, err := replication.NewWatermarks(h.local).Get(ctx, "sale")
	require.NoError(t, err)
	assert.True(t, state.HasWatermark)
	assert.Equal(t, res.LastSync, state.Watermark)
}

func TestSyncTable_PullKeepsNewerLocalEdit(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.remote.put("client", replication.Record{"id": 1, "name": "old remote", "updated_at": h.clock.Now()})
	h.clock.Advance(time.Minute)
	_, err := h.local.SaveRecord(ctx, "client", replication.Record{"id": 1, "name": "fresh local"})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)

	res := h.service.SyncTable(ctx, "client", 0)
	require.True(t, res.Success, res.Error())

	local, err := h.local.SelectByID(ctx, "client", "id", 1)
	require.NoError(t, err)
	assert.Equal(t, "fresh local", local["name"])

	remote, ok := h.remote.get("client", 1)
	require.True(t, ok)
	assert.Equal(t, "fresh local", remote["name"])
}

func TestSyncTable_BatchesLocalTransactions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.seedUnsynced(t, 250)
	h.clock.Advance(time.Minute)

	res := h.service.SyncTable(ctx, "client", 100)

	require.True(t, res.Success, res.Error())
	assert.Equal(t, 250, res.Uploaded)
	assert.Equal(t, []int{100, 100, 50}, h.local.txns)
	assert.Equal(t, []int{100, 100, 50}, h.remote.upserted)
}

func TestSyncTable_Offline(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.seedUnsynced(t, 3)
	h.remote.pingErr = errors.New("no route to host")

	res := h.service.SyncTable(ctx, "client", 0)

	assert.False(t, res.Success)
	assert.True(t, res.Offline)
	assert.NoError(t, res.Err)
	assert.Empty(t, h.local.txns)

	_, ok, err := h.local.GetLastSync(ctx, "client")
	require.NoError(t, err)
	assert.False(t, ok)

	stats := h.service.Stats()
	assert.Equal(t, 1, stats.OfflineCycles)
	assert.Equal(t, 0, stats.FailedCycles)
}

func TestSyncTable_FailedPushChunkStaysUnsynced(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.seedUnsynced(t, 250)
	h.clock.Advance(time.Minute)
	h.remote.failUpsertAt = 2

	res := h.service.SyncTable(ctx, "client", 100)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, replication.ErrRemoteOperation)
	assert.Equal(t, 150, res.Uploaded)

	pending, err := h.local.GetUnsyncedRecords(ctx, "client")
	require.NoError(t, err)
	assert.Len(t, pending, 100)

	// pull прошел целиком, значит водяной знак сдвинут
	_, ok, err := h.local.GetLastSync(ctx, "client")
	require.NoError(t, err)
	assert.True(t, ok)

	h.clock.Advance(time.Minute)
	retry := h.service.SyncTable(ctx, "client", 100)
	require.True(t, retry.Success, retry.Error())
	assert.Equal(t, 100, retry.Uploaded)
}

func TestSyncTable_PullFailureKeepsWatermark(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.remote.selectErr = errors.New("statement timeout")

	res := h.service.SyncTable(ctx, "client", 0)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, replication.ErrRemoteOperation)

	_, ok, err := h.local.GetLastSync(ctx, "client")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSyncTable_InvalidInput(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		table   string
		batch   int
		wantErr error
	}{
		{name: "negative batch", table: "client", batch: -1, wantErr: replication.ErrInvalidBatchSize},
		{name: "unknown table", table: "ghost", batch: 0, wantErr: replication.ErrTableNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.service.SyncTable(ctx, tt.table, tt.batch)
			assert.False(t, res.Success)
			assert.ErrorIs(t, res.Err, tt.wantErr)
		})
	}
}

func TestSyncTable_WatermarkMonotonic(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.clock.Advance(time.Hour)
	first := h.service.SyncTable(ctx, "product", 0)
	require.True(t, first.Success, first.Error())

	// часы устройства ушли назад
	h.clock.Advance(-30 * time.Minute)
	second := h.service.SyncTable(ctx, "product", 0)
	require.True(t, second.Success, second.Error())

	assert.False(t, second.LastSync.Before(first.LastSync))
}

func TestSyncTable_CancelledContext(t *testing.T) {
	h := newHarness(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.service.SyncTable(ctx, "client", 0)

	assert.False(t, res.Success)
	assert.False(t, res.Offline)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestFullSync_IsolatesPanicsAndFailures(t *testing.T) {
	h := newHarness(t, &replication.Config{Tables: []string{"client", "ghost", "product", "sale"}})
	ctx := context.Background()

	h.remote.panicOn = "product"

	results := h.service.FullSync(ctx)

	require.Len(t, results, 4)
	assert.True(t, results["client"].Success, results["client"].Error())
	assert.ErrorIs(t, results["ghost"].Err, replication.ErrTableNotFound)
	assert.False(t, results["product"].Success)
	assert.Contains(t, results["product"].Error(), "panicked")
	assert.True(t, results["sale"].Success, results["sale"].Error())

	stats := h.service.Stats()
	assert.Equal(t, 4, stats.TotalCycles)
	assert.Equal(t, 2, stats.FailedCycles)

	// блокировка таблицы освобождена несмотря на панику
	h.remote.panicOn = ""
	again := h.service.SyncTable(ctx, "product", 0)
	assert.True(t, again.Success, again.Error())
}

func TestFullSync_DefaultOrderFromRegistry(t *testing.T) {
	h := newHarness(t, nil)

	results := h.service.FullSync(context.Background())

	assert.Len(t, results, len(replication.DefaultRegistry().Tables()))
	for table, res := range results {
		assert.True(t, res.Success, "%s: %s", table, res.Error())
	}
}

func TestIncrementalSync_DiscoversLocalTables(t *testing.T) {
	h := newHarness(t, nil)

	results, err := h.service.IncrementalSync(context.Background())
	require.NoError(t, err)

	assert.Len(t, results, 4)
	assert.Contains(t, results, "sale_item")
	assert.NotContains(t, results, "_sync_state")
	assert.NotContains(t, results, "schema_migrations")
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.service.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return h.service.Stats().TotalCycles >= 8
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("auto sync did not stop")
	}
}

func TestSyncTable_RemoteClockAheadPullsOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	// часы сервера спешат на час
	ahead := h.clock.Now().Add(time.Hour)
	h.remote.put("client", replication.Record{"id": 1, "name": "from the future", "updated_at": ahead})

	downloaded := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		h.clock.Advance(time.Minute)
		res := h.service.SyncTable(ctx, "client", 0)
		require.True(t, res.Success, res.Error())
		downloaded = append(downloaded, res.Downloaded)
	}

	assert.Equal(t, []int{1, 0, 0}, downloaded)

	state, err := replication.NewWatermarks(h.local).Get(ctx, "client")
	require.NoError(t, err)
	assert.True(t, state.Watermark.Equal(ahead.UTC().Truncate(time.Microsecond)))
}
