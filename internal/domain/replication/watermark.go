package replication

import (
	"context"
	"fmt"
	"time"
)

// Watermarks хранит по каждой таблице момент последнего успешного pull.
// Значения живут в локальной базе, движок читает и пишет их один раз за цикл.
type Watermarks struct {
	store LocalStore
}

func NewWatermarks(store LocalStore) *Watermarks {
	return &Watermarks{store: store}
}

// Get читает водяной знак таблицы
func (w *Watermarks) Get(ctx context.Context, table string) (TableSyncState, error) {
	at, ok, err := w.store.GetLastSync(ctx, table)
	if err != nil {
		return TableSyncState{}, fmt.Errorf("get watermark of %s: %w", table, err)
	}

	state := TableSyncState{Table: table, HasWatermark: ok}
	if ok {
		state.Watermark = canonicalTime(at)
	}
	return state, nil
}

// Advance сдвигает водяной знак вперед. Назад он никогда не двигается:
// если at раньше текущего значения, сохраняется текущее.
func (w *Watermarks) Advance(ctx context.Context, prev TableSyncState, at time.Time) (TableSyncState, error) {
	next := canonicalTime(at)
	if prev.HasWatermark && next.Before(prev.Watermark) {
		next = prev.Watermark
	}

	if err := w.store.SetLastSync(ctx, prev.Table, next); err != nil {
		return prev, fmt.Errorf("advance watermark of %s: %w", prev.Table, err)
	}

	return TableSyncState{Table: prev.Table, Watermark: next, HasWatermark: true}, nil
}
