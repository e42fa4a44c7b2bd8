package replication_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"offsync/internal/domain/replication"
	"offsync/internal/infrastructure/storage/sqlite"
)

// memoryRemote хранилище сервера в памяти
type memoryRemote struct {
	mu       sync.Mutex
	tables   map[string]map[string]replication.Record
	registry *replication.Registry

	pingErr      error
	selectErr    error
	failUpsertAt int // номер вызова Upsert (с 1), который вернет ошибку
	panicOn      string

	upsertCalls int
	upserted    []int
}

func newMemoryRemote() *memoryRemote {
	return &memoryRemote{
		tables:   make(map[string]map[string]replication.Record),
		registry: replication.DefaultRegistry(),
	}
}

func (m *memoryRemote) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *memoryRemote) Select(ctx context.Context, table string, filter replication.Filter) ([]replication.Record, error) {
	if table == m.panicOn {
		panic("remote exploded on " + table)
	}
	if m.selectErr != nil {
		return nil, m.selectErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []replication.Record
	for _, rec := range m.tables[table] {
		if filter.KeyField != "" && fmt.Sprint(rec[filter.KeyField]) != fmt.Sprint(filter.KeyValue) {
			continue
		}
		if !filter.UpdatedAfter.IsZero() {
			at, ok := rec.UpdatedAt()
			if !ok || !at.After(filter.UpdatedAfter) {
				continue
			}
		}
		out = append(out, rec.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(out[i]["id"]) < fmt.Sprint(out[j]["id"])
	})
	return out, nil
}

func (m *memoryRemote) Upsert(ctx context.Context, table, pk string, records []replication.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upsertCalls++
	if m.upsertCalls == m.failUpsertAt {
		return errors.New("remote rejected batch")
	}

	rows, ok := m.tables[table]
	if !ok {
		rows = make(map[string]replication.Record)
		m.tables[table] = rows
	}
	for _, rec := range records {
		rows[fmt.Sprint(rec[pk])] = m.registry.Normalize(table, rec)
	}
	m.upserted = append(m.upserted, len(records))
	return nil
}

func (m *memoryRemote) put(table string, rec replication.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tables[table]
	if !ok {
		rows = make(map[string]replication.Record)
		m.tables[table] = rows
	}
	rows[fmt.Sprint(rec["id"])] = m.registry.Normalize(table, rec)
}

func (m *memoryRemote) get(table string, id any) (replication.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tables[table][fmt.Sprint(id)]
	return rec, ok
}

// countingStore считает локальные транзакции и их размеры
type countingStore struct {
	*sqlite.Store

	mu   sync.Mutex
	txns []int
}

func (c *countingStore) Transaction(ctx context.Context, stmts []replication.Statement) error {
	c.mu.Lock()
	c.txns = append(c.txns, len(stmts))
	c.mu.Unlock()
	return c.Store.Transaction(ctx, stmts)
}

// clock ручные часы для тестов
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type harness struct {
	local   *countingStore
	remote  *memoryRemote
	service *replication.Service
	clock   *clock
}

func newHarness(t *testing.T, cfg *replication.Config) *harness {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "local.db"), nil, log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := &clock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	store.SetClock(clk.Now)

	local := &countingStore{Store: store}
	remote := newMemoryRemote()

	svc := replication.NewService(local, remote, replication.DefaultRegistry(), log, cfg)
	svc.SetClock(clk.Now)

	return &harness{local: local, remote: remote, service: svc, clock: clk}
}

// seedUnsynced вставляет n несинхронизированных клиентов одной транзакцией в обход счетчика
func (h *harness) seedUnsynced(t *testing.T, n int) {
	t.Helper()

	stmts := make([]replication.Statement, 0, n)
	at := replication.FormatLocalTime(h.clock.Now())
	for i := 1; i <= n; i++ {
		stmts = append(stmts, replication.Statement{
			Query: `INSERT INTO client (id, name, updated_at) VALUES (?, ?, ?)`,
			Args:  []any{i, fmt.Sprintf("client-%d", i), at},
		})
	}
	require.NoError(t, h.local.Store.Transaction(context.Background(), stmts))
}
