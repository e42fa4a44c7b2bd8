package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/exp/slog"

	"offsync/internal/app/client/config"
	"offsync/internal/domain/replication"
	"offsync/internal/infrastructure/storage/postgres"
	"offsync/internal/infrastructure/storage/sqlite"
)

// App клиент на устройстве: локальная база, удаленное хранилище и движок синхронизации
type App struct {
	config     *config.Config
	log        *slog.Logger
	registry   *replication.Registry
	local      *sqlite.Store
	remote     replication.RemoteStore
	sync       *replication.Service
	watermarks *replication.Watermarks
	closers    []func() error
}

// TableStatus состояние таблицы для команды status
type TableStatus struct {
	Table        string    `json:"table"`
	Watermark    time.Time `json:"watermark,omitempty"`
	HasWatermark bool      `json:"has_watermark"`
	Unsynced     int       `json:"unsynced"`
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	registry := replication.DefaultRegistry()

	local, err := sqlite.Open(ctx, cfg.DataPath, registry, log)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации локального хранилища: %w", err)
	}

	app := &App{
		config:   cfg,
		log:      log,
		registry: registry,
		local:    local,
		closers:  []func() error{local.Close},
	}

	remote, err := app.newRemote(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	return app.with(remote), nil
}

// NewWithStores собирает клиент из готовых хранилищ
func NewWithStores(cfg *config.Config, local *sqlite.Store, remote replication.RemoteStore, log *slog.Logger) *App {
	app := &App{
		config:   cfg,
		log:      log,
		registry: replication.DefaultRegistry(),
		local:    local,
	}
	return app.with(remote)
}

func (a *App) with(remote replication.RemoteStore) *App {
	a.remote = remote
	a.sync = replication.NewService(a.local, remote, a.registry, a.log, a.config.Replication())
	a.watermarks = replication.NewWatermarks(a.local)
	return a
}

func (a *App) newRemote(ctx context.Context) (replication.RemoteStore, error) {
	switch a.config.RemoteDriver {
	case config.DriverPostgres:
		storage, err := postgres.Connect(ctx, a.config.RemoteDatabaseURI, "", a.log)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к удаленной базе: %w", err)
		}
		a.closers = append(a.closers, storage.Close)
		return postgres.NewRemoteStore(storage.Pool(), a.registry, a.log), nil
	default:
		httpCl, err := NewHTTPClient(a.config, a.log)
		if err != nil {
			return nil, fmt.Errorf("ошибка инициализации HTTP клиента: %w", err)
		}
		return httpCl, nil
	}
}

// Close закрывает хранилища в обратном порядке
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// CheckConnection проверяет соединение с удаленным хранилищем
func (a *App) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.sync.Config().ProbeTimeout)
	defer cancel()

	return a.remote.Ping(ctx)
}

// SyncTable один цикл по таблице; batch 0 берет размер из конфигурации
func (a *App) SyncTable(ctx context.Context, table string, batch int) *replication.SyncResult {
	if batch == 0 {
		batch = a.config.SyncBatchSize
	}
	return a.sync.SyncTable(ctx, table, batch)
}

// Sync синхронизирует все таблицы реестра
func (a *App) Sync(ctx context.Context) map[string]*replication.SyncResult {
	return a.sync.FullSync(ctx)
}

// SyncIncremental синхронизирует таблицы, которые есть в локальной базе
func (a *App) SyncIncremental(ctx context.Context) (map[string]*replication.SyncResult, error) {
	return a.sync.IncrementalSync(ctx)
}

// Resolve разрешает конфликты по таблице
func (a *App) Resolve(ctx context.Context, table string) (*replication.ResolveResult, error) {
	return a.sync.ResolveConflicts(ctx, table)
}

// Watch запускает автоматическую синхронизацию до отмены ctx
func (a *App) Watch(ctx context.Context) {
	a.log.Info("Автосинхронизация запущена",
		"driver", a.config.RemoteDriver,
		"interval", a.config.Interval(),
	)
	a.sync.Run(ctx, a.config.Interval())
}

// Stats статистика синхронизации текущего процесса
func (a *App) Stats() replication.Stats {
	return a.sync.Stats()
}

// Status водяные знаки и число несинхронизированных записей по таблицам
func (a *App) Status(ctx context.Context) ([]TableStatus, error) {
	tables, err := a.local.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(tables)

	out := make([]TableStatus, 0, len(tables))
	for _, table := range tables {
		if !a.registry.Has(table) {
			continue
		}

		state, err := a.watermarks.Get(ctx, table)
		if err != nil {
			return nil, err
		}
		unsynced, err := a.local.GetUnsyncedRecords(ctx, table)
		if err != nil {
			return nil, err
		}

		out = append(out, TableStatus{
			Table:        table,
			Watermark:    state.Watermark,
			HasWatermark: state.HasWatermark,
			Unsynced:     len(unsynced),
		})
	}
	return out, nil
}

// SaveRecord локальная правка записи, уйдет на сервер при следующем push
func (a *App) SaveRecord(ctx context.Context, table string, rec replication.Record) (replication.Record, error) {
	if !a.registry.Has(table) {
		return nil, fmt.Errorf("%w: %s", replication.ErrTableNotFound, table)
	}
	return a.local.SaveRecord(ctx, table, rec)
}

// List записи локальной таблицы
func (a *App) List(ctx context.Context, table string) ([]replication.Record, error) {
	return a.local.List(ctx, table)
}

// PrimaryKey первичный ключ таблицы по реестру
func (a *App) PrimaryKey(table string) string {
	schema, _ := a.registry.Lookup(table)
	return schema.PrimaryKey
}

// Tables таблицы реестра
func (a *App) Tables() []string {
	return a.registry.Tables()
}
