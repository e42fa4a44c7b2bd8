package replication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/semaphore"
)

// Config параметры движка синхронизации
type Config struct {
	// BatchSize размер пакета для локальных транзакций и удаленных вызовов
	BatchSize int
	// ProbeTimeout ограничение на проверку связи
	ProbeTimeout time.Duration
	// RemoteTimeout ограничение на каждый удаленный вызов
	RemoteTimeout time.Duration
	// WaitInFlight ждать завершения текущего цикла по таблице вместо отказа
	WaitInFlight bool
	// Tables порядок FullSync; по умолчанию порядок реестра
	Tables []string
}

// DefaultConfig значения по умолчанию
func DefaultConfig() *Config {
	return &Config{
		BatchSize:     100,
		ProbeTimeout:  5 * time.Second,
		RemoteTimeout: 30 * time.Second,
	}
}

// Service движок репликации между локальной и удаленной базами.
// Собственного состояния, кроме статистики и блокировок, не хранит.
type Service struct {
	local      LocalStore
	remote     RemoteStore
	registry   *Registry
	watermarks *Watermarks
	log        *slog.Logger
	config     *Config
	now        func() time.Time

	mu     sync.Mutex
	guards map[string]*semaphore.Weighted
	stats  Stats
}

// NewService создает движок синхронизации. Пустые registry, log и config заменяются значениями по умолчанию.
func NewService(local LocalStore, remote RemoteStore, registry *Registry, log *slog.Logger, config *Config) *Service {
	cfg := DefaultConfig()
	if config != nil {
		merged := *config
		if merged.BatchSize <= 0 {
			merged.BatchSize = cfg.BatchSize
		}
		if merged.ProbeTimeout <= 0 {
			merged.ProbeTimeout = cfg.ProbeTimeout
		}
		if merged.RemoteTimeout <= 0 {
			merged.RemoteTimeout = cfg.RemoteTimeout
		}
		cfg = &merged
	}
	if registry == nil {
		registry = MustRegistry()
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Service{
		local:      local,
		remote:     remote,
		registry:   registry,
		watermarks: NewWatermarks(local),
		log:        log.With("component", "replication"),
		config:     cfg,
		now:        time.Now,
		guards:     make(map[string]*semaphore.Weighted),
	}
}

// SetClock подменяет источник времени
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Config действующие параметры после подстановки значений по умолчанию
func (s *Service) Config() Config {
	return *s.config
}

// Stats возвращает копию накопленной статистики
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// SyncTable выполняет один цикл синхронизации таблицы: pull новых записей с сервера,
// push локальных несинхронизированных, сдвиг водяного знака. Ошибок не возвращает,
// результат всегда описан в SyncResult. batchSize 0 означает размер по умолчанию.
func (s *Service) SyncTable(ctx context.Context, table string, batchSize int) *SyncResult {
	started := time.Now()
	result := s.syncTable(ctx, table, batchSize)
	result.Duration = time.Since(started)
	s.record(result)
	return result
}

func (s *Service) syncTable(ctx context.Context, table string, batchSize int) *SyncResult {
	result := &SyncResult{Table: table}
	log := s.log.With("table", table)

	if batchSize == 0 {
		batchSize = s.config.BatchSize
	}
	if batchSize < 0 {
		result.Err = fmt.Errorf("%w: %d", ErrInvalidBatchSize, batchSize)
		return result
	}

	release, err := s.acquire(ctx, table)
	if err != nil {
		result.Err = err
		return result
	}
	defer release()

	if err := s.ensureTable(ctx, table); err != nil {
		result.Err = err
		return result
	}

	if err := s.probe(ctx); err != nil {
		if errors.Is(err, ErrOffline) {
			log.Info("remote store unreachable, skipping cycle", "error", err)
			result.Offline = true
			return result
		}
		result.Err = err
		return result
	}

	schema, _ := s.registry.Lookup(table)
	cycleStart := s.now()

	state, err := s.watermarks.Get(ctx, table)
	if err != nil {
		result.Err = err
		return result
	}

	log.Debug("sync cycle started", "watermark", state.Watermark, "has_watermark", state.HasWatermark)

	downloaded, newest, err := s.pull(ctx, schema, state, batchSize, cycleStart)
	result.Downloaded = downloaded
	if err != nil {
		log.Warn("pull failed", "downloaded", downloaded, "error", err)
		result.Err = err
		return result
	}

	uploaded, pushErr := s.push(ctx, schema, batchSize)
	result.Uploaded = uploaded
	if pushErr != nil {
		log.Warn("push finished with errors", "uploaded", uploaded, "error", pushErr)
	}

	// pull применен целиком, поэтому водяной знак можно двигать даже при ошибках push.
	// Часы сервера могут спешить: тогда знак встает на самую свежую скачанную запись.
	next, err := s.watermarks.Advance(ctx, state, laterOf(cycleStart, newest))
	if err != nil {
		result.Err = errors.Join(pushErr, fmt.Errorf("%w: %w", ErrLocalTransaction, err))
		return result
	}
	result.LastSync = next.Watermark

	if pushErr != nil {
		result.Err = pushErr
		return result
	}

	result.Success = true
	log.Debug("sync cycle finished", "downloaded", result.Downloaded, "uploaded", result.Uploaded)
	return result
}

// pull забирает записи новее водяного знака и применяет их пакетами.
// Возвращает число примененных записей и самый поздний updated_at среди них.
func (s *Service) pull(ctx context.Context, schema TableSchema, state TableSyncState, batchSize int, now time.Time) (int, time.Time, error) {
	filter := Filter{}
	if state.HasWatermark {
		filter.UpdatedAfter = state.Watermark
	}

	rctx, cancel := context.WithTimeout(ctx, s.config.RemoteTimeout)
	records, err := s.remote.Select(rctx, schema.Name, filter)
	cancel()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: pull %s: %w", ErrRemoteOperation, schema.Name, err)
	}

	applied := 0
	var newest time.Time
	for _, chunk := range Chunk(records, batchSize) {
		if err := ctx.Err(); err != nil {
			return applied, newest, err
		}

		chunkNewest := newest
		stmts := make([]Statement, 0, len(chunk))
		for _, raw := range chunk {
			rec := Normalize(schema, raw)
			if _, ok := rec.Key(schema.PrimaryKey); !ok {
				return applied, newest, fmt.Errorf("%w: pull %s: %w", ErrRemoteOperation, schema.Name, ErrMissingPrimaryKey)
			}
			if at, ok := rec.UpdatedAt(); ok {
				chunkNewest = laterOf(chunkNewest, at)
			}
			rec[FieldLastSync] = stampFor(rec, now)
			stmts = append(stmts, upsertStatement(schema.Name, schema.PrimaryKey, rec))
		}

		if err := s.local.Transaction(ctx, stmts); err != nil {
			return applied, newest, fmt.Errorf("%w: apply %s batch: %w", ErrLocalTransaction, schema.Name, err)
		}
		applied += len(chunk)
		newest = chunkNewest
	}

	return applied, newest, nil
}

// push отправляет несинхронизированные записи пакетами. Неудачный пакет остается
// несинхронизированным до следующего цикла, остальные пакеты продолжают отправляться.
func (s *Service) push(ctx context.Context, schema TableSchema, batchSize int) (int, error) {
	pending, err := s.local.GetUnsyncedRecords(ctx, schema.Name)
	if err != nil {
		return 0, fmt.Errorf("collect unsynced %s: %w", schema.Name, err)
	}

	uploaded := 0
	var errs []error
	for _, chunk := range Chunk(pending, batchSize) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		now := s.now()
		payload := make([]Record, 0, len(chunk))
		marks := make([]Statement, 0, len(chunk))
		for _, raw := range chunk {
			id, ok := raw.Key(schema.PrimaryKey)
			if !ok {
				errs = append(errs, fmt.Errorf("push %s: %w", schema.Name, ErrMissingPrimaryKey))
				continue
			}
			rec := Normalize(schema, raw)
			stamp := stampFor(rec, now)
			rec[FieldLastSync] = stamp
			payload = append(payload, rec)
			marks = append(marks, markSyncedStatement(schema.Name, schema.PrimaryKey, id, raw[FieldUpdatedAt], stamp))
		}
		if len(payload) == 0 {
			continue
		}

		if err := s.upsertRemote(ctx, schema, payload); err != nil {
			errs = append(errs, fmt.Errorf("%w: push %s batch: %w", ErrRemoteOperation, schema.Name, err))
			continue
		}
		uploaded += len(payload)

		if err := s.local.Transaction(ctx, marks); err != nil {
			errs = append(errs, fmt.Errorf("%w: mark %s batch: %w", ErrLocalTransaction, schema.Name, err))
		}
	}

	return uploaded, errors.Join(errs...)
}

func (s *Service) upsertRemote(ctx context.Context, schema TableSchema, records []Record) error {
	rctx, cancel := context.WithTimeout(ctx, s.config.RemoteTimeout)
	defer cancel()
	return s.remote.Upsert(rctx, schema.Name, schema.PrimaryKey, records)
}

// FullSync синхронизирует таблицы в фиксированном порядке зависимостей.
// Ошибка одной таблицы не прерывает остальные.
func (s *Service) FullSync(ctx context.Context) map[string]*SyncResult {
	tables := s.config.Tables
	if len(tables) == 0 {
		tables = s.registry.Tables()
	}
	return s.runAll(ctx, "full", tables)
}

// IncrementalSync синхронизирует все пользовательские таблицы локальной базы.
// Порядок по имени, зависимости внешних ключей не учитываются: если они важны,
// используйте FullSync. Ошибка возвращается только если не удалось прочитать каталог.
func (s *Service) IncrementalSync(ctx context.Context) (map[string]*SyncResult, error) {
	tables, err := s.local.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list local tables: %w", err)
	}
	slices.Sort(tables)
	return s.runAll(ctx, "incremental", tables), nil
}

func (s *Service) runAll(ctx context.Context, mode string, tables []string) map[string]*SyncResult {
	log := s.log.With("run_id", uuid.NewString(), "mode", mode)
	log.Info("sync run started", "tables", len(tables))

	results := make(map[string]*SyncResult, len(tables))
	var failed, offline int
	for _, table := range tables {
		res := s.safeSyncTable(ctx, table)
		results[table] = res

		switch {
		case res.Offline:
			offline++
		case !res.Success:
			failed++
			log.Error("table sync failed", "table", table, "error", res.Err)
		}
	}

	log.Info("sync run finished", "tables", len(tables), "failed", failed, "offline", offline)
	return results
}

// safeSyncTable изолирует панику одной таблицы от остального прогона
func (s *Service) safeSyncTable(ctx context.Context, table string) (res *SyncResult) {
	defer func() {
		if r := recover(); r != nil {
			res = &SyncResult{Table: table, Err: fmt.Errorf("sync %s panicked: %v", table, r)}
			s.record(res)
		}
	}()
	return s.SyncTable(ctx, table, 0)
}

// acquire захватывает блокировку таблицы на время цикла
func (s *Service) acquire(ctx context.Context, table string) (func(), error) {
	s.mu.Lock()
	guard, ok := s.guards[table]
	if !ok {
		guard = semaphore.NewWeighted(1)
		s.guards[table] = guard
	}
	s.mu.Unlock()

	if s.config.WaitInFlight {
		if err := guard.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	} else if !guard.TryAcquire(1) {
		return nil, fmt.Errorf("%w: %s", ErrSyncInProgress, table)
	}

	return func() { guard.Release(1) }, nil
}

func (s *Service) ensureTable(ctx context.Context, table string) error {
	exists, err := s.local.TableExists(ctx, table)
	if err != nil {
		return fmt.Errorf("check table %s: %w", table, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return nil
}

// probe проверяет связь с сервером ограниченным по времени чтением
func (s *Service) probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pctx, cancel := context.WithTimeout(ctx, s.config.ProbeTimeout)
	defer cancel()

	if err := s.remote.Ping(pctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrOffline, err)
	}
	return nil
}

func (s *Service) record(r *SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalCycles++
	s.stats.TotalUploaded += r.Uploaded
	s.stats.TotalDownloaded += r.Downloaded

	switch {
	case r.Offline:
		s.stats.OfflineCycles++
	case r.Success:
		s.stats.LastSuccessful = s.now()
	default:
		s.stats.FailedCycles++
		s.stats.LastFailed = s.now()
	}
}

// stampFor last_sync не может быть раньше updated_at, иначе запись
// снова посчитается несинхронизированной при расхождении часов
func stampFor(rec Record, now time.Time) time.Time {
	stamp := canonicalTime(now)
	if updatedAt, ok := rec.UpdatedAt(); ok {
		stamp = laterOf(stamp, updatedAt)
	}
	return stamp
}
