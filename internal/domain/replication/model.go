package replication

import (
	"fmt"
	"strings"
	"time"
)

const (
	// FieldUpdatedAt время последнего изменения, выставляется тем хранилищем, которое писало последним
	FieldUpdatedAt = "updated_at"
	// FieldLastSync время последней подтвержденной синхронизации строки, управляется движком
	FieldLastSync = "last_sync"

	// LocalTimeLayout формат меток времени на устройстве. Фиксированная ширина нужна,
	// чтобы SQLite сравнивал last_sync и updated_at как строки.
	LocalTimeLayout = "2006-01-02T15:04:05.000000Z"
)

// parseLayouts форматы, которые встречаются в обоих хранилищах и в JSON
var parseLayouts = []string{
	LocalTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Record строка реплицируемой таблицы: имя колонки -> значение
type Record map[string]any

// Clone возвращает поверхностную копию записи
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Key возвращает значение первичного ключа
func (r Record) Key(pk string) (any, bool) {
	v, ok := r[pk]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// UpdatedAt возвращает updated_at записи, если он задан и распознан
func (r Record) UpdatedAt() (time.Time, bool) {
	return asTime(r[FieldUpdatedAt])
}

// LastSync возвращает last_sync записи, если он задан и распознан
func (r Record) LastSync() (time.Time, bool) {
	return asTime(r[FieldLastSync])
}

// IsUnsynced запись не синхронизирована, если last_sync отсутствует или старше updated_at
func (r Record) IsUnsynced() bool {
	lastSync, ok := r.LastSync()
	if !ok {
		return true
	}
	updatedAt, ok := r.UpdatedAt()
	if !ok {
		return false
	}
	return lastSync.Before(updatedAt)
}

// SyncResult результат одного цикла синхронизации таблицы. Не сохраняется.
type SyncResult struct {
	Table      string        `json:"table"`
	Success    bool          `json:"success"`
	Offline    bool          `json:"offline"`
	Downloaded int           `json:"downloaded"`
	Uploaded   int           `json:"uploaded"`
	LastSync   time.Time     `json:"last_sync,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// Error возвращает текст ошибки цикла или пустую строку
func (r *SyncResult) Error() string {
	if r == nil || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// TableSyncState состояние синхронизации таблицы, хранится в локальной базе
type TableSyncState struct {
	Table        string    `json:"table"`
	Watermark    time.Time `json:"watermark"`
	HasWatermark bool      `json:"has_watermark"`
}

// ResolveResult итог разрешения конфликтов по таблице
type ResolveResult struct {
	Table      string `json:"table"`
	Resolved   int    `json:"resolved"`
	RemoteWins int    `json:"remote_wins"`
	LocalWins  int    `json:"local_wins"`
	// Pending записи без пары на сервере, они уйдут обычным push
	Pending int `json:"pending"`
}

// Stats накопленная статистика синхронизации
type Stats struct {
	TotalCycles     int       `json:"total_cycles"`
	OfflineCycles   int       `json:"offline_cycles"`
	FailedCycles    int       `json:"failed_cycles"`
	TotalUploaded   int       `json:"total_uploaded"`
	TotalDownloaded int       `json:"total_downloaded"`
	TotalResolved   int       `json:"total_resolved"`
	LastSuccessful  time.Time `json:"last_successful"`
	LastFailed      time.Time `json:"last_failed"`
}

// ParseTime разбирает метку времени из любого известного формата
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %q", s)
}

// canonicalTime приводит время к виду, одинаковому в обоих хранилищах
func canonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return canonicalTime(t), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return canonicalTime(*t), true
	case string:
		parsed, err := ParseTime(t)
		if err != nil {
			return time.Time{}, false
		}
		return canonicalTime(parsed), true
	case []byte:
		return asTime(string(t))
	default:
		return time.Time{}, false
	}
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
