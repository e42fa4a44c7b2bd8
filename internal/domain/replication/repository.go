package replication

import (
	"context"
	"time"
)

// Filter условие выборки из удаленного хранилища
type Filter struct {
	// UpdatedAfter строго больше; нулевое значение означает "все записи"
	UpdatedAfter time.Time
	// KeyField/KeyValue выборка по равенству, обычно по первичному ключу
	KeyField string
	KeyValue any
}

// RemoteStore удаленное реляционное хранилище
type RemoteStore interface {
	// Ping легкая операция чтения без побочных эффектов для проверки связи
	Ping(ctx context.Context) error
	Select(ctx context.Context, table string, filter Filter) ([]Record, error)
	// Upsert вставка или обновление по первичному ключу pk
	Upsert(ctx context.Context, table, pk string, records []Record) error
}

// Statement одна команда локальной транзакции
type Statement struct {
	Query string
	Args  []any
}

// LocalStore встроенное хранилище на устройстве. Все изменения состояния
// синхронизации проходят через Transaction или SetLastSync.
type LocalStore interface {
	// Transaction применяет все команды или ни одной
	Transaction(ctx context.Context, stmts []Statement) error

	GetLastSync(ctx context.Context, table string) (time.Time, bool, error)
	SetLastSync(ctx context.Context, table string, at time.Time) error

	// GetUnsyncedRecords записи, у которых last_sync пуст или старше updated_at
	GetUnsyncedRecords(ctx context.Context, table string) ([]Record, error)

	TableExists(ctx context.Context, table string) (bool, error)
	// ListTables пользовательские таблицы без служебных
	ListTables(ctx context.Context) ([]string, error)

	SelectByID(ctx context.Context, table, pk string, id any) (Record, error)
	Select(ctx context.Context, table string, filter Filter) ([]Record, error)
}
