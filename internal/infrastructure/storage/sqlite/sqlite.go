package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/exp/slog"

	"offsync/internal/domain/replication"
	"offsync/internal/infrastructure/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store локальная база устройства, реализует replication.LocalStore
type Store struct {
	db       *sql.DB
	registry *replication.Registry
	log      *slog.Logger
	now      func() time.Time
}

// Open открывает файл базы, применяет встроенные миграции и настраивает соединение
func Open(ctx context.Context, path string, registry *replication.Registry, log *slog.Logger) (*Store, error) {
	mg := migration.NewMigration("migrations", migration.SQLiteURL(path), migration.EmbeddedEngine(migrationsFS))
	if err := mg.Up(); err != nil {
		return nil, fmt.Errorf("migrate local store: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	// одна запись за раз, иначе SQLITE_BUSY под нагрузкой
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping local store: %w", err)
	}

	if registry == nil {
		registry = replication.DefaultRegistry()
	}

	return &Store{
		db:       db,
		registry: registry,
		log:      log.With("component", "sqlite_store"),
		now:      time.Now,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock подменяет источник времени для updated_at
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

