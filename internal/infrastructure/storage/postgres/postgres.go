package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"offsync/internal/app/server/config"
	"offsync/internal/infrastructure/migration"
)

type Storage struct {
	pool *pgxpool.Pool
}

// New подключается к базе и применяет миграции из MIGRATIONS_PATH
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Storage, error) {
	return Connect(ctx, cfg.DB.DatabaseURI, cfg.DB.Migrations, log)
}

// Connect как New, но без конфигурации сервера: клиент с драйвером postgres
// ходит в ту же базу напрямую. Пустой migrationsDir пропускает миграции.
func Connect(ctx context.Context, databaseURI, migrationsDir string, log *slog.Logger) (*Storage, error) {
	pool, err := pgxpool.New(ctx, databaseURI)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if migrationsDir != "" {
		mg := migration.NewMigration(migration.FileSource(migrationsDir), databaseURI, migration.DefaultEngine)
		if err := mg.Up(); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration error: %w", err)
		}
		log.Debug("migrations applied", "path", migrationsDir)
	}

	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) Pool() *pgxpool.Pool {
	return s.pool
}
