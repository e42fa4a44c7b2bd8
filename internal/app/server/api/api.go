// Сервис данных для устройств: отдает и принимает строки реплицируемых таблиц.

//GET /api/v1/health                   # Проба связи (проверяет базу)
//GET /api/v1/tables/{table}/records   # Выборка: updated_after | key+value
//PUT /api/v1/tables/{table}/records   # Пакетный upsert по первичному ключу

package api

import (
	healthAPI "offsync/internal/app/server/api/http/health"
	"offsync/internal/app/server/api/http/middleware"
	"offsync/internal/app/server/api/http/middleware/logger"
	tableAPI "offsync/internal/app/server/api/http/table"
	"offsync/internal/domain/replication"
	"offsync/internal/infrastructure/storage/postgres"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"
)

type Handlers struct {
	Health *healthAPI.Handler
	Table  *tableAPI.Handler
}

// New создает *chi.Mux с операциями над таблицами реестра поверх PostgreSQL
func New(storage *postgres.Storage, registry *replication.Registry, log *slog.Logger) *chi.Mux {
	return NewWithStore(postgres.NewRemoteStore(storage.Pool(), registry, log), log)
}

// NewWithStore то же поверх любого replication.RemoteStore
func NewWithStore(store replication.RemoteStore, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()

	config := huma.DefaultConfig("Offsync Data API", "1.0.0")
	API := humachi.New(mux, config)

	h := handlers(store, log)
	h.Health.SetupRoutes(API)
	h.Table.SetupRoutes(API)

	return mux
}

func handlers(store replication.RemoteStore, log *slog.Logger) *Handlers {
	loggerMW := logger.New(log)
	middlewares := middleware.NewContainer()

	middlewares.Add(loggerMW.Middleware())
	healthHandler := healthAPI.NewHandler(store, log, middlewares.GetAllAndClear())

	middlewares.Add(loggerMW.Middleware())
	tableHandler := tableAPI.NewHandler(store, log, middlewares.GetAllAndClear())

	return &Handlers{
		Health: healthHandler,
		Table:  tableHandler,
	}
}
