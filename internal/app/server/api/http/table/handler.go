package table

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"offsync/internal/domain/replication"
)

// Store операции над таблицами, которые сервер отдает клиентам
type Store interface {
	Select(ctx context.Context, table string, filter replication.Filter) ([]replication.Record, error)
	Upsert(ctx context.Context, table, pk string, records []replication.Record) error
}

type Handler struct {
	store      Store
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(store Store, log *slog.Logger, mws huma.Middlewares) *Handler {
	return &Handler{
		store:      store,
		log:        log,
		middleware: mws,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.listOp(), h.list)
	huma.Register(api, h.upsertOp(), h.upsert)
}

func (h *Handler) list(ctx context.Context, input *listInput) (*listOutput, error) {
	filter := replication.Filter{}

	if input.UpdatedAfter != "" {
		at, err := replication.ParseTime(input.UpdatedAfter)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid updated_after", err)
		}
		filter.UpdatedAfter = at
	}
	if input.Key != "" {
		filter.KeyField = input.Key
		filter.KeyValue = queryValue(input.Value)
	}

	records, err := h.store.Select(ctx, input.Table, filter)
	if err != nil {
		return nil, h.mapError("select", input.Table, err)
	}

	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = r
	}

	return &listOutput{
		Body: listResponse{
			Table:   input.Table,
			Records: out,
		},
	}, nil
}

func (h *Handler) upsert(ctx context.Context, input *upsertInput) (*upsertOutput, error) {
	records := make([]replication.Record, len(input.Body.Records))
	for i, r := range input.Body.Records {
		records[i] = integralNumbers(r)
	}

	if err := h.store.Upsert(ctx, input.Table, input.Body.Key, records); err != nil {
		return nil, h.mapError("upsert", input.Table, err)
	}

	h.log.Debug("records upserted", "table", input.Table, "count", len(records))

	return &upsertOutput{
		Body: upsertResponse{
			Status:   "Ok",
			Upserted: len(records),
		},
	}, nil
}

func (h *Handler) mapError(op, table string, err error) error {
	switch {
	case errors.Is(err, replication.ErrTableNotFound):
		return huma.Error404NotFound("unknown table " + table)
	case errors.Is(err, replication.ErrInvalidSchema), errors.Is(err, replication.ErrMissingPrimaryKey):
		return huma.Error400BadRequest(err.Error())
	default:
		h.log.Error("table operation failed", "op", op, "table", table, "error", err)
		return huma.Error500InternalServerError(op + " failed")
	}
}

// queryValue значение из query-строки: целое, если разбирается, иначе строка
func queryValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

// integralNumbers JSON отдает числа как float64, а ключи и счетчики в базе целые
func integralNumbers(in map[string]any) replication.Record {
	out := make(replication.Record, len(in))
	for k, v := range in {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			out[k] = int64(f)
			continue
		}
		out[k] = v
	}
	return out
}
