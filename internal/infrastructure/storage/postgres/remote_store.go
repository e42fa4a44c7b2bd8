package postgres

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"offsync/internal/domain/replication"
)

var _ replication.RemoteStore = (*RemoteStore)(nil)

// RemoteStore таблицы приложения на сервере. Доступны только таблицы из реестра.
type RemoteStore struct {
	pool     *pgxpool.Pool
	registry *replication.Registry
	log      *slog.Logger
}

func NewRemoteStore(pool *pgxpool.Pool, registry *replication.Registry, log *slog.Logger) *RemoteStore {
	if registry == nil {
		registry = replication.DefaultRegistry()
	}
	return &RemoteStore{
		pool:     pool,
		registry: registry,
		log:      log.With("component", "remote_store"),
	}
}

func (r *RemoteStore) Ping(ctx context.Context) error {
	var one int
	if err := r.pool.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (r *RemoteStore) Select(ctx context.Context, table string, filter replication.Filter) ([]replication.Record, error) {
	schema, err := r.schema(table)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if !filter.UpdatedAfter.IsZero() {
		args = append(args, filter.UpdatedAfter)
		where = append(where, fmt.Sprintf("%s > $%d", pgx.Identifier{replication.FieldUpdatedAt}.Sanitize(), len(args)))
	}
	if filter.KeyField != "" {
		if !replication.ValidIdentifier(filter.KeyField) {
			return nil, fmt.Errorf("%w: identifier %q", replication.ErrInvalidSchema, filter.KeyField)
		}
		args = append(args, filter.KeyValue)
		where = append(where, fmt.Sprintf("%s = $%d", pgx.Identifier{filter.KeyField}.Sanitize(), len(args)))
	}

	query := "SELECT * FROM " + pgx.Identifier{schema.Name}.Sanitize()
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s, %s",
		pgx.Identifier{replication.FieldUpdatedAt}.Sanitize(),
		pgx.Identifier{schema.PrimaryKey}.Sanitize())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to select records", "table", table, "error", err)
		return nil, fmt.Errorf("select %s: %w", table, err)
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect %s rows: %w", table, err)
	}

	out := make([]replication.Record, len(collected))
	for i, m := range collected {
		out[i] = replication.Record(m)
	}
	return out, nil
}

// Upsert вставляет или обновляет записи по первичному ключу одним батчем в транзакции
func (r *RemoteStore) Upsert(ctx context.Context, table, pk string, records []replication.Record) error {
	if len(records) == 0 {
		return nil
	}

	schema, err := r.schema(table)
	if err != nil {
		return err
	}
	if pk == "" {
		pk = schema.PrimaryKey
	}
	if !replication.ValidIdentifier(pk) {
		return fmt.Errorf("%w: primary key %q", replication.ErrInvalidSchema, pk)
	}

	batch := &pgx.Batch{}
	for _, raw := range records {
		rec := replication.Normalize(schema, raw)
		if _, ok := rec.Key(pk); !ok {
			return fmt.Errorf("upsert %s: %w", table, replication.ErrMissingPrimaryKey)
		}

		query, args, err := upsertQuery(schema.Name, pk, rec)
		if err != nil {
			return err
		}
		batch.Queue(query, args...)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		r.log.Error("failed to upsert batch", "table", table, "size", len(records), "error", err)
		return fmt.Errorf("upsert %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *RemoteStore) schema(table string) (replication.TableSchema, error) {
	schema, ok := r.registry.Lookup(table)
	if !ok {
		return schema, fmt.Errorf("%w: %s", replication.ErrTableNotFound, table)
	}
	return schema, nil
}

func upsertQuery(table, pk string, rec replication.Record) (string, []any, error) {
	cols := slices.Sorted(maps.Keys(rec))

	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	sets := make([]string, 0, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		if !replication.ValidIdentifier(c) {
			return "", nil, fmt.Errorf("%w: column %q", replication.ErrInvalidSchema, c)
		}
		q := pgx.Identifier{c}.Sanitize()
		quoted[i] = q
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = rec[c]
		if c != pk {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s)",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		pgx.Identifier{pk}.Sanitize(),
	)
	if len(sets) == 0 {
		return query + " DO NOTHING", args, nil
	}
	return query + " DO UPDATE SET " + strings.Join(sets, ", "), args, nil
}
