package sqlite

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"offsync/internal/domain/replication"
)

// SaveRecord запись приложения: выставляет updated_at, сбрасывает last_sync,
// чтобы движок отправил строку на сервер. Если первичный ключ не задан,
// база назначит его сама. Возвращает сохраненную строку.
func (s *Store) SaveRecord(ctx context.Context, table string, rec replication.Record) (replication.Record, error) {
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", replication.ErrTableNotFound, table)
	}

	schema, _ := s.registry.Lookup(table)

	out := replication.Normalize(schema, rec)
	out[replication.FieldUpdatedAt] = s.now()
	out[replication.FieldLastSync] = nil

	encoded := replication.EncodeLocal(out)
	cols := slices.Sorted(maps.Keys(encoded))

	quoted := make([]string, len(cols))
	sets := make([]string, 0, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		q, err := ident(c)
		if err != nil {
			return nil, err
		}
		quoted[i] = q
		args[i] = encoded[c]
		if c != schema.PrimaryKey {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", q, q))
		}
	}
	t, err := ident(table)
	if err != nil {
		return nil, err
	}
	pk, err := ident(schema.PrimaryKey)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t,
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
	)
	if len(sets) > 0 {
		query += fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s", pk, strings.Join(sets, ", "))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("save record into %s: %w", table, err)
	}

	id, ok := out.Key(schema.PrimaryKey)
	if !ok {
		lastID, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read generated id: %w", err)
		}
		id = lastID
	}

	s.log.Debug("record saved", "table", table, "id", id)

	return s.SelectByID(ctx, table, schema.PrimaryKey, id)
}

// List все строки таблицы в порядке вставки
func (s *Store) List(ctx context.Context, table string) ([]replication.Record, error) {
	return s.Select(ctx, table, replication.Filter{})
}
