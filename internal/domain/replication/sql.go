package replication

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// quoteIdent экранирует идентификатор для SQLite
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// upsertStatement вставка нормализованной записи. Существующая строка заменяется,
// кроме случая, когда на устройстве лежит более новая несинхронизированная правка:
// ее оставляем, чтобы не потерять (при равных updated_at побеждает входящая запись).
func upsertStatement(table, pk string, rec Record) Statement {
	encoded := EncodeLocal(rec)
	cols := slices.Sorted(maps.Keys(encoded))

	quoted := make([]string, len(cols))
	sets := make([]string, 0, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		args[i] = encoded[c]
		if c != pk {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", quoteIdent(c), quoteIdent(c)))
		}
	}

	t := quoteIdent(table)
	updatedAt := quoteIdent(FieldUpdatedAt)
	lastSync := quoteIdent(FieldLastSync)

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t,
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
	)
	if len(sets) == 0 {
		return Statement{Query: query + " ON CONFLICT DO NOTHING", Args: args}
	}

	query += fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s WHERE %s.%s IS NULL OR excluded.%s >= %s.%s OR (%s.%s IS NOT NULL AND %s.%s >= %s.%s)",
		quoteIdent(pk),
		strings.Join(sets, ", "),
		t, updatedAt,
		updatedAt, t, updatedAt,
		t, lastSync, t, lastSync, t, updatedAt,
	)

	return Statement{Query: query, Args: args}
}

// markSyncedStatement выставляет last_sync только если запись не менялась с момента чтения.
// rawUpdatedAt значение updated_at в том виде, в каком его вернула база.
func markSyncedStatement(table, pk string, id, rawUpdatedAt any, at time.Time) Statement {
	if rawUpdatedAt == nil {
		return Statement{
			Query: fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ? AND %s IS NULL",
				quoteIdent(table), quoteIdent(FieldLastSync), quoteIdent(pk), quoteIdent(FieldUpdatedAt)),
			Args: []any{FormatLocalTime(at), id},
		}
	}

	return Statement{
		Query: fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ? AND %s = ?",
			quoteIdent(table), quoteIdent(FieldLastSync), quoteIdent(pk), quoteIdent(FieldUpdatedAt)),
		Args: []any{FormatLocalTime(at), id, rawUpdatedAt},
	}
}
