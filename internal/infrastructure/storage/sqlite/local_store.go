package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"offsync/internal/domain/replication"
)

var _ replication.LocalStore = (*Store)(nil)

// Transaction применяет команды одной транзакцией: все или ни одной
func (s *Store) Transaction(ctx context.Context, stmts []replication.Statement) error {
	if len(stmts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.Query, st.Args...); err != nil {
			s.log.Debug("statement failed, rolling back", "index", i, "size", len(stmts), "error", err)
			return fmt.Errorf("exec statement %d of %d: %w", i+1, len(stmts), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) GetLastSync(ctx context.Context, table string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT watermark FROM _sync_state WHERE table_name = ?`, table).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark: %w", err)
	}

	at, err := replication.ParseTime(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse watermark of %s: %w", table, err)
	}
	return at, true, nil
}

func (s *Store) SetLastSync(ctx context.Context, table string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO _sync_state (table_name, watermark) VALUES (?, ?)
		ON CONFLICT (table_name) DO UPDATE SET watermark = excluded.watermark`,
		table, replication.FormatLocalTime(at))
	if err != nil {
		return fmt.Errorf("write watermark: %w", err)
	}
	return nil
}

// GetUnsyncedRecords строки без last_sync или с last_sync старше updated_at.
// Сравнение строковое, поэтому все метки хранятся в LocalTimeLayout.
func (s *Store) GetUnsyncedRecords(ctx context.Context, table string) ([]replication.Record, error) {
	t, err := ident(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT * FROM %s
		WHERE last_sync IS NULL OR (updated_at IS NOT NULL AND last_sync < updated_at)
		ORDER BY updated_at`, t)

	return s.query(ctx, query)
}

func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table: %w", err)
	}
	return n > 0, nil
}

// ListTables пользовательские таблицы, без служебных sqlite_*, _sync_* и schema_migrations
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		  AND name NOT LIKE '\_sync\_%' ESCAPE '\'
		  AND name <> 'schema_migrations'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (s *Store) SelectByID(ctx context.Context, table, pk string, id any) (replication.Record, error) {
	recs, err := s.Select(ctx, table, replication.Filter{KeyField: pk, KeyValue: id})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, replication.ErrRecordNotFound
	}
	return recs[0], nil
}

func (s *Store) Select(ctx context.Context, table string, filter replication.Filter) ([]replication.Record, error) {
	t, err := ident(table)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if !filter.UpdatedAfter.IsZero() {
		where = append(where, "updated_at > ?")
		args = append(args, replication.FormatLocalTime(filter.UpdatedAfter))
	}
	if filter.KeyField != "" {
		k, err := ident(filter.KeyField)
		if err != nil {
			return nil, err
		}
		where = append(where, k+" = ?")
		args = append(args, filter.KeyValue)
	}

	query := "SELECT * FROM " + t
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid"

	return s.query(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]replication.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query local store: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []replication.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rec := make(replication.Record, len(cols))
		for i, c := range cols {
			// TEXT иногда приходит как []byte, а mark-synced сравнивает updated_at по значению
			if b, ok := values[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = values[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}

func ident(name string) (string, error) {
	if !replication.ValidIdentifier(name) {
		return "", fmt.Errorf("%w: identifier %q", replication.ErrInvalidSchema, name)
	}
	return `"` + name + `"`, nil
}
