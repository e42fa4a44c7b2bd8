package replication

import (
	"context"
	"errors"
	"fmt"
)

// ResolveConflicts сверяет несинхронизированные локальные записи с их копиями на сервере
// по правилу last-writer-wins. Побеждает запись с большим updated_at, при равенстве сервер.
// Если сервер победил, его версия пишется локально; если победила локальная правка,
// она отправляется на сервер. В обоих случаях обе стороны получают last_sync.
// Записи без пары на сервере не трогаются, их отправит обычный push.
func (s *Service) ResolveConflicts(ctx context.Context, table string) (*ResolveResult, error) {
	result := &ResolveResult{Table: table}
	log := s.log.With("table", table, "op", "resolve")

	release, err := s.acquire(ctx, table)
	if err != nil {
		return result, err
	}
	defer release()

	if err := s.ensureTable(ctx, table); err != nil {
		return result, err
	}
	if err := s.probe(ctx); err != nil {
		return result, err
	}

	schema, _ := s.registry.Lookup(table)

	pending, err := s.local.GetUnsyncedRecords(ctx, table)
	if err != nil {
		return result, fmt.Errorf("collect unsynced %s: %w", table, err)
	}

	var errs []error
	for _, chunk := range Chunk(pending, s.config.BatchSize) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		now := s.now()
		var (
			remoteWins []Record
			localWins  []Record
			marks      []Statement
		)

		for _, raw := range chunk {
			id, ok := raw.Key(schema.PrimaryKey)
			if !ok {
				errs = append(errs, fmt.Errorf("resolve %s: %w", table, ErrMissingPrimaryKey))
				continue
			}

			remote, err := s.fetchRemote(ctx, schema, id)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if remote == nil {
				result.Pending++
				continue
			}

			local := Normalize(schema, raw)
			if remoteWinsOver(local, remote) {
				remote[FieldLastSync] = stampFor(remote, now)
				remoteWins = append(remoteWins, remote)
				continue
			}

			stamp := stampFor(local, now)
			local[FieldLastSync] = stamp
			localWins = append(localWins, local)
			marks = append(marks, markSyncedStatement(table, schema.PrimaryKey, id, raw[FieldUpdatedAt], stamp))
		}

		if len(remoteWins) > 0 {
			if err := s.applyRemoteWins(ctx, schema, remoteWins); err != nil {
				errs = append(errs, err)
			} else {
				result.RemoteWins += len(remoteWins)
			}
		}

		if len(localWins) > 0 {
			if err := s.upsertRemote(ctx, schema, localWins); err != nil {
				errs = append(errs, fmt.Errorf("%w: resolve push %s: %w", ErrRemoteOperation, table, err))
			} else if err := s.local.Transaction(ctx, marks); err != nil {
				errs = append(errs, fmt.Errorf("%w: resolve mark %s: %w", ErrLocalTransaction, table, err))
			} else {
				result.LocalWins += len(localWins)
			}
		}
	}

	result.Resolved = result.RemoteWins + result.LocalWins

	s.mu.Lock()
	s.stats.TotalResolved += result.Resolved
	s.mu.Unlock()

	log.Info("conflicts resolved",
		"remote_wins", result.RemoteWins,
		"local_wins", result.LocalWins,
		"pending", result.Pending,
	)

	return result, errors.Join(errs...)
}

// applyRemoteWins пишет серверные версии локально и подтверждает last_sync на сервере
func (s *Service) applyRemoteWins(ctx context.Context, schema TableSchema, records []Record) error {
	stmts := make([]Statement, 0, len(records))
	for _, rec := range records {
		stmts = append(stmts, upsertStatement(schema.Name, schema.PrimaryKey, rec))
	}
	if err := s.local.Transaction(ctx, stmts); err != nil {
		return fmt.Errorf("%w: resolve apply %s: %w", ErrLocalTransaction, schema.Name, err)
	}

	if err := s.upsertRemote(ctx, schema, records); err != nil {
		return fmt.Errorf("%w: resolve stamp %s: %w", ErrRemoteOperation, schema.Name, err)
	}
	return nil
}

func (s *Service) fetchRemote(ctx context.Context, schema TableSchema, id any) (Record, error) {
	rctx, cancel := context.WithTimeout(ctx, s.config.RemoteTimeout)
	defer cancel()

	rows, err := s.remote.Select(rctx, schema.Name, Filter{KeyField: schema.PrimaryKey, KeyValue: id})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s/%v: %w", ErrRemoteOperation, schema.Name, id, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return Normalize(schema, rows[0]), nil
}

// remoteWinsOver серверная версия побеждает при updated_at не старше локального.
// Запись без updated_at проигрывает записи, у которой он есть.
func remoteWinsOver(local, remote Record) bool {
	remoteAt, remoteOK := remote.UpdatedAt()
	localAt, localOK := local.UpdatedAt()

	switch {
	case !localOK:
		return true
	case !remoteOK:
		return false
	default:
		return !remoteAt.Before(localAt)
	}
}
