package replication

import "errors"

var (
	// ErrOffline удаленное хранилище недоступно. Это штатное состояние, а не сбой цикла.
	ErrOffline = errors.New("remote store is unreachable")

	ErrRemoteOperation   = errors.New("remote operation failed")
	ErrLocalTransaction  = errors.New("local transaction failed")
	ErrTableNotFound     = errors.New("table not found in local store")
	ErrSyncInProgress    = errors.New("sync already in progress for table")
	ErrInvalidBatchSize  = errors.New("batch size must be at least 1")
	ErrInvalidSchema     = errors.New("invalid table schema")
	ErrRecordNotFound    = errors.New("record not found")
	ErrMissingPrimaryKey = errors.New("record has no primary key value")
)
