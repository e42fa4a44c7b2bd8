package replication

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockLocalStore is a mock implementation of the LocalStore interface for testing
type MockLocalStore struct {
	mock.Mock
}

func (m *MockLocalStore) Transaction(ctx context.Context, stmts []Statement) error {
	args := m.Called(ctx, stmts)
	return args.Error(0)
}

func (m *MockLocalStore) GetLastSync(ctx context.Context, table string) (time.Time, bool, error) {
	args := m.Called(ctx, table)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}

func (m *MockLocalStore) SetLastSync(ctx context.Context, table string, at time.Time) error {
	args := m.Called(ctx, table, at)
	return args.Error(0)
}

func (m *MockLocalStore) GetUnsyncedRecords(ctx context.Context, table string) ([]Record, error) {
	args := m.Called(ctx, table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Record), args.Error(1)
}

func (m *MockLocalStore) TableExists(ctx context.Context, table string) (bool, error) {
	args := m.Called(ctx, table)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocalStore) ListTables(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockLocalStore) SelectByID(ctx context.Context, table, pk string, id any) (Record, error) {
	args := m.Called(ctx, table, pk, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Record), args.Error(1)
}

func (m *MockLocalStore) Select(ctx context.Context, table string, filter Filter) ([]Record, error) {
	args := m.Called(ctx, table, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Record), args.Error(1)
}

// MockRemoteStore is a mock implementation of the RemoteStore interface for testing
type MockRemoteStore struct {
	mock.Mock
}

func (m *MockRemoteStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRemoteStore) Select(ctx context.Context, table string, filter Filter) ([]Record, error) {
	args := m.Called(ctx, table, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Record), args.Error(1)
}

func (m *MockRemoteStore) Upsert(ctx context.Context, table, pk string, records []Record) error {
	args := m.Called(ctx, table, pk, records)
	return args.Error(0)
}
