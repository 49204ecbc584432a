package routine

import (
	"context"

	"github.com/tonydantona/practice-routines-api/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	getFn    func(ctx context.Context, req db.GetRequest) (*db.GetResult, error)
	queryFn  func(ctx context.Context, req db.QueryRequest) (*db.QueryResult, error)
	addFn    func(ctx context.Context, req db.AddRequest) error
	updateFn func(ctx context.Context, id string, metadata map[string]string) error
	deleteFn func(ctx context.Context, ids []string) error
	ensureFn func(ctx context.Context, dim int) error

	calls int
}

func (m *mockStore) Get(ctx context.Context, req db.GetRequest) (*db.GetResult, error) {
	m.calls++
	if m.getFn != nil {
		return m.getFn(ctx, req)
	}
	return &db.GetResult{}, nil
}

func (m *mockStore) Query(ctx context.Context, req db.QueryRequest) (*db.QueryResult, error) {
	m.calls++
	if m.queryFn != nil {
		return m.queryFn(ctx, req)
	}
	return &db.QueryResult{}, nil
}

func (m *mockStore) Add(ctx context.Context, req db.AddRequest) error {
	m.calls++
	if m.addFn != nil {
		return m.addFn(ctx, req)
	}
	return nil
}

func (m *mockStore) Update(ctx context.Context, id string, metadata map[string]string) error {
	m.calls++
	if m.updateFn != nil {
		return m.updateFn(ctx, id, metadata)
	}
	return nil
}

func (m *mockStore) Delete(ctx context.Context, ids []string) error {
	m.calls++
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ids)
	}
	return nil
}

func (m *mockStore) EnsureCollection(ctx context.Context, dim int) error {
	m.calls++
	if m.ensureFn != nil {
		return m.ensureFn(ctx, dim)
	}
	return nil
}

// mockCASStore adds compare-and-swap to mockStore.
type mockCASStore struct {
	mockStore
	updateIfFn func(ctx context.Context, id string, expected, next map[string]string) error
}

func (m *mockCASStore) UpdateIf(ctx context.Context, id string, expected, next map[string]string) error {
	m.calls++
	if m.updateIfFn != nil {
		return m.updateIfFn(ctx, id, expected, next)
	}
	return nil
}
