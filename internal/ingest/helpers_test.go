package ingest

import (
	"context"
	"sync"

	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/store/inmemory"
)

// spyStore wraps the in-memory store, counts every call and lets tests
// inject failures.
type spyStore struct {
	*inmemory.Store

	mu    sync.Mutex
	calls int

	MockCreateTransactionFunc func(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)
	MockListExternalIDsFunc   func(ctx context.Context) (map[string]struct{}, error)
}

func newSpyStore() *spyStore {
	return &spyStore{Store: inmemory.NewStore()}
}

func (s *spyStore) hit() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *spyStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *spyStore) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	s.hit()
	return s.Store.ListTransactions(ctx)
}

func (s *spyStore) ListExternalIDs(ctx context.Context) (map[string]struct{}, error) {
	s.hit()
	if s.MockListExternalIDsFunc != nil {
		return s.MockListExternalIDsFunc(ctx)
	}
	return s.Store.ListExternalIDs(ctx)
}

func (s *spyStore) FindTransactionsByKey(ctx context.Context, key domain.CompositeKey) ([]*domain.Transaction, error) {
	s.hit()
	return s.Store.FindTransactionsByKey(ctx, key)
}

func (s *spyStore) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	s.hit()
	if s.MockCreateTransactionFunc != nil {
		return s.MockCreateTransactionFunc(ctx, tx)
	}
	return s.Store.CreateTransaction(ctx, tx)
}

func (s *spyStore) ReplaceTransaction(ctx context.Context, tx *domain.Transaction) error {
	s.hit()
	return s.Store.ReplaceTransaction(ctx, tx)
}

func (s *spyStore) UpdateClassification(ctx context.Context, id string, category, subcategory *string) error {
	s.hit()
	return s.Store.UpdateClassification(ctx, id, category, subcategory)
}

func (s *spyStore) DeleteTransaction(ctx context.Context, id string) error {
	s.hit()
	return s.Store.DeleteTransaction(ctx, id)
}

// mockSheetReader is a SheetReader backed by a function.
type mockSheetReader struct {
	MockReadRangeFunc func(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error)
}

func (m *mockSheetReader) ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
	return m.MockReadRangeFunc(ctx, spreadsheetID, readRange)
}

// mockArchiver records archived uploads.
type mockArchiver struct {
	names []string
	err   error
}

func (m *mockArchiver) Archive(ctx context.Context, name string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.names = append(m.names, name)
	return "gs://archive/" + name, nil
}
