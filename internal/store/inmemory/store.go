package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/store"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of the transaction, rule and ingestion
// log stores. It keeps insertion order and is safe for concurrent use.
// Data is lost on restart - for persistence, use the BigQuery store.
type Store struct {
	mu sync.RWMutex

	order        []string
	transactions map[string]*domain.Transaction

	rules []domain.Rule
	logs  []domain.IngestionLog

	// Writes counts create, replace, classification and delete operations.
	writes int
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		transactions: make(map[string]*domain.Transaction),
	}
}

// ListTransactions implements store.TransactionStore.
func (s *Store) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Transaction, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, copyTransaction(s.transactions[id]))
	}
	return result, nil
}

// ListExternalIDs implements store.TransactionStore.
func (s *Store) ListExternalIDs(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]struct{}, len(s.transactions))
	for _, tx := range s.transactions {
		if tx.ExternalID != "" {
			ids[tx.ExternalID] = struct{}{}
		}
	}
	return ids, nil
}

// FindTransactionsByKey implements store.TransactionStore.
func (s *Store) FindTransactionsByKey(ctx context.Context, key domain.CompositeKey) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, id := range s.order {
		tx := s.transactions[id]
		if tx.Key() == key {
			result = append(result, copyTransaction(tx))
		}
	}
	return result, nil
}

// CreateTransaction implements store.TransactionStore.
func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := copyTransaction(tx)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if _, exists := s.transactions[row.ID]; exists {
		return nil, fmt.Errorf("transaction %s already exists", row.ID)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}

	s.transactions[row.ID] = row
	s.order = append(s.order, row.ID)
	s.writes++

	return copyTransaction(row), nil
}

// ReplaceTransaction implements store.TransactionStore.
func (s *Store) ReplaceTransaction(ctx context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.transactions[tx.ID]
	if !ok {
		return fmt.Errorf("replace %s: %w", tx.ID, store.ErrNotFound)
	}

	row := copyTransaction(tx)
	row.Category = existing.Category
	row.Subcategory = existing.Subcategory
	row.CreatedAt = existing.CreatedAt
	row.UpdatedAt = time.Now()

	s.transactions[tx.ID] = row
	s.writes++
	return nil
}

// UpdateClassification implements store.TransactionStore.
func (s *Store) UpdateClassification(ctx context.Context, id string, category, subcategory *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return fmt.Errorf("update classification %s: %w", id, store.ErrNotFound)
	}

	tx.Category = copyString(category)
	tx.Subcategory = copyString(subcategory)
	tx.UpdatedAt = time.Now()
	s.writes++
	return nil
}

// DeleteTransaction implements store.TransactionStore.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, store.ErrNotFound)
	}
	delete(s.transactions, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.writes++
	return nil
}

// AddRule appends a rule, preserving insertion order for tie-breaking.
func (s *Store) AddRule(rule domain.Rule) domain.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	s.rules = append(s.rules, rule)
	return rule
}

// ListActiveRules implements store.RuleStore.
func (s *Store) ListActiveRules(ctx context.Context) ([]domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Rule
	for _, r := range s.rules {
		if r.Active {
			result = append(result, r)
		}
	}
	return result, nil
}

// CreateIngestionLog implements store.IngestionLogStore.
func (s *Store) CreateIngestionLog(ctx context.Context, entry *domain.IngestionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.logs = append(s.logs, *entry)
	return nil
}

// IngestionLogs returns a copy of the recorded audit entries.
func (s *Store) IngestionLogs() []domain.IngestionLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.IngestionLog(nil), s.logs...)
}

// Writes returns the number of mutating operations performed so far.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.writes
}

func copyTransaction(tx *domain.Transaction) *domain.Transaction {
	c := *tx
	c.Category = copyString(tx.Category)
	c.Subcategory = copyString(tx.Subcategory)
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Ensure Store implements the store interfaces.
var (
	_ store.TransactionStore  = (*Store)(nil)
	_ store.RuleStore         = (*Store)(nil)
	_ store.IngestionLogStore = (*Store)(nil)
)
