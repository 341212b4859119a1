// Package store declares the persistence operations the engine consumes.
// Implementations live in store/inmemory, infra/bigquery and notionrules.
package store

import (
	"context"
	"errors"

	"github.com/dvloznov/bankfeed/internal/domain"
)

// ErrNotFound is returned when an update or delete targets a missing record.
var ErrNotFound = errors.New("record not found")

// TransactionStore provides transaction persistence.
type TransactionStore interface {
	// ListTransactions returns every stored transaction in insertion order.
	ListTransactions(ctx context.Context) ([]*domain.Transaction, error)

	// ListExternalIDs returns the set of external identifiers already stored.
	ListExternalIDs(ctx context.Context) (map[string]struct{}, error)

	// FindTransactionsByKey returns transactions matching a composite key.
	FindTransactionsByKey(ctx context.Context, key domain.CompositeKey) ([]*domain.Transaction, error)

	// CreateTransaction stores a new transaction and returns it with ID set.
	CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)

	// ReplaceTransaction overwrites the ingestion-owned fields of tx.ID.
	// Category and subcategory of the stored record are left as they are.
	ReplaceTransaction(ctx context.Context, tx *domain.Transaction) error

	// UpdateClassification sets category and subcategory of a transaction.
	UpdateClassification(ctx context.Context, id string, category, subcategory *string) error

	// DeleteTransaction removes a transaction by record ID.
	DeleteTransaction(ctx context.Context, id string) error
}

// RuleStore provides read access to classification rules.
type RuleStore interface {
	// ListActiveRules returns active rules in the store's natural order.
	ListActiveRules(ctx context.Context) ([]domain.Rule, error)
}

// IngestionLogStore persists audit entries for failed batches.
type IngestionLogStore interface {
	CreateIngestionLog(ctx context.Context, entry *domain.IngestionLog) error
}
