package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/store"
	"github.com/google/uuid"
)

// Dataset names the BigQuery dataset holding the engine's tables.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// Table returns the fully qualified, backquoted table name.
func (d Dataset) Table(name string) string {
	return "`" + d.ProjectID + "." + d.DatasetID + "." + name + "`"
}

// Repository implements the transaction, rule and ingestion log stores on
// BigQuery. It holds a shared BigQuery client to avoid creating a new
// connection for each operation.
type Repository struct {
	client *bigquery.Client
	ds     Dataset
}

// NewRepository creates a Repository with its own client.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, datasetID), nil
}

// NewRepositoryWithClient creates a Repository on an existing client.
func NewRepositoryWithClient(client *bigquery.Client, datasetID string) *Repository {
	return &Repository{
		client: client,
		ds:     Dataset{ProjectID: client.Project(), DatasetID: datasetID},
	}
}

// Close closes the BigQuery client connection. This should be called when
// the repository is no longer needed to release resources.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ListTransactions implements store.TransactionStore.
func (r *Repository) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	rows, err := ListTransactionsWithClient(ctx, r.client, r.ds)
	if err != nil {
		return nil, err
	}
	txs := make([]*domain.Transaction, len(rows))
	for i, row := range rows {
		txs[i] = row.ToDomain()
	}
	return txs, nil
}

// ListExternalIDs implements store.TransactionStore.
func (r *Repository) ListExternalIDs(ctx context.Context) (map[string]struct{}, error) {
	return ListExternalIDsWithClient(ctx, r.client, r.ds)
}

// FindTransactionsByKey narrows by account and value date in SQL and compares
// the rest of the key on the decoded rows, so amount formatting cannot cause
// a mismatch.
func (r *Repository) FindTransactionsByKey(ctx context.Context, key domain.CompositeKey) ([]*domain.Transaction, error) {
	rows, err := FindTransactionsByAccountDateWithClient(ctx, r.client, r.ds, key)
	if err != nil {
		return nil, err
	}
	var txs []*domain.Transaction
	for _, row := range rows {
		tx := row.ToDomain()
		if tx.Key() == key {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

// CreateTransaction implements store.TransactionStore.
func (r *Repository) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	created := *tx
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}
	if err := InsertTransactionWithClient(ctx, r.client, r.ds, NewTransactionRow(&created)); err != nil {
		return nil, err
	}
	return &created, nil
}

// ReplaceTransaction implements store.TransactionStore.
func (r *Repository) ReplaceTransaction(ctx context.Context, tx *domain.Transaction) error {
	return ReplaceTransactionWithClient(ctx, r.client, r.ds, NewTransactionRow(tx))
}

// UpdateClassification implements store.TransactionStore.
func (r *Repository) UpdateClassification(ctx context.Context, id string, category, subcategory *string) error {
	return UpdateClassificationWithClient(ctx, r.client, r.ds, id, category, subcategory)
}

// DeleteTransaction implements store.TransactionStore.
func (r *Repository) DeleteTransaction(ctx context.Context, id string) error {
	return DeleteTransactionWithClient(ctx, r.client, r.ds, id)
}

// ListActiveRules implements store.RuleStore.
func (r *Repository) ListActiveRules(ctx context.Context) ([]domain.Rule, error) {
	rows, err := ListActiveRulesWithClient(ctx, r.client, r.ds)
	if err != nil {
		return nil, err
	}
	rules := make([]domain.Rule, len(rows))
	for i := range rows {
		rules[i] = rows[i].ToDomain()
	}
	return rules, nil
}

// CreateIngestionLog implements store.IngestionLogStore.
func (r *Repository) CreateIngestionLog(ctx context.Context, entry *domain.IngestionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	return InsertIngestionLogWithClient(ctx, r.client, r.ds, NewIngestionLogRow(entry))
}

// Ensure Repository implements the store interfaces.
var (
	_ store.TransactionStore  = (*Repository)(nil)
	_ store.RuleStore         = (*Repository)(nil)
	_ store.IngestionLogStore = (*Repository)(nil)
)
