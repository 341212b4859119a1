package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/ingest"
	"github.com/dvloznov/bankfeed/internal/pipeline"
	"github.com/dvloznov/bankfeed/internal/store/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTransactionStore wraps the in-memory store with failure injection.
type MockTransactionStore struct {
	*inmemory.Store

	ListTransactionsFunc     func(ctx context.Context) ([]*domain.Transaction, error)
	UpdateClassificationFunc func(ctx context.Context, id string, category, subcategory *string) error
	DeleteTransactionFunc    func(ctx context.Context, id string) error
	updates                  int
}

func (m *MockTransactionStore) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	if m.ListTransactionsFunc != nil {
		return m.ListTransactionsFunc(ctx)
	}
	return m.Store.ListTransactions(ctx)
}

func (m *MockTransactionStore) UpdateClassification(ctx context.Context, id string, category, subcategory *string) error {
	m.updates++
	if m.UpdateClassificationFunc != nil {
		return m.UpdateClassificationFunc(ctx, id, category, subcategory)
	}
	return m.Store.UpdateClassification(ctx, id, category, subcategory)
}

func (m *MockTransactionStore) DeleteTransaction(ctx context.Context, id string) error {
	if m.DeleteTransactionFunc != nil {
		return m.DeleteTransactionFunc(ctx, id)
	}
	return m.Store.DeleteTransaction(ctx, id)
}

// MockRuleStore returns a fixed rule set or an error.
type MockRuleStore struct {
	ListActiveRulesFunc func(ctx context.Context) ([]domain.Rule, error)
}

func (m *MockRuleStore) ListActiveRules(ctx context.Context) ([]domain.Rule, error) {
	return m.ListActiveRulesFunc(ctx)
}

func newFixture(t *testing.T, descriptions ...string) (*MockTransactionStore, *inmemory.Store) {
	t.Helper()
	mem := inmemory.NewStore()
	for _, d := range descriptions {
		_, err := mem.CreateTransaction(context.Background(), &domain.Transaction{ExternalID: "ext-" + d, Description: d})
		require.NoError(t, err)
	}
	return &MockTransactionStore{Store: mem}, mem
}

func addAmazonRules(mem *inmemory.Store) {
	mem.AddRule(domain.Rule{Pattern: "amazon prime", MatchType: domain.MatchContains, Scope: domain.ScopeDescription, Priority: 5, Category: "Subscriptions", Active: true})
	mem.AddRule(domain.Rule{Pattern: "amazon", MatchType: domain.MatchContains, Scope: domain.ScopeDescription, Priority: 10, Category: "Supplies", Active: true})
	mem.AddRule(domain.Rule{Pattern: "uber", MatchType: domain.MatchContains, Scope: domain.ScopeBoth, Priority: 1, Category: "Transport", Subcategory: "Taxi", Active: true})
}

func TestClassifyAll_EndToEnd(t *testing.T) {
	ctx := context.Background()
	txStore, mem := newFixture(t, "AMAZON PRIME VIDEO CHARGE", "UBER EATS PAYMENT", "Rent")
	addAmazonRules(mem)

	runner := pipeline.NewRunner(txStore, mem, mem)
	summary, err := runner.ClassifyAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Evaluated)
	assert.Equal(t, 2, summary.Matched)
	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, 1, summary.Unchanged)
	assert.Empty(t, summary.Errors)

	list, _ := mem.ListTransactions(ctx)
	assert.Equal(t, "Supplies", list[0].CategoryValue())
	assert.Equal(t, "Transport", list[1].CategoryValue())
	assert.Equal(t, "Taxi", list[1].SubcategoryValue())
	assert.Nil(t, list[2].Category)
}

func TestClassifyAll_SecondRunReportsZeroUpdates(t *testing.T) {
	ctx := context.Background()
	txStore, mem := newFixture(t, "AMAZON PRIME VIDEO CHARGE", "UBER EATS PAYMENT")
	addAmazonRules(mem)
	runner := pipeline.NewRunner(txStore, mem, mem)

	first, err := runner.ClassifyAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, first.Updated)
	writes := txStore.updates

	second, err := runner.ClassifyAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Evaluated)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 2, second.Unchanged)
	assert.Equal(t, writes, txStore.updates, "second run must not write")
}

func TestClassifyAll_PicksUpRuleChanges(t *testing.T) {
	ctx := context.Background()
	txStore, mem := newFixture(t, "AMAZON PRIME VIDEO CHARGE")
	addAmazonRules(mem)
	runner := pipeline.NewRunner(txStore, mem, mem)

	_, err := runner.ClassifyAll(ctx)
	require.NoError(t, err)

	mem.AddRule(domain.Rule{Pattern: "video", MatchType: domain.MatchContains, Scope: domain.ScopeDescription, Priority: 50, Category: "Entertainment", Active: true})
	summary, err := runner.ClassifyAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	list, _ := mem.ListTransactions(ctx)
	assert.Equal(t, "Entertainment", list[0].CategoryValue())
}

func TestClassifyAll_PartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	txStore, mem := newFixture(t, "uber one", "uber two", "uber three")
	addAmazonRules(mem)

	list, _ := mem.ListTransactions(ctx)
	failingID := list[1].ID
	txStore.UpdateClassificationFunc = func(ctx context.Context, id string, category, subcategory *string) error {
		if id == failingID {
			return errors.New("write rejected")
		}
		return mem.UpdateClassification(ctx, id, category, subcategory)
	}

	summary, err := pipeline.NewRunner(txStore, mem, mem).ClassifyAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Evaluated)
	assert.Equal(t, 2, summary.Updated)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, failingID, summary.Errors[0].TransactionID)
	assert.Contains(t, summary.Errors[0].Error, "write rejected")

	list, _ = mem.ListTransactions(ctx)
	assert.Equal(t, "Transport", list[0].CategoryValue())
	assert.Nil(t, list[1].Category)
	assert.Equal(t, "Transport", list[2].CategoryValue())
}

func TestClassifyAll_RecoversFromPanic(t *testing.T) {
	ctx := context.Background()
	txStore, mem := newFixture(t, "uber one", "uber two")
	addAmazonRules(mem)

	list, _ := mem.ListTransactions(ctx)
	panicID := list[0].ID
	txStore.UpdateClassificationFunc = func(ctx context.Context, id string, category, subcategory *string) error {
		if id == panicID {
			panic("corrupt record")
		}
		return mem.UpdateClassification(ctx, id, category, subcategory)
	}

	summary, err := pipeline.NewRunner(txStore, mem, mem).ClassifyAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0].Error, "corrupt record")
}

func TestClassifyAll_AuditMessageKeepsValidUTF8(t *testing.T) {
	ctx := context.Background()
	txStore, mem := newFixture(t, "x")
	rules := &MockRuleStore{
		ListActiveRulesFunc: func(ctx context.Context) ([]domain.Rule, error) {
			return nil, errors.New(strings.Repeat("é", 1500))
		},
	}

	_, err := pipeline.NewRunner(txStore, rules, mem).ClassifyAll(ctx)
	require.Error(t, err)

	logs := mem.IngestionLogs()
	require.Len(t, logs, 1)
	msg := logs[0].ErrorMessage
	assert.True(t, utf8.ValidString(msg), "message must not end in a split rune")
	assert.LessOrEqual(t, len(msg), 2000)
	assert.Greater(t, len(msg), 1990)
}

func TestClassifyAll_CatastrophicFailureWritesAuditEntry(t *testing.T) {
	ctx := context.Background()
	txStore, mem := newFixture(t, "x")
	rules := &MockRuleStore{
		ListActiveRulesFunc: func(ctx context.Context) ([]domain.Rule, error) {
			return nil, errors.New("rule store down")
		},
	}

	_, err := pipeline.NewRunner(txStore, rules, mem).ClassifyAll(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))

	logs := mem.IngestionLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.ActionMatching, logs[0].Action)
	assert.Equal(t, domain.LogStatusError, logs[0].Status)
	assert.Contains(t, logs[0].ErrorMessage, "rule store down")
}

func TestImportThenClassify(t *testing.T) {
	ctx := context.Background()
	txStore, mem := newFixture(t)
	addAmazonRules(mem)
	runner := pipeline.NewRunner(txStore, mem, mem)

	importer := ingest.ImporterFunc(func(ctx context.Context) (*ingest.Result, error) {
		_, err := mem.CreateTransaction(ctx, &domain.Transaction{ExternalID: "new", Description: "AMAZON BASICS"})
		require.NoError(t, err)
		return &ingest.Result{Source: domain.SourceSheet, Processed: 1, Imported: 1}, nil
	})

	result, err := runner.ImportThenClassify(ctx, importer)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Import.Imported)
	require.NotNil(t, result.Classify)
	assert.Equal(t, 1, result.Classify.Updated)
}

func TestImportThenClassify_ClassifyFailureKeepsImport(t *testing.T) {
	ctx := context.Background()
	txStore, mem := newFixture(t)
	rules := &MockRuleStore{
		ListActiveRulesFunc: func(ctx context.Context) ([]domain.Rule, error) {
			return nil, errors.New("timeout")
		},
	}
	runner := pipeline.NewRunner(txStore, rules, mem)

	importer := ingest.ImporterFunc(func(ctx context.Context) (*ingest.Result, error) {
		_, err := mem.CreateTransaction(ctx, &domain.Transaction{ExternalID: "kept"})
		require.NoError(t, err)
		return &ingest.Result{Imported: 1}, nil
	})

	result, err := runner.ImportThenClassify(ctx, importer)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Import.Imported)
	assert.NotEmpty(t, result.ClassifyError)

	list, _ := mem.ListTransactions(ctx)
	assert.Len(t, list, 1, "import must not be undone")
}

func TestImport_AuditPolicy(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantAudit bool
	}{
		{"upstream failure", domain.Upstream("sheet", errors.New("503")), true},
		{"validation failure", domain.Validationf("no header"), false},
		{"unauthorized", domain.Unauthorizedf("bad secret"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txStore, mem := newFixture(t)
			runner := pipeline.NewRunner(txStore, mem, mem)

			_, err := runner.Import(context.Background(), ingest.ImporterFunc(func(ctx context.Context) (*ingest.Result, error) {
				return nil, tt.err
			}))
			require.Error(t, err)

			logs := mem.IngestionLogs()
			if tt.wantAudit {
				require.Len(t, logs, 1)
				assert.Equal(t, domain.ActionImport, logs[0].Action)
			} else {
				assert.Empty(t, logs)
			}
		})
	}
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	txStore, mem := newFixture(t, "a", "b", "c")

	list, _ := mem.ListTransactions(ctx)
	stuck := list[2].ID
	txStore.DeleteTransactionFunc = func(ctx context.Context, id string) error {
		if id == stuck {
			return errors.New("locked")
		}
		return mem.DeleteTransaction(ctx, id)
	}

	summary, err := pipeline.NewRunner(txStore, mem, mem).DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Deleted)
	require.Len(t, summary.Errors, 1)

	list, _ = mem.ListTransactions(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, stuck, list[0].ID)
}
