package inmemory

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTx(externalID, description string) *domain.Transaction {
	return &domain.Transaction{
		ExternalID:  externalID,
		ValueDate:   civil.Date{Year: 2024, Month: 3, Day: 1},
		Amount:      decimal.RequireFromString("-12.50"),
		Description: description,
		Account:     domain.Account{Name: "Main", UUID: "acc-1"},
	}
}

func TestStore_CreateAndList(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	first, err := s.CreateTransaction(ctx, newTx("a", "first"))
	require.NoError(t, err)
	second, err := s.CreateTransaction(ctx, newTx("b", "second"))
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.CreatedAt.IsZero())

	list, err := s.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].Description)
	assert.Equal(t, "second", list[1].Description)

	ids, err := s.ListExternalIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "a")
	assert.Contains(t, ids, "b")
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	created, err := s.CreateTransaction(ctx, newTx("a", "original"))
	require.NoError(t, err)

	created.Description = "mutated"
	list, err := s.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, "original", list[0].Description)

	list[0].Description = "mutated again"
	list, err = s.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, "original", list[0].Description)
}

func TestStore_ReplaceKeepsClassification(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	created, err := s.CreateTransaction(ctx, newTx("", "coffee"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateClassification(ctx, created.ID, domain.StringPtr("Food"), domain.StringPtr("Coffee")))

	replacement := newTx("", "coffee")
	replacement.ID = created.ID
	replacement.Status = "booked"
	replacement.Category = domain.StringPtr("ignored")
	require.NoError(t, s.ReplaceTransaction(ctx, replacement))

	list, err := s.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "booked", list[0].Status)
	assert.Equal(t, "Food", list[0].CategoryValue())
	assert.Equal(t, "Coffee", list[0].SubcategoryValue())
}

func TestStore_FindTransactionsByKey(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.CreateTransaction(ctx, newTx("", "coffee"))
	require.NoError(t, err)
	_, err = s.CreateTransaction(ctx, newTx("", "tea"))
	require.NoError(t, err)

	found, err := s.FindTransactionsByKey(ctx, newTx("", "coffee").Key())
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "coffee", found[0].Description)
}

func TestStore_MissingRecord(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	tests := []struct {
		name string
		op   func() error
	}{
		{"replace", func() error { return s.ReplaceTransaction(ctx, &domain.Transaction{ID: "nope"}) }},
		{"update", func() error { return s.UpdateClassification(ctx, "nope", nil, nil) }},
		{"delete", func() error { return s.DeleteTransaction(ctx, "nope") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			if !errors.Is(err, store.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
	assert.Equal(t, 0, s.Writes())
}

func TestStore_DeleteTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	a, _ := s.CreateTransaction(ctx, newTx("a", "a"))
	b, _ := s.CreateTransaction(ctx, newTx("b", "b"))

	require.NoError(t, s.DeleteTransaction(ctx, a.ID))

	list, err := s.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
}

func TestStore_ListActiveRules(t *testing.T) {
	s := NewStore()
	s.AddRule(domain.Rule{Pattern: "one", Active: true, Priority: 1})
	s.AddRule(domain.Rule{Pattern: "off", Active: false, Priority: 9})
	s.AddRule(domain.Rule{Pattern: "two", Active: true, Priority: 1})

	rules, err := s.ListActiveRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "one", rules[0].Pattern)
	assert.Equal(t, "two", rules[1].Pattern)
}

func TestStore_IngestionLogs(t *testing.T) {
	s := NewStore()
	entry := &domain.IngestionLog{Action: domain.ActionMatching, Status: domain.LogStatusError, ErrorMessage: "boom"}
	require.NoError(t, s.CreateIngestionLog(context.Background(), entry))

	assert.NotEmpty(t, entry.ID)
	logs := s.IngestionLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "boom", logs[0].ErrorMessage)
}
