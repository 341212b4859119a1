package bigquery

import (
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionRow_RoundTrip(t *testing.T) {
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tx := &domain.Transaction{
		ID:          "rec-1",
		ExternalID:  "ext-1",
		ValueDate:   civil.Date{Year: 2024, Month: 6, Day: 1},
		Amount:      decimal.RequireFromString("-1234.56"),
		Currency:    "EUR",
		Description: "Hardware store",
		Category:    domain.StringPtr("Home"),
		Account:     domain.Account{Name: "Main", Balance: decimal.RequireFromString("10.5")},
		Source:      domain.SourceCSV,
		CreatedAt:   created,
	}

	row := NewTransactionRow(tx)
	assert.True(t, row.Category.Valid)
	assert.False(t, row.Subcategory.Valid)
	assert.False(t, row.PostingDate.Valid)
	assert.False(t, row.UpdatedTS.Valid)
	assert.Equal(t, "csv", row.Source)

	back := row.ToDomain()
	require.NotNil(t, back)
	assert.Equal(t, tx.ExternalID, back.ExternalID)
	assert.Equal(t, tx.ValueDate, back.ValueDate)
	assert.True(t, tx.Amount.Equal(back.Amount))
	assert.True(t, tx.Account.Balance.Equal(back.Account.Balance))
	assert.Equal(t, "Home", back.CategoryValue())
	assert.Nil(t, back.Subcategory)
	assert.True(t, back.PostingDate.IsZero())
	assert.Equal(t, tx.Key(), back.Key())
}

func TestDecimalFromRat(t *testing.T) {
	assert.True(t, decimalFromRat(nil).IsZero())

	d := decimal.RequireFromString("0.123456789")
	assert.True(t, d.Equal(decimalFromRat(d.Rat())))
}

func TestRuleRow_ToDomain(t *testing.T) {
	row := RuleRow{
		RuleID:      "r1",
		Pattern:     "amazon",
		MatchType:   "contains",
		SearchIn:    "both",
		Category:    "Supplies",
		Subcategory: bigquery.NullString{StringVal: "Office", Valid: true},
		Priority:    10,
		IsActive:    true,
	}

	r := row.ToDomain()
	assert.Equal(t, domain.MatchContains, r.MatchType)
	assert.Equal(t, domain.ScopeBoth, r.Scope)
	assert.Equal(t, 10, r.Priority)
	assert.Equal(t, "Office", r.Subcategory)
	assert.True(t, r.Active)
}

func TestDataset_Table(t *testing.T) {
	ds := Dataset{ProjectID: "proj", DatasetID: "finance"}
	assert.Equal(t, "`proj.finance.transactions`", ds.Table(transactionsTable))
}

func TestIngestionColumnsExcludeClassification(t *testing.T) {
	for _, c := range ingestionColumns {
		if c == "category" || c == "subcategory" {
			t.Errorf("ingestion column list must not contain %q", c)
		}
	}
	assert.Len(t, ingestionParams(NewTransactionRow(&domain.Transaction{})), len(ingestionColumns))
}
