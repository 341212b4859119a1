package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Source names the ingestion channel a transaction arrived through.
type Source string

const (
	SourceSheet   Source = "sheet"
	SourceWebhook Source = "webhook"
	SourceCSV     Source = "csv"
)

// Account is the account snapshot carried by every bank feed row.
type Account struct {
	Name     string          `json:"name"`
	Nature   string          `json:"nature"`
	Provider string          `json:"provider"`
	UUID     string          `json:"uuid"`
	Balance  decimal.Decimal `json:"balance"`
}

// Transaction is the canonical bank transaction.
// Ingestion owns every field except Category and Subcategory, which belong to
// the classification path.
type Transaction struct {
	// ID is the store-assigned record id.
	ID string `json:"id"`
	// ExternalID is the source-assigned key used for deduplication.
	ExternalID string `json:"external_id"`

	Status    string          `json:"status"`
	ValueDate civil.Date      `json:"value_date"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency_code"`

	Description string `json:"description"`
	Additional  string `json:"additional"`

	Category    *string `json:"category"`
	Subcategory *string `json:"subcategory"`

	Duplicated bool    `json:"duplicated"`
	Account    Account `json:"account"`

	Payee            string `json:"payee"`
	PayeeInformation string `json:"payee_information"`
	Payer            string `json:"payer"`
	PayerInformation string `json:"payer_information"`

	OriginalAmount       decimal.Decimal `json:"original_amount"`
	OriginalCurrencyCode string          `json:"original_currency_code"`
	ExchangeRate         decimal.Decimal `json:"exchange_rate"`

	PostingDate civil.Date `json:"posting_date"`
	PostingTime string     `json:"posting_time"`
	Type        string     `json:"type"`
	EndToEndID  string     `json:"end_to_end_id"`

	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// CompositeKey identifies a row when the source has no stable identifier.
type CompositeKey struct {
	Account   string
	ValueDate civil.Date
	Secondary string
}

// Key returns the composite key of t. Account UUID is preferred over the
// account name; the secondary part combines amount and description.
func (t *Transaction) Key() CompositeKey {
	account := t.Account.UUID
	if account == "" {
		account = t.Account.Name
	}
	return CompositeKey{
		Account:   account,
		ValueDate: t.ValueDate,
		Secondary: t.Amount.String() + "|" + t.Description,
	}
}

// CategoryValue returns the category or "" when unset.
func (t *Transaction) CategoryValue() string {
	return deref(t.Category)
}

// SubcategoryValue returns the subcategory or "" when unset.
func (t *Transaction) SubcategoryValue() string {
	return deref(t.Subcategory)
}

// StringPtr returns nil for the empty string so that "" and unset compare equal.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
