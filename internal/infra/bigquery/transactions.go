package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/shopspring/decimal"
)

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	ExternalID    string `bigquery:"external_id"`    // REQUIRED, unique by convention

	Status    bigquery.NullString `bigquery:"status"`     // NULLABLE
	ValueDate bigquery.NullDate   `bigquery:"value_date"` // NULLABLE

	Amount       *big.Rat            `bigquery:"amount"`        // REQUIRED NUMERIC
	CurrencyCode bigquery.NullString `bigquery:"currency_code"` // NULLABLE

	Description string              `bigquery:"description"` // REQUIRED STRING
	Additional  bigquery.NullString `bigquery:"additional"`  // NULLABLE

	Category    bigquery.NullString `bigquery:"category"`    // NULLABLE, owned by classification
	Subcategory bigquery.NullString `bigquery:"subcategory"` // NULLABLE, owned by classification

	Duplicated bool `bigquery:"duplicated"`

	AccountName     bigquery.NullString `bigquery:"account_name"`
	AccountNature   bigquery.NullString `bigquery:"account_nature"`
	AccountProvider bigquery.NullString `bigquery:"account_provider"`
	AccountUUID     bigquery.NullString `bigquery:"account_uuid"`
	AccountBalance  *big.Rat            `bigquery:"account_balance"` // REQUIRED NUMERIC, 0 when unknown

	Payee            bigquery.NullString `bigquery:"payee"`
	PayeeInformation bigquery.NullString `bigquery:"payee_information"`
	Payer            bigquery.NullString `bigquery:"payer"`
	PayerInformation bigquery.NullString `bigquery:"payer_information"`

	OriginalAmount       *big.Rat            `bigquery:"original_amount"` // REQUIRED NUMERIC
	OriginalCurrencyCode bigquery.NullString `bigquery:"original_currency_code"`
	ExchangeRate         *big.Rat            `bigquery:"exchange_rate"` // REQUIRED NUMERIC

	PostingDate     bigquery.NullDate   `bigquery:"posting_date"`
	PostingTime     bigquery.NullString `bigquery:"posting_time"`
	TransactionType bigquery.NullString `bigquery:"transaction_type"`
	EndToEndID      bigquery.NullString `bigquery:"end_to_end_id"`

	Source string `bigquery:"source"` // sheet | webhook | csv

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

// NewTransactionRow maps a domain transaction onto the table layout.
func NewTransactionRow(tx *domain.Transaction) *TransactionRow {
	return &TransactionRow{
		TransactionID:        tx.ID,
		ExternalID:           tx.ExternalID,
		Status:               nullString(tx.Status),
		ValueDate:            nullDate(tx.ValueDate),
		Amount:               tx.Amount.Rat(),
		CurrencyCode:         nullString(tx.Currency),
		Description:          tx.Description,
		Additional:           nullString(tx.Additional),
		Category:             nullStringPtr(tx.Category),
		Subcategory:          nullStringPtr(tx.Subcategory),
		Duplicated:           tx.Duplicated,
		AccountName:          nullString(tx.Account.Name),
		AccountNature:        nullString(tx.Account.Nature),
		AccountProvider:      nullString(tx.Account.Provider),
		AccountUUID:          nullString(tx.Account.UUID),
		AccountBalance:       tx.Account.Balance.Rat(),
		Payee:                nullString(tx.Payee),
		PayeeInformation:     nullString(tx.PayeeInformation),
		Payer:                nullString(tx.Payer),
		PayerInformation:     nullString(tx.PayerInformation),
		OriginalAmount:       tx.OriginalAmount.Rat(),
		OriginalCurrencyCode: nullString(tx.OriginalCurrencyCode),
		ExchangeRate:         tx.ExchangeRate.Rat(),
		PostingDate:          nullDate(tx.PostingDate),
		PostingTime:          nullString(tx.PostingTime),
		TransactionType:      nullString(tx.Type),
		EndToEndID:           nullString(tx.EndToEndID),
		Source:               string(tx.Source),
		CreatedTS:            tx.CreatedAt,
		UpdatedTS:            nullTimestamp(tx.UpdatedAt),
	}
}

// ToDomain converts the row back into a domain transaction.
func (r *TransactionRow) ToDomain() *domain.Transaction {
	tx := &domain.Transaction{
		ID:          r.TransactionID,
		ExternalID:  r.ExternalID,
		Status:      r.Status.StringVal,
		Amount:      decimalFromRat(r.Amount),
		Currency:    r.CurrencyCode.StringVal,
		Description: r.Description,
		Additional:  r.Additional.StringVal,
		Duplicated:  r.Duplicated,
		Account: domain.Account{
			Name:     r.AccountName.StringVal,
			Nature:   r.AccountNature.StringVal,
			Provider: r.AccountProvider.StringVal,
			UUID:     r.AccountUUID.StringVal,
			Balance:  decimalFromRat(r.AccountBalance),
		},
		Payee:                r.Payee.StringVal,
		PayeeInformation:     r.PayeeInformation.StringVal,
		Payer:                r.Payer.StringVal,
		PayerInformation:     r.PayerInformation.StringVal,
		OriginalAmount:       decimalFromRat(r.OriginalAmount),
		OriginalCurrencyCode: r.OriginalCurrencyCode.StringVal,
		ExchangeRate:         decimalFromRat(r.ExchangeRate),
		PostingTime:          r.PostingTime.StringVal,
		Type:                 r.TransactionType.StringVal,
		EndToEndID:           r.EndToEndID.StringVal,
		Source:               domain.Source(r.Source),
		CreatedAt:            r.CreatedTS,
	}
	if r.ValueDate.Valid {
		tx.ValueDate = r.ValueDate.Date
	}
	if r.PostingDate.Valid {
		tx.PostingDate = r.PostingDate.Date
	}
	if r.Category.Valid {
		tx.Category = domain.StringPtr(r.Category.StringVal)
	}
	if r.Subcategory.Valid {
		tx.Subcategory = domain.StringPtr(r.Subcategory.StringVal)
	}
	if r.UpdatedTS.Valid {
		tx.UpdatedAt = r.UpdatedTS.Timestamp
	}
	return tx
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullStringPtr(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return nullString(*s)
}

func nullDate(d civil.Date) bigquery.NullDate {
	return bigquery.NullDate{Date: d, Valid: !d.IsZero()}
}

func nullTimestamp(t time.Time) bigquery.NullTimestamp {
	return bigquery.NullTimestamp{Timestamp: t, Valid: !t.IsZero()}
}

// decimalFromRat converts a NUMERIC value. NUMERIC has scale 9.
func decimalFromRat(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(r.FloatString(9))
	if err != nil {
		return decimal.Zero
	}
	return d
}
