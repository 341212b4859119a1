package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/store"
	"google.golang.org/api/iterator"
)

const transactionsTable = "transactions"

// ingestionColumns are the columns owned by ingestion. Classification
// columns and timestamps are handled separately.
var ingestionColumns = []string{
	"external_id",
	"status",
	"value_date",
	"amount",
	"currency_code",
	"description",
	"additional",
	"duplicated",
	"account_name",
	"account_nature",
	"account_provider",
	"account_uuid",
	"account_balance",
	"payee",
	"payee_information",
	"payer",
	"payer_information",
	"original_amount",
	"original_currency_code",
	"exchange_rate",
	"posting_date",
	"posting_time",
	"transaction_type",
	"end_to_end_id",
	"source",
}

const transactionSelect = `
	SELECT
		transaction_id, external_id, status, value_date, amount, currency_code,
		description, additional, category, subcategory, duplicated,
		account_name, account_nature, account_provider, account_uuid, account_balance,
		payee, payee_information, payer, payer_information,
		original_amount, original_currency_code, exchange_rate,
		posting_date, posting_time, transaction_type, end_to_end_id,
		source, created_ts, updated_ts
	FROM `

func ingestionParams(row *TransactionRow) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "external_id", Value: row.ExternalID},
		{Name: "status", Value: row.Status},
		{Name: "value_date", Value: row.ValueDate},
		{Name: "amount", Value: row.Amount},
		{Name: "currency_code", Value: row.CurrencyCode},
		{Name: "description", Value: row.Description},
		{Name: "additional", Value: row.Additional},
		{Name: "duplicated", Value: row.Duplicated},
		{Name: "account_name", Value: row.AccountName},
		{Name: "account_nature", Value: row.AccountNature},
		{Name: "account_provider", Value: row.AccountProvider},
		{Name: "account_uuid", Value: row.AccountUUID},
		{Name: "account_balance", Value: row.AccountBalance},
		{Name: "payee", Value: row.Payee},
		{Name: "payee_information", Value: row.PayeeInformation},
		{Name: "payer", Value: row.Payer},
		{Name: "payer_information", Value: row.PayerInformation},
		{Name: "original_amount", Value: row.OriginalAmount},
		{Name: "original_currency_code", Value: row.OriginalCurrencyCode},
		{Name: "exchange_rate", Value: row.ExchangeRate},
		{Name: "posting_date", Value: row.PostingDate},
		{Name: "posting_time", Value: row.PostingTime},
		{Name: "transaction_type", Value: row.TransactionType},
		{Name: "end_to_end_id", Value: row.EndToEndID},
		{Name: "source", Value: row.Source},
	}
}

// InsertTransactionWithClient inserts one row with a DML INSERT. DML is used
// instead of the streaming inserter so the row can be updated immediately.
func InsertTransactionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *TransactionRow) error {
	columns := append([]string{"transaction_id"}, ingestionColumns...)
	columns = append(columns, "category", "subcategory", "created_ts")

	placeholders := make([]string, len(columns))
	for i, c := range columns {
		placeholders[i] = "@" + c
	}

	q := client.Query(fmt.Sprintf(`
		INSERT %s (%s)
		VALUES (%s)
	`, ds.Table(transactionsTable), strings.Join(columns, ", "), strings.Join(placeholders, ", ")))

	q.Parameters = append([]bigquery.QueryParameter{
		{Name: "transaction_id", Value: row.TransactionID},
	}, ingestionParams(row)...)
	q.Parameters = append(q.Parameters,
		bigquery.QueryParameter{Name: "category", Value: row.Category},
		bigquery.QueryParameter{Name: "subcategory", Value: row.Subcategory},
		bigquery.QueryParameter{Name: "created_ts", Value: row.CreatedTS},
	)

	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertTransaction: %w", err)
	}
	return nil
}

// ReplaceTransactionWithClient overwrites the ingestion-owned columns of an
// existing row. category and subcategory are not touched.
func ReplaceTransactionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *TransactionRow) error {
	assignments := make([]string, len(ingestionColumns))
	for i, c := range ingestionColumns {
		assignments[i] = c + " = @" + c
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET %s,
		    updated_ts = @updated_ts
		WHERE transaction_id = @transaction_id
	`, ds.Table(transactionsTable), strings.Join(assignments, ",\n\t\t    ")))

	q.Parameters = append(ingestionParams(row),
		bigquery.QueryParameter{Name: "updated_ts", Value: time.Now()},
		bigquery.QueryParameter{Name: "transaction_id", Value: row.TransactionID},
	)

	affected, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("ReplaceTransaction: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ReplaceTransaction %s: %w", row.TransactionID, store.ErrNotFound)
	}
	return nil
}

// UpdateClassificationWithClient sets category and subcategory of one row.
func UpdateClassificationWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, id string, category, subcategory *string) error {
	q := client.Query(`
		UPDATE ` + ds.Table(transactionsTable) + `
		SET category = @category,
		    subcategory = @subcategory,
		    updated_ts = @updated_ts
		WHERE transaction_id = @transaction_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "category", Value: nullStringPtr(category)},
		{Name: "subcategory", Value: nullStringPtr(subcategory)},
		{Name: "updated_ts", Value: time.Now()},
		{Name: "transaction_id", Value: id},
	}

	affected, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("UpdateClassification: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("UpdateClassification %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ListTransactionsWithClient returns every row in insertion order.
func ListTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]*TransactionRow, error) {
	q := client.Query(transactionSelect + ds.Table(transactionsTable) + `
		ORDER BY created_ts, transaction_id
	`)
	return readTransactions(ctx, q, "ListTransactions")
}

// FindTransactionsByAccountDateWithClient returns rows of one account on one
// value date. The account matches account_uuid, or account_name when the
// row has no uuid. A zero date matches rows without a value date.
func FindTransactionsByAccountDateWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, key domain.CompositeKey) ([]*TransactionRow, error) {
	dateClause := "value_date = @value_date"
	params := []bigquery.QueryParameter{
		{Name: "account", Value: key.Account},
	}
	if key.ValueDate.IsZero() {
		dateClause = "value_date IS NULL"
	} else {
		params = append(params, bigquery.QueryParameter{Name: "value_date", Value: key.ValueDate})
	}

	q := client.Query(transactionSelect + ds.Table(transactionsTable) + `
		WHERE COALESCE(NULLIF(account_uuid, ''), account_name, '') = @account
		  AND ` + dateClause + `
		ORDER BY created_ts, transaction_id
	`)
	q.Parameters = params
	return readTransactions(ctx, q, "FindTransactionsByAccountDate")
}

// ListExternalIDsWithClient returns every non-empty external id.
func ListExternalIDsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) (map[string]struct{}, error) {
	q := client.Query(`
		SELECT DISTINCT external_id
		FROM ` + ds.Table(transactionsTable) + `
		WHERE external_id IS NOT NULL AND external_id != ''
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListExternalIDs: query read: %w", err)
	}

	ids := make(map[string]struct{})
	for {
		var r struct {
			ExternalID string `bigquery:"external_id"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListExternalIDs: iter next: %w", err)
		}
		ids[r.ExternalID] = struct{}{}
	}

	return ids, nil
}

func readTransactions(ctx context.Context, q *bigquery.Query, op string) ([]*TransactionRow, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: query read: %w", op, err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iter next: %w", op, err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
