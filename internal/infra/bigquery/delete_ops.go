package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bankfeed/internal/store"
)

// DeleteTransactionWithClient deletes one transaction row by record id.
func DeleteTransactionWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, id string) error {
	q := client.Query(`
		DELETE FROM ` + ds.Table(transactionsTable) + `
		WHERE transaction_id = @transaction_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: id},
	}

	affected, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("DeleteTransaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// runDML runs a DML statement to completion and returns the number of rows
// it affected, or -1 when the job reports no statistics.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if status.Statistics != nil {
		if details, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return details.NumDMLAffectedRows, nil
		}
	}
	return -1, nil
}
