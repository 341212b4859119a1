package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

const ingestionLogsTable = "ingestion_logs"

// InsertIngestionLogWithClient appends an audit row. Log rows are never
// updated, so the streaming inserter is used.
func InsertIngestionLogWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *IngestionLogRow) error {
	inserter := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(ingestionLogsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertIngestionLog: inserting row: %w", err)
	}
	return nil
}
