package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const rulesTable = "rules"

// ListActiveRulesWithClient returns active rules in creation order. Rows
// created at the same instant are ordered by rule_id so the order is stable.
func ListActiveRulesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]RuleRow, error) {
	q := client.Query(`
		SELECT
		  rule_id,
		  pattern,
		  match_type,
		  search_in,
		  category,
		  subcategory,
		  priority,
		  is_active,
		  created_ts
		FROM ` + ds.Table(rulesTable) + `
		WHERE is_active = TRUE
		ORDER BY created_ts, rule_id
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListActiveRules: query read: %w", err)
	}

	var rows []RuleRow
	for {
		var r RuleRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListActiveRules: iter next: %w", err)
		}
		rows = append(rows, r)
	}

	return rows, nil
}
