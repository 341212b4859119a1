package notionrules

import (
	"context"

	"github.com/jomei/notionapi"
)

// NotionService defines the Notion operations the rule store needs.
// This interface enables mocking and testing of Notion operations.
type NotionService interface {
	// QueryDatabase queries a Notion database with the given filter.
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}
