// Package notionrules reads classification rules from a Notion database.
package notionrules

import (
	"context"
	"fmt"

	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/logger"
	"github.com/dvloznov/bankfeed/internal/store"
	"github.com/jomei/notionapi"
)

// PageSize is the number of pages requested per query.
const PageSize = 100

// RuleStore implements store.RuleStore on a Notion database.
type RuleStore struct {
	notion     NotionService
	databaseID string
}

// NewRuleStore creates a RuleStore reading from databaseID.
func NewRuleStore(notion NotionService, databaseID string) *RuleStore {
	return &RuleStore{notion: notion, databaseID: databaseID}
}

// ListActiveRules returns pages with the Active checkbox set, oldest first.
// Creation time is the tiebreak between rules of equal priority.
func (s *RuleStore) ListActiveRules(ctx context.Context) ([]domain.Rule, error) {
	log := logger.FromContext(ctx)

	var rules []domain.Rule
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			Filter: &notionapi.PropertyFilter{
				Property: PropActive,
				Checkbox: &notionapi.CheckboxFilterCondition{Equals: true},
			},
			Sorts: []notionapi.SortObject{
				{Timestamp: notionapi.TimestampCreated, Direction: notionapi.SortOrderASC},
			},
			PageSize: PageSize,
		}

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := s.notion.QueryDatabase(ctx, s.databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("ListActiveRules: %w", err)
		}

		for _, page := range resp.Results {
			if page.Archived {
				continue
			}
			rules = append(rules, PageToRule(page))
		}

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	log.Debug().
		Str("database_id", s.databaseID).
		Int("rule_count", len(rules)).
		Msg("Loaded rules from Notion")

	return rules, nil
}

var _ store.RuleStore = (*RuleStore)(nil)
