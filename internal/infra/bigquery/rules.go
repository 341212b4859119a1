package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bankfeed/internal/domain"
)

type RuleRow struct {
	RuleID      string              `bigquery:"rule_id"`     // REQUIRED
	Pattern     string              `bigquery:"pattern"`     // REQUIRED
	MatchType   string              `bigquery:"match_type"`  // contains | starts_with | ends_with | exact
	SearchIn    string              `bigquery:"search_in"`   // description | additional | both
	Category    string              `bigquery:"category"`    // REQUIRED
	Subcategory bigquery.NullString `bigquery:"subcategory"` // NULLABLE
	Priority    int64               `bigquery:"priority"`    // higher wins
	IsActive    bool                `bigquery:"is_active"`
	CreatedTS   time.Time           `bigquery:"created_ts"` // REQUIRED, tiebreak for equal priority
}

// ToDomain converts the row into a domain rule.
func (r *RuleRow) ToDomain() domain.Rule {
	return domain.Rule{
		ID:          r.RuleID,
		Pattern:     r.Pattern,
		MatchType:   domain.MatchType(r.MatchType),
		Scope:       domain.Scope(r.SearchIn),
		Category:    r.Category,
		Subcategory: r.Subcategory.StringVal,
		Priority:    int(r.Priority),
		Active:      r.IsActive,
		CreatedAt:   r.CreatedTS,
	}
}
