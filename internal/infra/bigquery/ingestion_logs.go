package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bankfeed/internal/domain"
)

type IngestionLogRow struct {
	LogID        string              `bigquery:"log_id"`        // REQUIRED
	ActionType   string              `bigquery:"action_type"`   // import | matching
	LogTS        time.Time           `bigquery:"log_ts"`        // REQUIRED
	Status       string              `bigquery:"status"`        // ok | error
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE
}

// NewIngestionLogRow maps an audit entry onto the table layout.
func NewIngestionLogRow(entry *domain.IngestionLog) *IngestionLogRow {
	return &IngestionLogRow{
		LogID:        entry.ID,
		ActionType:   string(entry.Action),
		LogTS:        entry.Timestamp,
		Status:       string(entry.Status),
		ErrorMessage: nullString(entry.ErrorMessage),
	}
}
