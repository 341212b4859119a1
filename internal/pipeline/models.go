package pipeline

import (
	"time"

	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/ingest"
)

// ClassifySummary reports one classify-all run. Evaluated counts every
// transaction looked at; Updated counts only actual store writes.
type ClassifySummary struct {
	Evaluated  int               `json:"evaluated"`
	Matched    int               `json:"matched"`
	Updated    int               `json:"updated"`
	Unchanged  int               `json:"unchanged"`
	Errors     []domain.RowError `json:"errors"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"-"`
	DurationMS int64             `json:"duration_ms"`
}

// ImportClassifyResult carries both halves of import-then-classify. Import is
// kept even when the classify step fails.
type ImportClassifyResult struct {
	Import        *ingest.Result   `json:"import"`
	Classify      *ClassifySummary `json:"classify,omitempty"`
	ClassifyError string           `json:"classify_error,omitempty"`
}

// DeleteSummary reports an administrative reset.
type DeleteSummary struct {
	Processed int               `json:"processed"`
	Deleted   int               `json:"deleted"`
	Errors    []domain.RowError `json:"errors"`
}
