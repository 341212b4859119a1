// Package ingest normalizes transactions from the sheet, webhook and CSV
// sources and routes them through the deduplication gate.
package ingest

import (
	"context"
	"time"

	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/logger"
)

// Result summarizes one ingestion call.
type Result struct {
	Source    domain.Source     `json:"source"`
	Processed int               `json:"processed"`
	Imported  int               `json:"imported"`
	Updated   int               `json:"updated"`
	Skipped   int               `json:"skipped"`
	Errors    []domain.RowError `json:"errors"`
}

// Importer is an ingestion step that can run without further input.
type Importer interface {
	Import(ctx context.Context) (*Result, error)
}

// ImporterFunc adapts a function to Importer.
type ImporterFunc func(ctx context.Context) (*Result, error)

// Import calls f(ctx).
func (f ImporterFunc) Import(ctx context.Context) (*Result, error) {
	return f(ctx)
}

func newResult(source domain.Source) *Result {
	return &Result{Source: source, Errors: []domain.RowError{}}
}

// recordError appends a per-row failure and logs it.
func (r *Result) recordError(ctx context.Context, row int, externalID string, err error) {
	log := logger.FromContext(ctx)
	log.Warn().
		Err(err).
		Str("source", string(r.Source)).
		Int("row", row).
		Str("external_id", externalID).
		Msg("Skipping record")
	r.Errors = append(r.Errors, domain.RowError{Row: row, ExternalID: externalID, Error: err.Error()})
}

// stamp fills the ingestion-owned metadata every adapter sets.
func stamp(tx *domain.Transaction, source domain.Source, now time.Time) {
	tx.Source = source
	tx.CreatedAt = now
}

// absorb normalizes rec, runs it through gate and tallies the outcome.
// synthesize assigns a composite-key id to records that carry none.
func (r *Result) absorb(ctx context.Context, gate *Gate, row int, rec Record, now time.Time, synthesize bool) {
	r.Processed++

	tx, err := Normalize(rec)
	if err != nil {
		r.recordError(ctx, row, ParseString(rec["id"]), err)
		return
	}
	if synthesize && tx.ExternalID == "" {
		tx.ExternalID = SyntheticID(tx)
	}
	stamp(tx, r.Source, now)

	outcome, err := gate.Process(ctx, tx)
	if err != nil {
		r.recordError(ctx, row, tx.ExternalID, err)
		return
	}
	switch outcome {
	case OutcomeCreated:
		r.Imported++
	case OutcomeReplaced:
		r.Updated++
	case OutcomeSkipped:
		r.Skipped++
	}
}
