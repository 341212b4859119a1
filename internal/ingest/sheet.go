package ingest

import (
	"context"
	"time"

	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/logger"
	"github.com/dvloznov/bankfeed/internal/store"
)

// SheetReader reads a rectangular range of cell values. The first row is the
// header.
type SheetReader interface {
	ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error)
}

// SheetImporter re-reads a spreadsheet range and creates the rows whose
// external id is not stored yet.
type SheetImporter struct {
	reader        SheetReader
	store         store.TransactionStore
	spreadsheetID string
	readRange     string
	now           func() time.Time
}

// NewSheetImporter creates a SheetImporter for one spreadsheet range.
func NewSheetImporter(reader SheetReader, txStore store.TransactionStore, spreadsheetID, readRange string) *SheetImporter {
	return &SheetImporter{
		reader:        reader,
		store:         txStore,
		spreadsheetID: spreadsheetID,
		readRange:     readRange,
		now:           time.Now,
	}
}

// Import fetches the range and ingests every data row. A fetch failure aborts
// the call with an upstream error; row failures are collected in the result.
func (s *SheetImporter) Import(ctx context.Context) (*Result, error) {
	log := logger.FromContext(ctx)

	if s.spreadsheetID == "" {
		return nil, domain.Validationf("spreadsheet id is not configured")
	}

	values, err := s.reader.ReadRange(ctx, s.spreadsheetID, s.readRange)
	if err != nil {
		return nil, domain.Upstream("SheetImporter.Import: reading range", err)
	}

	result := newResult(domain.SourceSheet)
	if len(values) == 0 {
		log.Info().Str("range", s.readRange).Msg("Sheet range is empty")
		return result, nil
	}

	header := make([]string, len(values[0]))
	for i, cell := range values[0] {
		header[i] = CanonicalField(ParseString(cell))
	}

	gate, err := NewGate(ctx, s.store, SkipDuplicates)
	if err != nil {
		return nil, domain.Upstream("SheetImporter.Import", err)
	}

	now := s.now()
	for i, row := range values[1:] {
		if blankRow(row) {
			continue
		}
		// Sheet rows are 1-based and the header occupies row 1.
		result.absorb(ctx, gate, i+2, NewRecord(header, row), now, false)
	}

	log.Info().
		Int("processed", result.Processed).
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("Sheet import finished")

	return result, nil
}

func blankRow(row []interface{}) bool {
	for _, cell := range row {
		if ParseString(cell) != "" {
			return false
		}
	}
	return true
}
