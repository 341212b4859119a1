package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/dvloznov/bankfeed/internal/logger"
	"github.com/dvloznov/bankfeed/internal/store"
)

// Archiver keeps a copy of an uploaded file and returns where it was stored.
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte) (string, error)
}

// CSVImporter ingests manually uploaded CSV exports.
//
// Files with an id column are deduplicated by that id. Files without one are
// keyed by (account, value date, amount and description) and re-uploads
// replace the matching rows instead of skipping them.
type CSVImporter struct {
	store    store.TransactionStore
	archiver Archiver
	now      func() time.Time
}

// NewCSVImporter creates a CSVImporter. archiver may be nil.
func NewCSVImporter(txStore store.TransactionStore, archiver Archiver) *CSVImporter {
	return &CSVImporter{store: txStore, archiver: archiver, now: time.Now}
}

// Import parses r and ingests every row. name labels the upload in logs and
// in the archive.
func (c *CSVImporter) Import(ctx context.Context, name string, r io.Reader) (*Result, error) {
	log := logger.FromContext(ctx).With().Str("file", name).Logger()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, domain.Validationf("reading upload: %v", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	headerRow, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.Validationf("csv file has no header row")
	}
	if err != nil {
		return nil, domain.Validationf("csv header: %v", err)
	}

	header := make([]string, len(headerRow))
	hasID := false
	for i, h := range headerRow {
		header[i] = CanonicalField(h)
		if header[i] == "id" {
			hasID = true
		}
	}

	if c.archiver != nil {
		if uri, err := c.archiver.Archive(ctx, name, data); err != nil {
			log.Warn().Err(err).Msg("Failed to archive upload")
		} else {
			log.Info().Str("uri", uri).Msg("Archived upload")
		}
	}

	policy := ReplaceDuplicates
	if hasID {
		policy = SkipDuplicates
	}
	gate, err := NewGate(ctx, c.store, policy)
	if err != nil {
		return nil, domain.Upstream("CSVImporter.Import", err)
	}

	result := newResult(domain.SourceCSV)
	now := c.now()
	for row := 2; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, fmt.Errorf("CSVImporter.Import: reading row %d: %w", row, err)
			}
			result.Processed++
			result.recordError(ctx, row, "", err)
			continue
		}
		if blankFields(fields) {
			continue
		}

		values := make([]interface{}, len(fields))
		for i, f := range fields {
			values[i] = f
		}
		result.absorb(ctx, gate, row, NewRecord(header, values), now, !hasID)
	}

	log.Info().
		Str("policy", policy.String()).
		Int("processed", result.Processed).
		Int("imported", result.Imported).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("CSV import finished")

	return result, nil
}

func blankFields(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}
