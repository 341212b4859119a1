package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sheetValues() [][]interface{} {
	return [][]interface{}{
		{"ID", "Made On", "Amount", "Currency", "Description", "Notes", "Duplicated"},
		{"s1", "2024-02-01", "-12.30", "eur", "UBER EATS PAYMENT", "", "false"},
		{"s2", "2024-02-02", "abc", "EUR", "Refund", "card", "TRUE"},
		{"", "", "", "", "", "", ""},
		{"s3", "yesterday", "1", "EUR", "Broken date"},
	}
}

func TestSheetImporter_Import(t *testing.T) {
	ctx := context.Background()
	s := newSpyStore()
	reader := &mockSheetReader{
		MockReadRangeFunc: func(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
			assert.Equal(t, "sheet-1", spreadsheetID)
			assert.Equal(t, "Transactions!A1:Z", readRange)
			return sheetValues(), nil
		},
	}

	importer := NewSheetImporter(reader, s, "sheet-1", "Transactions!A1:Z")
	result, err := importer.Import(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceSheet, result.Source)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 5, result.Errors[0].Row)
	assert.Equal(t, "s3", result.Errors[0].ExternalID)

	list, err := s.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "EUR", list[0].Currency)
	assert.Equal(t, domain.SourceSheet, list[0].Source)
	assert.True(t, list[1].Amount.IsZero(), "unparsable amount must be stored as zero")
	assert.True(t, list[1].Duplicated)
	assert.Equal(t, "card", list[1].Additional)
}

func TestSheetImporter_SecondRunSkipsEverything(t *testing.T) {
	ctx := context.Background()
	s := newSpyStore()
	reader := &mockSheetReader{
		MockReadRangeFunc: func(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
			return sheetValues()[:3], nil
		},
	}
	importer := NewSheetImporter(reader, s, "sheet-1", "A1:Z")

	_, err := importer.Import(ctx)
	require.NoError(t, err)
	second, err := importer.Import(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 2, second.Skipped)

	list, _ := s.ListTransactions(ctx)
	assert.Len(t, list, 2)
}

func TestSheetImporter_FetchFailure(t *testing.T) {
	s := newSpyStore()
	reader := &mockSheetReader{
		MockReadRangeFunc: func(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
			return nil, errors.New("quota exceeded")
		},
	}

	_, err := NewSheetImporter(reader, s, "sheet-1", "A1:Z").Import(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, 0, s.Calls())
}

func TestSheetImporter_NotConfigured(t *testing.T) {
	s := newSpyStore()
	reader := &mockSheetReader{}

	_, err := NewSheetImporter(reader, s, "", "A1:Z").Import(context.Background())
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, 0, s.Calls())
}

func TestSheetImporter_EmptyRange(t *testing.T) {
	s := newSpyStore()
	reader := &mockSheetReader{
		MockReadRangeFunc: func(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
			return nil, nil
		},
	}

	result, err := NewSheetImporter(reader, s, "sheet-1", "A1:Z").Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.NotNil(t, result.Errors)
}
