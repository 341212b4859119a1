// Package sheets reads cell ranges from Google Sheets.
package sheets

import (
	"context"
	"fmt"

	"github.com/dvloznov/bankfeed/internal/ingest"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Value render options understood by ValuesGetter.
const (
	RenderUnformatted = "UNFORMATTED_VALUE"
	RenderFormatted   = "FORMATTED_VALUE"
)

// ValuesGetter fetches one range of a spreadsheet with the given value
// render option. It is the subset of the Sheets API the reader needs.
type ValuesGetter interface {
	Get(ctx context.Context, spreadsheetID, readRange, render string) (*sheetsapi.ValueRange, error)
}

// Reader implements ingest.SheetReader.
type Reader struct {
	values ValuesGetter
}

// NewReader creates a Reader with read-only Sheets credentials. An empty
// credentialsFile uses application default credentials.
func NewReader(ctx context.Context, credentialsFile string) (*Reader, error) {
	opts := []option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsReadonlyScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewReader: creating sheets service: %w", err)
	}
	return NewReaderWithGetter(&serviceGetter{svc: svc}), nil
}

// NewReaderWithGetter creates a Reader on an existing getter.
func NewReaderWithGetter(values ValuesGetter) *Reader {
	return &Reader{values: values}
}

// ReadRange returns the rows of readRange with unformatted cell values:
// numbers as float64 and date cells as serial numbers. Numeric cells in
// identifier columns are replaced by their displayed text, so ids keep the
// digits and leading zeros the sheet shows.
func (r *Reader) ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
	vr, err := r.values.Get(ctx, spreadsheetID, readRange, RenderUnformatted)
	if err != nil {
		return nil, fmt.Errorf("ReadRange %s: %w", readRange, err)
	}
	if vr == nil || len(vr.Values) == 0 {
		return nil, nil
	}
	rows := vr.Values

	cols := numericIDCells(rows)
	if len(cols) == 0 {
		return rows, nil
	}

	formatted, err := r.values.Get(ctx, spreadsheetID, readRange, RenderFormatted)
	if err != nil {
		return nil, fmt.Errorf("ReadRange %s: formatted ids: %w", readRange, err)
	}
	if formatted == nil {
		return rows, nil
	}
	for i := 1; i < len(rows) && i < len(formatted.Values); i++ {
		for _, c := range cols {
			if c >= len(rows[i]) || c >= len(formatted.Values[i]) {
				continue
			}
			if _, numeric := rows[i][c].(float64); !numeric {
				continue
			}
			if text, ok := formatted.Values[i][c].(string); ok && text != "" {
				rows[i][c] = text
			}
		}
	}
	return rows, nil
}

// numericIDCells returns the id columns of the header row that hold at least
// one numeric cell.
func numericIDCells(rows [][]interface{}) []int {
	var cols []int
	for c, h := range rows[0] {
		if ingest.CanonicalField(ingest.ParseString(h)) != "id" {
			continue
		}
		for _, row := range rows[1:] {
			if c < len(row) {
				if _, numeric := row[c].(float64); numeric {
					cols = append(cols, c)
					break
				}
			}
		}
	}
	return cols
}

type serviceGetter struct {
	svc *sheetsapi.Service
}

func (g *serviceGetter) Get(ctx context.Context, spreadsheetID, readRange, render string) (*sheetsapi.ValueRange, error) {
	return g.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).
		ValueRenderOption(render).
		DateTimeRenderOption("SERIAL_NUMBER").
		Context(ctx).
		Do()
}

var _ ingest.SheetReader = (*Reader)(nil)
