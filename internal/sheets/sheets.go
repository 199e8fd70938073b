// Package sheets reads the batch of line items from a Google spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/bulkcart/config"
	"github.com/mohammad-safakhou/bulkcart/models"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

var ErrNoData = errors.New("spreadsheet has no data rows")

// ValuesGetter fetches the raw cell grid of a range.
type ValuesGetter interface {
	Values(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error)
}

type apiGetter struct {
	srv *gsheets.Service
}

func (g apiGetter) Values(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error) {
	resp, err := g.srv.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

type Source struct {
	getter        ValuesGetter
	spreadsheetID string
	readRange     string
}

func NewSource(getter ValuesGetter, cfg config.SheetsConfig) *Source {
	return &Source{getter: getter, spreadsheetID: cfg.SpreadsheetID, readRange: cfg.Range}
}

// NewServiceSource authenticates with the service account key in
// cfg.CredentialsFile using the read-only spreadsheet scope.
func NewServiceSource(ctx context.Context, cfg config.SheetsConfig) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	srv, err := gsheets.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(gsheets.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return NewSource(apiGetter{srv: srv}, cfg), nil
}

// LineItems reads the configured range. It fails with ErrNoData when nothing
// but the header is present.
func (s *Source) LineItems(ctx context.Context) ([]models.LineItem, error) {
	values, err := s.getter.Values(ctx, s.spreadsheetID, s.readRange)
	if err != nil {
		return nil, fmt.Errorf("read %s from %s: %w", s.readRange, s.spreadsheetID, err)
	}
	return ParseRows(values)
}

// ParseRows drops the header row and any trailing empty rows. Every other
// row becomes a line item, even with a blank code, so that it is reported
// rather than lost. Column A is the item code, column B the quantity, both
// kept as strings.
func ParseRows(values [][]interface{}) ([]models.LineItem, error) {
	end := len(values)
	for end > 1 && cell(values[end-1], 0) == "" && cell(values[end-1], 1) == "" {
		end--
	}
	if end <= 1 {
		return nil, ErrNoData
	}
	items := make([]models.LineItem, 0, end-1)
	for i, row := range values[1:end] {
		items = append(items, models.LineItem{Row: i + 2, Code: cell(row, 0), Quantity: cell(row, 1)})
	}
	return items, nil
}

func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}
