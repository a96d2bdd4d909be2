// Package sheets migrates the historical marche spreadsheet into the
// database.
package sheets

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// DefaultRange is read when none is configured.
const DefaultRange = "Marches!A1:Z"

// ErrNotConfigured is returned when the spreadsheet is not configured.
var ErrNotConfigured = errors.New("sheets: spreadsheet not configured")

// Config configures a SpreadsheetSource.
type Config struct {
	APIKey        string
	SpreadsheetID string
	Range         string
	// Endpoint and HTTPClient override the Google API defaults.
	Endpoint   string
	HTTPClient *http.Client
}

// SpreadsheetSource reads rows from a Google spreadsheet.
type SpreadsheetSource struct {
	values        *gsheets.SpreadsheetsValuesService
	spreadsheetID string
	readRange     string
}

// NewSource creates a SpreadsheetSource.
func NewSource(ctx context.Context, cfg Config) (*SpreadsheetSource, error) {
	if cfg.SpreadsheetID == "" || (cfg.APIKey == "" && cfg.HTTPClient == nil) {
		return nil, ErrNotConfigured
	}
	if cfg.Range == "" {
		cfg.Range = DefaultRange
	}

	var opts []option.ClientOption
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	} else {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	srv, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create sheets service")
	}
	return &SpreadsheetSource{
		values:        srv.Spreadsheets.Values,
		spreadsheetID: cfg.SpreadsheetID,
		readRange:     cfg.Range,
	}, nil
}

// Rows returns the configured range as formatted strings.
func (s *SpreadsheetSource) Rows(ctx context.Context) ([][]string, error) {
	resp, err := s.values.Get(s.spreadsheetID, s.readRange).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, errors.Wrapf(err, "read range %q", s.readRange)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, values := range resp.Values {
		row := make([]string, len(values))
		for i, v := range values {
			if v != nil {
				row[i] = fmt.Sprint(v)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
