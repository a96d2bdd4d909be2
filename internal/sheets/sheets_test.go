package sheets

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpreadsheetSource_Rows(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodGet, `=~^https://sheets\.test/v4/spreadsheets/sheet-1/values/`,
		httpmock.NewStringResponder(http.StatusOK, `{
			"range": "Marches!A1:Z3",
			"majorDimension": "ROWS",
			"values": [["Ville","Latitude"],["Périgueux","45,18"],["Sarlat"]]
		}`))

	src, err := NewSource(context.Background(), Config{
		SpreadsheetID: "sheet-1",
		Endpoint:      "https://sheets.test/",
		HTTPClient:    &http.Client{Transport: mt},
	})
	require.NoError(t, err)

	rows, err := src.Rows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Ville", "Latitude"}, {"Périgueux", "45,18"}, {"Sarlat"}}, rows)
}

func TestNewSource_NotConfigured(t *testing.T) {
	_, err := NewSource(context.Background(), Config{APIKey: "k"})
	require.ErrorIs(t, err, ErrNotConfigured)
}
