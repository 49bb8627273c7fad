package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/agencyatlas/npidb-crawler/internal/scrape"
)

func sampleAgencies() []scrape.Agency {
	return []scrape.Agency{
		{
			NPI:             "1234567890",
			ProviderName:    "CARING HANDS HOME HEALTH",
			Phone:           "919-555-0100",
			EnumerationDate: "2015-04-01",
			DetailURL:       "https://npidb.org/doctors/caring-hands.aspx",
			Address:         &scrape.Address{Street: "100 Main St", City: "Raleigh", State: "NC", Zip: "27601"},
			Official:        &scrape.Official{Name: "JANE DOE", Title: "ADMINISTRATOR"},
			SourceState:     "NC",
			SourceLocation:  "Raleigh",
		},
		{
			ProviderName:   "BARE LISTING ROW",
			DetailURL:      "https://npidb.org/doctors/bare.aspx",
			SourceState:    "NC",
			SourceLocation: "Raleigh",
			Partial:        true,
		},
	}
}

func TestRenderCSV(t *testing.T) {
	t.Parallel()

	svc := NewService(nil)
	out, err := svc.Render(FormatCSV, sampleAgencies())
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, columns, records[0])
	require.Equal(t, "1234567890", records[1][0])
	require.Equal(t, "Raleigh", records[1][6])
	require.Equal(t, "JANE DOE", records[1][9])
	require.Equal(t, "true", records[2][14])
	// Missing sections render as empty cells, not panics.
	require.Equal(t, "", records[2][5])
}

func TestRenderJSONRoundTrips(t *testing.T) {
	t.Parallel()

	svc := NewService(nil)
	out, err := svc.Render(FormatJSON, sampleAgencies())
	require.NoError(t, err)

	var decoded []scrape.Agency
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "CARING HANDS HOME HEALTH", decoded[0].ProviderName)
	require.NotNil(t, decoded[0].Official)
	require.True(t, decoded[1].Partial)

	// Empty input renders an empty array, not null.
	out, err = svc.Render(FormatJSON, nil)
	require.NoError(t, err)
	require.Equal(t, "[]", string(out))
}

func TestRenderXLSX(t *testing.T) {
	t.Parallel()

	svc := NewService(nil)
	out, err := svc.Render(FormatXLSX, sampleAgencies())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue("Agencies", "A1")
	require.NoError(t, err)
	require.Equal(t, "npi", header)

	npi, err := f.GetCellValue("Agencies", "A2")
	require.NoError(t, err)
	require.Equal(t, "1234567890", npi)

	partial, err := f.GetCellValue("Agencies", "O3")
	require.NoError(t, err)
	require.Equal(t, "true", partial)
}

func TestRenderUnsupportedFormat(t *testing.T) {
	t.Parallel()

	svc := NewService(nil)
	_, err := svc.Render("pdf", sampleAgencies())
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFilename(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 15, 4, 5, 0, time.UTC)
	require.Equal(t, "agencies-2025-06-01.csv", Filename(FormatCSV, now))
	require.Equal(t, "agencies-2025-06-01.xlsx", Filename(FormatXLSX, now))
}
