// Package export renders agency records as CSV, JSON, or XLSX.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/agencyatlas/npidb-crawler/internal/scrape"
)

// Formats the service can render.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// ErrUnsupportedFormat reports a format the service cannot render.
var ErrUnsupportedFormat = errors.New("unsupported export format")

var columns = []string{
	"npi", "provider_name", "agency_name", "phone", "enumeration_date",
	"street", "city", "state", "zip",
	"official_name", "official_title",
	"detail_url", "source_state", "source_location", "partial",
}

// Service renders agency exports.
type Service struct {
	logger *zap.Logger
}

// NewService builds an export Service.
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger}
}

// ContentType returns the MIME type served for a format.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

// Filename returns a dated attachment name for a format.
func Filename(format string, now time.Time) string {
	return fmt.Sprintf("agencies-%s.%s", now.UTC().Format("2006-01-02"), format)
}

// Render writes agencies in the requested format.
func (s *Service) Render(format string, agencies []scrape.Agency) ([]byte, error) {
	start := time.Now()
	var (
		out []byte
		err error
	)
	switch format {
	case FormatCSV:
		out, err = renderCSV(agencies)
	case FormatJSON:
		out, err = renderJSON(agencies)
	case FormatXLSX:
		out, err = renderXLSX(agencies)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("export ready",
		zap.String("format", format),
		zap.Int("rows", len(agencies)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return out, nil
}

func renderCSV(agencies []scrape.Agency) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, a := range agencies {
		if err := w.Write(agencyRow(a)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderJSON(agencies []scrape.Agency) ([]byte, error) {
	if agencies == nil {
		agencies = []scrape.Agency{}
	}
	out, err := json.MarshalIndent(agencies, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal agencies: %w", err)
	}
	return out, nil
}

func renderXLSX(agencies []scrape.Agency) ([]byte, error) {
	f := excelize.NewFile()
	const sheet = "Agencies"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("create sheet: %w", err)
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	for i, h := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for rowIdx, a := range agencies {
		for colIdx, v := range agencyRow(a) {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 14)
	_ = f.SetColWidth(sheet, "B", "C", 32)
	_ = f.SetColWidth(sheet, "D", "E", 16)
	_ = f.SetColWidth(sheet, "F", "F", 28)
	_ = f.SetColWidth(sheet, "G", "I", 12)
	_ = f.SetColWidth(sheet, "J", "K", 24)
	_ = f.SetColWidth(sheet, "L", "L", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func agencyRow(a scrape.Agency) []string {
	var street, city, state, zip string
	if a.Address != nil {
		street, city, state, zip = a.Address.Street, a.Address.City, a.Address.State, a.Address.Zip
	}
	var officialName, officialTitle string
	if a.Official != nil {
		officialName, officialTitle = a.Official.Name, a.Official.Title
	}
	return []string{
		a.NPI, a.ProviderName, a.AgencyName, a.Phone, a.EnumerationDate,
		street, city, state, zip,
		officialName, officialTitle,
		a.DetailURL, a.SourceState, a.SourceLocation, strconv.FormatBool(a.Partial),
	}
}
