package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// columns is the number of leading columns mapped positionally to a Row.
const columns = 4

// LoadFile reads a work-list from an .xlsx or .csv file. The first row is a
// header and is skipped; the first four columns map to No., Pump, Led and
// Dmx2Vfd. sheet selects an xlsx sheet; empty means the first one.
//
// Nothing is returned unless the whole file was read, so a failed import
// never leaves a partial dataset.
func LoadFile(path, sheet string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return loadXLSX(path, sheet)
	case ".csv":
		f, err := os.Open(path) //nolint:gosec // operator-chosen import file
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
		}
		defer f.Close()
		return ReadCSV(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func loadXLSX(path, sheet string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrNoRows
		}
		sheet = sheets[0]
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	return toRows(records)
}

// ReadCSV reads a comma-separated work-list from r.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return toRows(records)
}

func toRows(records [][]string) ([]Row, error) {
	if len(records) < 2 {
		return nil, ErrNoRows
	}
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		var cells [columns]string
		for i := 0; i < columns && i < len(rec); i++ {
			cells[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, Row{No: cells[0], Pump: cells[1], Led: cells[2], Dmx2Vfd: cells[3]})
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
