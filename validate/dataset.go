package validate

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Dataset is a rectangular table of string cells with named columns, as
// loaded from a CSV export or an Excel workbook. Values are kept as strings;
// rules decide how to interpret them.
type Dataset struct {
	Name   string
	Fields []string
	Rows   [][]string

	index map[string]int // lowercase field name -> column
}

// Load reads a dataset from a CSV or XLSX file, chosen by extension.
func Load(path string) (*Dataset, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return LoadCSV(path)
	case ".xlsx", ".xlsm":
		return LoadXLSX(path, "")
	default:
		return nil, fmt.Errorf("unsupported dataset format: %q", ext)
	}
}

// LoadCSV reads a header row plus data rows from a CSV file.
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are padded below
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}
	return newDataset(filepath.Base(path), records)
}

// LoadXLSX reads a dataset from one sheet of a workbook. An empty sheet name
// selects the first sheet.
func LoadXLSX(path, sheet string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}
	return newDataset(sheet, records)
}

func newDataset(name string, records [][]string) (*Dataset, error) {
	fields := make([]string, len(records[0]))
	index := make(map[string]int, len(fields))
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("column %d has an empty header", i+1)
		}
		key := strings.ToLower(h)
		if _, dup := index[key]; dup {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		fields[i] = h
		index[key] = i
	}

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]string, len(fields))
		for i := range fields {
			if i < len(rec) {
				row[i] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}

	return &Dataset{Name: name, Fields: fields, Rows: rows, index: index}, nil
}

// Column returns the column index for a field name, case-insensitively.
func (d *Dataset) Column(field string) (int, bool) {
	i, ok := d.index[strings.ToLower(field)]
	return i, ok
}

// Value returns the cell at (row, field). Missing columns yield "".
func (d *Dataset) Value(row int, field string) string {
	i, ok := d.Column(field)
	if !ok || row < 0 || row >= len(d.Rows) {
		return ""
	}
	return d.Rows[row][i]
}
