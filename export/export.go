// Package export renders parse and validation results as CSV, JSON, or XLSX
// bytes for download and archival.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/veskar/trialkit/crf"
	"github.com/veskar/trialkit/validate"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format string from a query parameter or flag.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON, FormatXLSX:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unsupported export format: %q", s)
	}
}

// ContentType returns the MIME type for HTTP responses.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

var variableHeaders = []string{"Variable Name", "Variable Expression", "Coding", "Source", "Section"}

// Variables renders CRF variable records in the given format.
func Variables(format Format, vars []crf.Variable) ([]byte, error) {
	switch format {
	case FormatJSON:
		return marshalJSON(vars)
	case FormatCSV:
		rows := make([][]string, 0, len(vars))
		for _, v := range vars {
			rows = append(rows, variableRow(v))
		}
		return writeCSV(variableHeaders, rows)
	case FormatXLSX:
		rows := make([][]any, 0, len(vars))
		for _, v := range vars {
			rows = append(rows, anyRow(variableRow(v)))
		}
		return writeXLSX("Variables", variableHeaders, rows,
			[]float64{18, 48, 48, 12, 10})
	default:
		return nil, fmt.Errorf("unsupported export format: %q", format)
	}
}

var findingHeaders = []string{"Row", "Field", "Rule", "Severity", "Message"}

// Findings renders validation findings in the given format.
func Findings(format Format, findings []validate.Finding) ([]byte, error) {
	switch format {
	case FormatJSON:
		return marshalJSON(findings)
	case FormatCSV:
		rows := make([][]string, 0, len(findings))
		for _, f := range findings {
			rows = append(rows, findingRow(f))
		}
		return writeCSV(findingHeaders, rows)
	case FormatXLSX:
		rows := make([][]any, 0, len(findings))
		for _, f := range findings {
			rows = append(rows, anyRow(findingRow(f)))
		}
		return writeXLSX("Findings", findingHeaders, rows,
			[]float64{8, 18, 12, 10, 64})
	default:
		return nil, fmt.Errorf("unsupported export format: %q", format)
	}
}

func variableRow(v crf.Variable) []string {
	return []string{v.Name, v.Expression, v.Coding, v.Source, strconv.Itoa(v.Section)}
}

func findingRow(f validate.Finding) []string {
	return []string{strconv.Itoa(f.Row), f.Field, f.Rule, f.Severity, f.Message}
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return append(data, '\n'), nil
}

func writeCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}
	return buf.Bytes(), nil
}

func anyRow(row []string) []any {
	out := make([]any, len(row))
	for i, c := range row {
		out[i] = c
	}
	return out
}

func writeXLSX(sheet string, headers []string, rows [][]any, widths []float64) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, col, col, w)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
