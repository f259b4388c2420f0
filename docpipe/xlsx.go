package docpipe

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// extractXLSX reads an Excel workbook and emits one table section per
// non-empty sheet. Annotated CRFs and data dictionaries usually arrive as
// workbooks with one sheet per form.
func extractXLSX(path string) (string, []Section, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sections []Section
	var title string

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		cleaned := trimEmptyRows(rows)
		if len(cleaned) == 0 {
			continue
		}
		if title == "" {
			title = sheet
		}
		sections = append(sections, Section{
			Title: sheet,
			Type:  "table",
			Rows:  cleaned,
			Text:  flattenRows(cleaned),
			Metadata: map[string]string{
				"sheet": sheet,
			},
		})
	}

	if len(sections) == 0 {
		return "", nil, fmt.Errorf("workbook has no non-empty sheets")
	}
	return title, sections, nil
}

// trimEmptyRows drops rows whose cells are all blank.
func trimEmptyRows(rows [][]string) [][]string {
	var out [][]string
	for _, row := range rows {
		empty := true
		for _, c := range row {
			if c != "" {
				empty = false
				break
			}
		}
		if !empty {
			out = append(out, row)
		}
	}
	return out
}
