package crf

import (
	"regexp"
	"strings"

	"github.com/veskar/trialkit/docpipe"
)

// CRF specification documents describe variables instead of marking them
// inline. Two layouts occur in practice:
//
//   - labeled fields, one per line:
//     "Variable Name: SEX" / "Field Label: Sex of subject" / "Codes: 1=Male 2=Female"
//   - definition tables with a header row naming Variable / Label / Codes
//     columns.
//
// ParseSpec handles both and returns the same deduplicated Result as Parse.

// labeledFieldRe captures "Key: value" lines.
var labeledFieldRe = regexp.MustCompile(`^([A-Za-z][A-Za-z /_-]{1,30}?)\s*:\s*(.*)$`)

// nameTokenRe validates a variable name from a spec cell or labeled field,
// with or without surrounding brackets.
var nameTokenRe = regexp.MustCompile(`^\[?([A-Za-z][A-Za-z0-9_]{0,63})\]?$`)

const (
	colName = iota
	colLabel
	colCodes
	colNone
)

// ParseSpec scans a CRF specification document for variable definitions.
func ParseSpec(doc *docpipe.Document) *Result {
	s := &scanner{}
	s.stats.Sections = len(doc.Sections)

	var (
		pending  Variable
		hasName  bool
		inCoding bool
	)

	flush := func(section int) {
		if hasName {
			pending.Section = section
			s.append(pending)
		}
		pending = Variable{}
		hasName = false
		inCoding = false
	}

	for i := range doc.Sections {
		sec := &doc.Sections[i]
		switch sec.Type {
		case "table":
			flush(i)
			s.stats.Tables++
			s.scanSpecTable(sec, i)
		case "heading":
			flush(i)
		default:
			s.stats.Paragraphs++
			for _, line := range strings.Split(sec.Text, "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				m := labeledFieldRe.FindStringSubmatch(line)
				if m == nil {
					if inCoding {
						pending.Coding = joinText(pending.Coding, cleanField(trimOptionMarker(line)))
					}
					continue
				}
				value := strings.TrimSpace(m[2])
				switch classifyFieldKey(m[1]) {
				case colName:
					if nm := nameTokenRe.FindStringSubmatch(value); nm != nil {
						flush(i)
						pending.Name = nm[1]
						pending.Source = SourceParagraph
						hasName = true
						s.stats.Matches++
					}
					inCoding = false
				case colLabel:
					pending.Expression = joinText(pending.Expression, cleanField(value))
					inCoding = false
				case colCodes:
					pending.Coding = joinText(pending.Coding, cleanField(value))
					inCoding = true
				default:
					inCoding = false
				}
			}
		}
	}
	flush(len(doc.Sections) - 1)
	return s.finalize()
}

// scanSpecTable reads a definition table whose header row names the columns.
// Tables without a recognizable Variable column are skipped.
func (s *scanner) scanSpecTable(sec *docpipe.Section, section int) {
	if len(sec.Rows) < 2 {
		return
	}

	nameCol, labelCol, codesCol := -1, -1, -1
	for j, cell := range sec.Rows[0] {
		switch classifyFieldKey(cell) {
		case colName:
			if nameCol < 0 {
				nameCol = j
			}
		case colLabel:
			if labelCol < 0 {
				labelCol = j
			}
		case colCodes:
			if codesCol < 0 {
				codesCol = j
			}
		}
	}
	if nameCol < 0 {
		return
	}

	cellAt := func(row []string, idx int) string {
		if idx >= 0 && idx < len(row) {
			return row[idx]
		}
		return ""
	}

	for _, row := range sec.Rows[1:] {
		nm := nameTokenRe.FindStringSubmatch(strings.TrimSpace(cellAt(row, nameCol)))
		if nm == nil {
			continue
		}
		s.stats.Matches++
		s.append(Variable{
			Name:       nm[1],
			Expression: cleanField(cellAt(row, labelCol)),
			Coding:     cleanField(cellAt(row, codesCol)),
			Source:     SourceTable,
			Section:    section,
		})
	}
}

// classifyFieldKey maps a labeled-field key or table header to a column kind.
func classifyFieldKey(key string) int {
	key = strings.ToLower(strings.TrimSpace(key))
	switch {
	case key == "variable name", key == "variable", key == "name",
		key == "field name", key == "sas name", key == "item name":
		return colName
	case key == "field label", key == "label", key == "question",
		key == "description", key == "item", key == "prompt":
		return colLabel
	case key == "codes", key == "code list", key == "codelist",
		key == "coding", key == "values", key == "format",
		key == "allowed values":
		return colCodes
	default:
		return colNone
	}
}
