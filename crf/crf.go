// Package crf extracts data-collection variables from Case Report Form
// documents. A CRF marks each variable with a bracketed identifier such as
// [SEX]; the text before the marker is the field label (the "expression")
// and the text after it carries code assignments or format hints (the
// "coding"). The parser is a single-pass scan over docpipe sections with a
// continuation state: coding text for one variable regularly spans several
// paragraphs, and a line with no marker must be classified as either more
// coding for the open variable or an unrelated label that closes it.
package crf

import (
	"regexp"
	"strings"

	"github.com/veskar/trialkit/docpipe"
)

// bracketRe matches a variable marker. Names start with a letter so that
// citation-style "[1]" references never match, and allow no spaces so prose
// asides like "[see Table 2]" are skipped.
var bracketRe = regexp.MustCompile(`\[([A-Za-z][A-Za-z0-9_]{0,63})\]`)

// assignRe matches one code assignment like "1 = Male". The value is a
// single token; multi-word labels keep only their first word inside the
// recognized run, which is enough to locate where coding text ends.
var assignRe = regexp.MustCompile(`\d+\s*=\s*[^\s\[\]]+`)

// slashListRe matches option lists like "Yes / No" or "Male/Female" at the
// start of coding text.
var slashListRe = regexp.MustCompile(`^[A-Za-z]+(?:\s*/\s*[A-Za-z]+)+`)

// formatHintRe recognizes coding-flavored lines that carry no "N = label"
// assignment: date/time formats, unit mentions, and fill-in instructions.
var formatHintRe = regexp.MustCompile(`(?i)\b(dd[/.-]mm[/.-]yyyy|mm[/.-]dd[/.-]yyyy|yyyy[/.-]mm[/.-]dd|hh:mm|specify|check all|select one|tick|units?|not done|unknown|n/a)\b`)

var optionMarkers = []string{"•", "◦", "▪", "□", "☐", "○", "( )", "-", "*"}

// Parse scans a document and returns its variables in order of first
// appearance. A document with no markers yields an empty result, not an
// error.
func Parse(doc *docpipe.Document) *Result {
	s := &scanner{}
	s.stats.Sections = len(doc.Sections)

	for i := range doc.Sections {
		sec := &doc.Sections[i]
		switch sec.Type {
		case "heading":
			// Headings never continue coding and never label a field.
			s.cur = nil
			s.pendingExpr = ""
		case "table":
			s.cur = nil
			s.pendingExpr = ""
			s.stats.Tables++
			s.scanTable(sec, i)
		default:
			s.stats.Paragraphs++
			s.scanParagraph(sec.Text, i)
		}
	}
	return s.finalize()
}

type scanner struct {
	records []Variable
	cur     *Variable // open variable accepting coding continuation
	// pendingExpr holds a label-like line waiting for a marker in the next
	// paragraph ("Date of birth:" on its own line, "[DOB]" on the next).
	pendingExpr string
	stats       Stats
}

func (s *scanner) append(v Variable) *Variable {
	s.records = append(s.records, v)
	return &s.records[len(s.records)-1]
}

func (s *scanner) scanParagraph(text string, section int) {
	matches := bracketRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		line := strings.TrimSpace(text)
		if line == "" {
			return
		}
		if s.cur != nil && continuesCoding(line) {
			s.cur.Coding = joinText(s.cur.Coding, cleanField(trimOptionMarker(line)))
			return
		}
		s.cur = nil
		if labelLike(line) {
			s.pendingExpr = line
		} else {
			s.pendingExpr = ""
		}
		return
	}

	s.stats.Matches += len(matches)
	exprs := make([]string, len(matches))
	codings := make([]string, len(matches))

	// Text before the first marker: if a variable is still open, its coding
	// may run right up to the next field label, so split off trailing
	// assignment runs first.
	prefix := strings.TrimSpace(text[:matches[0][0]])
	if s.cur != nil {
		coding, rest := splitCodingRun(prefix)
		if coding != "" {
			s.cur.Coding = joinText(s.cur.Coding, coding)
		}
		exprs[0] = rest
	} else {
		exprs[0] = prefix
	}
	if exprs[0] == "" && s.pendingExpr != "" {
		exprs[0] = s.pendingExpr
	}
	s.pendingExpr = ""

	// Text between marker i and marker i+1 belongs partly to both: coding
	// runs go to variable i, the remainder is variable i+1's label.
	for i := range matches {
		if i+1 < len(matches) {
			between := strings.TrimSpace(text[matches[i][1]:matches[i+1][0]])
			coding, rest := splitCodingRun(between)
			codings[i] = coding
			exprs[i+1] = rest
		} else {
			codings[i] = strings.TrimSpace(text[matches[i][1]:])
		}
	}

	for i, m := range matches {
		v := s.append(Variable{
			Name:       text[m[2]:m[3]],
			Expression: cleanField(exprs[i]),
			Coding:     cleanField(codings[i]),
			Source:     SourceParagraph,
			Section:    section,
		})
		s.cur = v
	}
}

// scanTable extracts one record per row carrying a marker. Cells left of the
// marker form the expression, cells right of it the coding. Marker-less rows
// whose cells all look like coding extend the previous row's record, which
// handles code lists rendered one option per row.
func (s *scanner) scanTable(sec *docpipe.Section, section int) {
	var last *Variable
	for _, row := range sec.Rows {
		nameIdx := -1
		for j, cell := range row {
			if bracketRe.MatchString(cell) {
				nameIdx = j
				break
			}
		}
		if nameIdx < 0 {
			if last != nil && rowContinuesCoding(row) {
				last.Coding = joinText(last.Coding, cleanField(strings.Join(row, " ")))
			} else {
				last = nil
			}
			continue
		}

		cell := row[nameIdx]
		loc := bracketRe.FindStringSubmatchIndex(cell)
		name := cell[loc[2]:loc[3]]
		pre := strings.TrimSpace(cell[:loc[0]])
		post := strings.TrimSpace(cell[loc[1]:])

		expr := joinText(joinCells(row[:nameIdx]), pre)
		coding := joinText(post, joinCells(row[nameIdx+1:]))

		s.stats.Matches++
		last = s.append(Variable{
			Name:       name,
			Expression: cleanField(expr),
			Coding:     cleanField(coding),
			Source:     SourceTable,
			Section:    section,
		})
	}
}

func (s *scanner) finalize() *Result {
	seen := make(map[string]bool, len(s.records))
	out := make([]Variable, 0, len(s.records))
	for _, v := range s.records {
		key := strings.ToUpper(v.Name)
		if seen[key] {
			s.stats.Duplicates++
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	s.stats.Variables = len(out)
	return &Result{Variables: out, Stats: s.stats}
}

// splitCodingRun splits text into a leading coding portion and the
// remainder. The coding portion extends through the last "N = label"
// assignment; with no assignments, a leading slash-separated option list
// counts. Everything else is remainder.
func splitCodingRun(text string) (coding, rest string) {
	if locs := assignRe.FindAllStringIndex(text, -1); len(locs) > 0 {
		end := locs[len(locs)-1][1]
		return strings.TrimSpace(text[:end]), strings.TrimSpace(text[end:])
	}
	if m := slashListRe.FindStringIndex(text); m != nil {
		return strings.TrimSpace(text[:m[1]]), strings.TrimSpace(text[m[1]:])
	}
	return "", strings.TrimSpace(text)
}

// continuesCoding reports whether a marker-less line extends the open
// variable's coding text.
func continuesCoding(line string) bool {
	if assignRe.MatchString(line) {
		return true
	}
	for _, marker := range optionMarkers {
		if strings.HasPrefix(line, marker) {
			return true
		}
	}
	return formatHintRe.MatchString(line)
}

func rowContinuesCoding(row []string) bool {
	any := false
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if !continuesCoding(cell) {
			return false
		}
		any = true
	}
	return any
}

// labelLike reports whether a line plausibly labels the next paragraph's
// marker. Field labels are short and often end with a colon; full sentences
// do not qualify.
func labelLike(line string) bool {
	if strings.HasSuffix(line, ":") {
		return true
	}
	if strings.ContainsAny(line, ".!?") {
		return false
	}
	return len(strings.Fields(line)) <= 8
}

func trimOptionMarker(line string) string {
	for _, marker := range optionMarkers {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(strings.TrimPrefix(line, marker))
		}
	}
	return line
}

func joinText(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func joinCells(cells []string) string {
	parts := make([]string, 0, len(cells))
	for _, c := range cells {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}

// cleanField collapses whitespace and strips a trailing colon.
func cleanField(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ":")
	return strings.TrimSpace(s)
}
