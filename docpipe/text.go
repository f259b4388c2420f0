package docpipe

import (
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

// extractText extracts content from a plain text file.
func extractText(path string) (string, []Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	text := normalizeWhitespace(string(data))
	if text == "" {
		return "", nil, nil
	}

	title := firstLine(text)

	return title, []Section{{
		Text: text,
		Type: "paragraph",
	}}, nil
}

// extractMarkdown extracts structured sections from a Markdown file.
// Detects ATX headings and pipe tables; blank lines split paragraphs.
func extractMarkdown(path string) (string, []Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	title, sections := parseMarkdown(data)
	return title, sections, nil
}

// ParseMarkdown builds a Document from in-memory markdown, for content
// that never touches disk (fetched web pages, converter output).
// The name becomes the document path for provenance.
func ParseMarkdown(name string, data []byte) *Document {
	title, sections := parseMarkdown(data)
	return &Document{
		Path:     name,
		Format:   FormatMD,
		Title:    title,
		Sections: sections,
		RawText:  joinSections(sections),
	}
}

func parseMarkdown(data []byte) (string, []Section) {
	lines := strings.Split(string(data), "\n")
	var sections []Section
	var title string
	var currentText strings.Builder
	var tableRows [][]string

	flushParagraph := func() {
		text := strings.TrimSpace(currentText.String())
		if text != "" {
			sections = append(sections, Section{
				Text: text,
				Type: "paragraph",
			})
		}
		currentText.Reset()
	}

	flushTable := func() {
		if len(tableRows) > 0 {
			sections = append(sections, Section{
				Type: "table",
				Rows: tableRows,
				Text: flattenRows(tableRows),
			})
			tableRows = nil
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Pipe table rows: | a | b |. Separator rows (---) are skipped.
		if strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") && len(trimmed) > 1 {
			flushParagraph()
			if cells := parsePipeRow(trimmed); cells != nil {
				tableRows = append(tableRows, cells)
			}
			continue
		}
		flushTable()

		// Detect ATX headings: # heading, ## heading, etc.
		if strings.HasPrefix(trimmed, "#") {
			flushParagraph()

			level := 0
			for _, ch := range trimmed {
				if ch == '#' {
					level++
				} else {
					break
				}
			}
			if level > 6 {
				level = 6
			}

			headingText := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			headingText = strings.TrimRight(headingText, "#")
			headingText = strings.TrimSpace(headingText)

			if headingText != "" {
				if title == "" {
					title = headingText
				}
				sections = append(sections, Section{
					Title: headingText,
					Level: level,
					Text:  headingText,
					Type:  "heading",
				})
			}
			continue
		}

		// Empty line = paragraph break.
		if trimmed == "" {
			flushParagraph()
			continue
		}

		if currentText.Len() > 0 {
			currentText.WriteByte(' ')
		}
		currentText.WriteString(trimmed)
	}
	flushParagraph()
	flushTable()

	if title == "" && len(sections) > 0 {
		title = firstLine(sections[0].Text)
	}

	return title, sections
}

// parsePipeRow splits a markdown table row into cells.
// Returns nil for separator rows like |---|---|.
func parsePipeRow(line string) []string {
	inner := strings.Trim(line, "|")
	parts := strings.Split(inner, "|")
	cells := make([]string, 0, len(parts))
	separator := true
	for _, p := range parts {
		cell := strings.TrimSpace(p)
		if strings.Trim(cell, ":-") != "" {
			separator = false
		}
		cells = append(cells, cell)
	}
	if separator {
		return nil
	}
	return cells
}

func normalizeWhitespace(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return truncate(strings.TrimSpace(text), 200)
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
