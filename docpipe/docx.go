package docpipe

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"
)

// extractDocx parses a .docx file by reading word/document.xml from the ZIP
// archive. Body paragraphs become heading/paragraph sections; each w:tbl
// becomes a single table section with its cell grid in Rows. CRF documents
// keep most of their variable definitions in tables, so losing the cell
// boundaries would collapse expression/name/coding columns into one string.
func extractDocx(path string) (string, []Section, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", nil, fmt.Errorf("word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var sections []Section
	var title string

	var currentText strings.Builder
	var inParagraph bool
	var paragraphStyle string

	// Table state. Word nests paragraphs inside cells, so while tableDepth>0
	// paragraph ends feed the cell buffer instead of emitting sections.
	var tableDepth int
	var rows [][]string
	var row []string
	var cellText strings.Builder
	var inCell bool

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					rows = nil
				}
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					inCell = true
					cellText.Reset()
				}
			case "p":
				inParagraph = true
				paragraphStyle = ""
				if tableDepth == 0 {
					currentText.Reset()
				} else if inCell && cellText.Len() > 0 {
					cellText.WriteByte(' ')
				}
			case "pStyle":
				if inParagraph {
					for _, attr := range t.Attr {
						if attr.Name.Local == "val" {
							paragraphStyle = attr.Value
						}
					}
				}
			}

		case xml.CharData:
			if !inParagraph {
				continue
			}
			if tableDepth > 0 {
				if inCell {
					cellText.Write(t)
				}
			} else {
				currentText.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				if tableDepth == 1 && len(rows) > 0 {
					sections = append(sections, Section{
						Type: "table",
						Rows: rows,
						Text: flattenRows(rows),
					})
				}
				if tableDepth > 0 {
					tableDepth--
				}
			case "tr":
				if tableDepth == 1 && row != nil {
					rows = append(rows, row)
				}
			case "tc":
				if tableDepth == 1 && inCell {
					inCell = false
					row = append(row, strings.TrimSpace(cellText.String()))
				}
			case "p":
				if !inParagraph {
					continue
				}
				inParagraph = false
				if tableDepth > 0 {
					continue
				}
				text := strings.TrimSpace(currentText.String())
				if text == "" {
					continue
				}

				level := docxHeadingLevel(paragraphStyle)
				if level > 0 {
					if title == "" {
						title = text
					}
					sections = append(sections, Section{
						Title: text,
						Level: level,
						Text:  text,
						Type:  "heading",
					})
				} else {
					sections = append(sections, Section{
						Text: text,
						Type: "paragraph",
					})
				}
			}
		}
	}

	return title, sections, nil
}

// docxHeadingLevel extracts the heading level from a paragraph style name.
// e.g. "Heading1" → 1, "Heading2" → 2, "Title" → 1, etc.
func docxHeadingLevel(style string) int {
	lower := strings.ToLower(style)

	if lower == "title" {
		return 1
	}
	if lower == "subtitle" {
		return 2
	}

	// "Heading1", "heading1", "Titre1", etc.
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if strings.HasPrefix(lower, prefix) {
			rest := lower[len(prefix):]
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}
