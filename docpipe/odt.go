package docpipe

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// extractODT parses an .odt file by reading content.xml from the ZIP archive.
// Headings, paragraphs, list items, and table cells are recognised; tables
// are emitted as table sections with their cell grid.
func extractODT(path string) (string, []Section, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var contentFile *zip.File
	for _, f := range r.File {
		if f.Name == "content.xml" {
			contentFile = f
			break
		}
	}
	if contentFile == nil {
		return "", nil, fmt.Errorf("content.xml not found in archive")
	}

	rc, err := contentFile.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open content.xml: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var sections []Section
	var title string
	var currentText strings.Builder
	var inHeading bool
	var headingLevel int
	var inParagraph bool
	var inList bool

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
			case "h": // <text:h>
				inHeading = true
				currentText.Reset()
				headingLevel = 1
				for _, attr := range t.Attr {
					if attr.Name.Local == "outline-level" {
						if n, err := strconv.Atoi(attr.Value); err == nil {
							headingLevel = n
						}
					}
				}
			case "p": // <text:p>
				inParagraph = true
				if tableDepth == 0 {
					currentText.Reset()
				} else if inCell && cellText.Len() > 0 {
					cellText.WriteByte(' ')
				}
			case "list": // <text:list>
				inList = true
			case "table": // <table:table>
				tableDepth++
				if tableDepth == 1 {
					rows = nil
				}
			case "table-row":
				if tableDepth == 1 {
					row = nil
				}
			case "table-cell":
				if tableDepth == 1 {
					inCell = true
					cellText.Reset()
				}
			}

		case xml.CharData:
			switch {
			case tableDepth > 0 && inCell && inParagraph:
				cellText.Write(t)
			case inHeading || inParagraph:
				currentText.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "h":
				if !inHeading {
					continue
				}
				inHeading = false
				text := strings.TrimSpace(currentText.String())
				if text == "" {
					continue
				}
				if title == "" {
					title = text
				}
				sections = append(sections, Section{
					Title: text,
					Level: headingLevel,
					Text:  text,
					Type:  "heading",
				})

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
				stype := "paragraph"
				if inList {
					stype = "list"
				}
				sections = append(sections, Section{
					Text: text,
					Type: stype,
				})

			case "list":
				inList = false

			case "table":
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
			case "table-row":
				if tableDepth == 1 && row != nil {
					rows = append(rows, row)
				}
			case "table-cell":
				if tableDepth == 1 && inCell {
					inCell = false
					row = append(row, strings.TrimSpace(cellText.String()))
				}
			}
		}
	}

	return title, sections, nil
}
