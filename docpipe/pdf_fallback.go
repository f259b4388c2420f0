package docpipe

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// fallbackPDF extracts plain text with the ledongthuc reader. It has no
// notion of content-stream operators, so it handles encodings the primary
// scan mangles, at the cost of page structure: the output is a flat
// paragraph split rather than one section per page.
func fallbackPDF(path string, pageCount int, hasImages bool) (string, []Section, *ExtractionQuality, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", nil, nil, fmt.Errorf("fallback open: %w", err)
	}
	defer file.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", nil, nil, fmt.Errorf("fallback extract: %w", err)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, content); err != nil {
		return "", nil, nil, fmt.Errorf("fallback read: %w", err)
	}

	fullText := strings.TrimSpace(sb.String())
	if fullText == "" {
		return "", nil, nil, fmt.Errorf("fallback produced no text")
	}

	var title string
	var sections []Section
	for _, para := range splitPDFParagraphs(fullText) {
		if title == "" {
			title = firstLine(para)
		}
		sections = append(sections, Section{
			Text: para,
			Type: "paragraph",
		})
	}

	if pageCount <= 0 {
		pageCount = reader.NumPage()
	}
	var charsPerPage float64
	if pageCount > 0 {
		charsPerPage = float64(len([]rune(fullText))) / float64(pageCount)
	}

	quality := &ExtractionQuality{
		PageCount:       pageCount,
		CharsPerPage:    charsPerPage,
		PrintableRatio:  computePrintableRatio(fullText),
		WordlikeRatio:   computeWordlikeRatio(fullText),
		HasImageStreams: hasImages,
		VisualRefCount:  countVisualRefs(fullText),
	}
	return title, sections, quality, nil
}
