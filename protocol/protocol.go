// Package protocol extracts study metadata from clinical trial protocol
// documents: title, phase, objectives, endpoints, and eligibility criteria.
// Sections are located by heading keywords; list items inside a section are
// accumulated with a continuation state, since criteria regularly wrap onto
// follow-up paragraphs without their own list marker.
package protocol

import (
	"regexp"
	"strings"

	"github.com/veskar/trialkit/docpipe"
)

// Protocol is the structured summary of a protocol document.
type Protocol struct {
	Title              string   `json:"title"`
	Phase              string   `json:"phase,omitempty"`
	Objectives         []string `json:"objectives,omitempty"`
	PrimaryEndpoints   []string `json:"primary_endpoints,omitempty"`
	SecondaryEndpoints []string `json:"secondary_endpoints,omitempty"`
	Inclusion          []string `json:"inclusion,omitempty"`
	Exclusion          []string `json:"exclusion,omitempty"`
}

type sectionKind int

const (
	secNone sectionKind = iota
	secObjectives
	secPrimary
	secSecondary
	secInclusion
	secExclusion
)

// listItemRe matches numbered, lettered, and bulleted list markers.
var listItemRe = regexp.MustCompile(`^\s*(?:\d+[.)]|[a-z][.)]|[-•*])\s+(.+)$`)

// phaseRe finds a study phase in roman or arabic form, e.g. "Phase III" or
// "phase 2b".
var phaseRe = regexp.MustCompile(`(?i)\bphase\s+(IV|I{1,3}|[1-4][ab]?)\b`)

// Parse walks the document sections and fills a Protocol. Unclassified
// content is ignored; a document with no recognizable headings yields a
// Protocol with only the title set.
func Parse(doc *docpipe.Document) *Protocol {
	p := &Protocol{Title: doc.Title}

	kind := secNone
	var items accumulator

	flush := func() {
		for _, item := range items.done() {
			switch kind {
			case secObjectives:
				p.Objectives = append(p.Objectives, item)
			case secPrimary:
				p.PrimaryEndpoints = append(p.PrimaryEndpoints, item)
			case secSecondary:
				p.SecondaryEndpoints = append(p.SecondaryEndpoints, item)
			case secInclusion:
				p.Inclusion = append(p.Inclusion, item)
			case secExclusion:
				p.Exclusion = append(p.Exclusion, item)
			}
		}
	}

	for i := range doc.Sections {
		sec := &doc.Sections[i]
		switch sec.Type {
		case "heading":
			flush()
			kind = classifyHeading(sec.Text)
		case "table":
			if kind == secNone {
				continue
			}
			for _, row := range sec.Rows {
				if line := joinRow(row); line != "" {
					items.start(line)
				}
			}
		default:
			if p.Phase == "" {
				if m := phaseRe.FindString(sec.Text); m != "" {
					p.Phase = normalizePhase(m)
				}
			}
			if kind == secNone {
				continue
			}
			for _, line := range strings.Split(sec.Text, "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if m := listItemRe.FindStringSubmatch(line); m != nil {
					items.start(m[1])
				} else if items.open() && startsLower(line) {
					// A wrapped criterion continues the previous item.
					items.extend(line)
				} else {
					items.start(line)
				}
			}
		}
	}
	flush()

	if p.Phase == "" {
		if m := phaseRe.FindString(doc.Title); m != "" {
			p.Phase = normalizePhase(m)
		}
	}
	return p
}

// accumulator collects list items, merging continuation lines into the item
// they belong to.
type accumulator struct {
	items []string
}

func (a *accumulator) start(text string) {
	a.items = append(a.items, strings.TrimSpace(text))
}

func (a *accumulator) extend(text string) {
	a.items[len(a.items)-1] += " " + strings.TrimSpace(text)
}

func (a *accumulator) open() bool { return len(a.items) > 0 }

func (a *accumulator) done() []string {
	out := a.items
	a.items = nil
	return out
}

func classifyHeading(text string) sectionKind {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "inclusion"):
		return secInclusion
	case strings.Contains(t, "exclusion"):
		return secExclusion
	case strings.Contains(t, "primary endpoint"), strings.Contains(t, "primary outcome"):
		return secPrimary
	case strings.Contains(t, "secondary endpoint"), strings.Contains(t, "secondary outcome"):
		return secSecondary
	case strings.Contains(t, "objective"):
		return secObjectives
	default:
		return secNone
	}
}

func normalizePhase(m string) string {
	fields := strings.Fields(m)
	return "Phase " + strings.ToUpper(fields[len(fields)-1])
}

func startsLower(line string) bool {
	r := rune(line[0])
	return r >= 'a' && r <= 'z'
}

func joinRow(row []string) string {
	parts := make([]string, 0, len(row))
	for _, c := range row {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}
