package crf

import (
	"testing"

	"github.com/veskar/trialkit/docpipe"
)

func paragraphDoc(texts ...string) *docpipe.Document {
	doc := &docpipe.Document{Format: docpipe.FormatTXT}
	for _, t := range texts {
		doc.Sections = append(doc.Sections, docpipe.Section{Type: "paragraph", Text: t})
	}
	return doc
}

func TestParse_SingleVariable(t *testing.T) {
	res := Parse(paragraphDoc("Sex of the subject [SEX] 1=Male 2=Female"))

	if len(res.Variables) != 1 {
		t.Fatalf("got %d variables, want 1", len(res.Variables))
	}
	v := res.Variables[0]
	if v.Name != "SEX" {
		t.Errorf("name = %q", v.Name)
	}
	if v.Expression != "Sex of the subject" {
		t.Errorf("expression = %q", v.Expression)
	}
	if v.Coding != "1=Male 2=Female" {
		t.Errorf("coding = %q", v.Coding)
	}
	if v.Source != SourceParagraph {
		t.Errorf("source = %q", v.Source)
	}
}

func TestParse_TwoVariablesOneParagraph(t *testing.T) {
	// The text between the two markers carries SEX's coding followed by
	// DOB's label; the split point is the end of the last code assignment.
	res := Parse(paragraphDoc(
		"Sex of the subject [SEX] 1=Male 2=Female Date of birth [DOB] dd/mm/yyyy"))

	if len(res.Variables) != 2 {
		t.Fatalf("got %d variables, want 2", len(res.Variables))
	}

	sex, dob := res.Variables[0], res.Variables[1]
	if sex.Name != "SEX" || dob.Name != "DOB" {
		t.Fatalf("names = %q, %q", sex.Name, dob.Name)
	}
	if sex.Expression != "Sex of the subject" {
		t.Errorf("SEX expression = %q", sex.Expression)
	}
	if sex.Coding != "1=Male 2=Female" {
		t.Errorf("SEX coding = %q", sex.Coding)
	}
	if dob.Expression != "Date of birth" {
		t.Errorf("DOB expression = %q", dob.Expression)
	}
	if dob.Coding != "dd/mm/yyyy" {
		t.Errorf("DOB coding = %q", dob.Coding)
	}
}

func TestParse_CodingContinuation(t *testing.T) {
	res := Parse(paragraphDoc(
		"Smoking status [SMOKE]",
		"1 = Never",
		"2 = Former",
		"3 = Current",
	))

	if len(res.Variables) != 1 {
		t.Fatalf("got %d variables, want 1", len(res.Variables))
	}
	want := "1 = Never 2 = Former 3 = Current"
	if res.Variables[0].Coding != want {
		t.Errorf("coding = %q, want %q", res.Variables[0].Coding, want)
	}
}

func TestParse_HeadingClosesContinuation(t *testing.T) {
	doc := paragraphDoc("Smoking status [SMOKE]", "1 = Never")
	doc.Sections = append(doc.Sections,
		docpipe.Section{Type: "heading", Title: "Vital Signs", Text: "Vital Signs", Level: 2},
		docpipe.Section{Type: "paragraph", Text: "2 = Former"},
	)

	res := Parse(doc)
	if got := res.Variables[0].Coding; got != "1 = Never" {
		t.Errorf("coding = %q, want %q (heading must close the variable)", got, "1 = Never")
	}
}

func TestParse_OptionMarkerContinuation(t *testing.T) {
	res := Parse(paragraphDoc(
		"Concomitant medication taken? [CMYN]",
		"☐ Yes",
		"☐ No",
	))

	if len(res.Variables) != 1 {
		t.Fatalf("got %d variables, want 1", len(res.Variables))
	}
	if got := res.Variables[0].Coding; got != "Yes No" {
		t.Errorf("coding = %q", got)
	}
}

func TestParse_PendingLabelBeforeMarker(t *testing.T) {
	// The label sits on its own line, the marker on the next.
	res := Parse(paragraphDoc(
		"Date of informed consent:",
		"[ICDAT] dd/mm/yyyy",
	))

	if len(res.Variables) != 1 {
		t.Fatalf("got %d variables, want 1", len(res.Variables))
	}
	v := res.Variables[0]
	if v.Expression != "Date of informed consent" {
		t.Errorf("expression = %q", v.Expression)
	}
	if v.Coding != "dd/mm/yyyy" {
		t.Errorf("coding = %q", v.Coding)
	}
}

func TestParse_Table(t *testing.T) {
	doc := &docpipe.Document{Sections: []docpipe.Section{{
		Type: "table",
		Rows: [][]string{
			{"Sex", "[SEX]", "1=Male 2=Female"},
			{"Race", "[RACE]", "1=White 2=Black 3=Asian"},
		},
	}}}

	res := Parse(doc)
	if len(res.Variables) != 2 {
		t.Fatalf("got %d variables, want 2", len(res.Variables))
	}
	if res.Variables[0].Source != SourceTable {
		t.Errorf("source = %q", res.Variables[0].Source)
	}
	if res.Variables[1].Expression != "Race" || res.Variables[1].Coding != "1=White 2=Black 3=Asian" {
		t.Errorf("RACE record = %+v", res.Variables[1])
	}
}

func TestParse_TableCodingContinuationRows(t *testing.T) {
	doc := &docpipe.Document{Sections: []docpipe.Section{{
		Type: "table",
		Rows: [][]string{
			{"Smoking status", "[SMOKE]", ""},
			{"", "1 = Never", ""},
			{"", "2 = Former", ""},
		},
	}}}

	res := Parse(doc)
	if len(res.Variables) != 1 {
		t.Fatalf("got %d variables, want 1", len(res.Variables))
	}
	if got := res.Variables[0].Coding; got != "1 = Never 2 = Former" {
		t.Errorf("coding = %q", got)
	}
}

func TestParse_DedupFirstWins(t *testing.T) {
	res := Parse(paragraphDoc(
		"Sex of the subject [SEX] 1=Male 2=Female",
		"Sex recorded again [sex] 0=F 1=M",
	))

	if len(res.Variables) != 1 {
		t.Fatalf("got %d variables, want 1", len(res.Variables))
	}
	if res.Variables[0].Expression != "Sex of the subject" {
		t.Errorf("first occurrence did not win: %+v", res.Variables[0])
	}
	if res.Stats.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", res.Stats.Duplicates)
	}
}

func TestParse_SkipsNonVariableBrackets(t *testing.T) {
	res := Parse(paragraphDoc(
		"Dosing is described in [see Table 2] of the protocol [1].",
	))
	if len(res.Variables) != 0 {
		t.Fatalf("got %d variables, want 0: %+v", len(res.Variables), res.Variables)
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	res := Parse(&docpipe.Document{})
	if res == nil {
		t.Fatal("expected non-nil result")
	}
	if len(res.Variables) != 0 || res.Stats.Variables != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestParse_Stats(t *testing.T) {
	doc := paragraphDoc("Sex [SEX] 1=Male 2=Female", "Height in cm [HEIGHT]")
	doc.Sections = append(doc.Sections, docpipe.Section{
		Type: "table",
		Rows: [][]string{{"Weight", "[WEIGHT]", "kg"}},
	})

	res := Parse(doc)
	s := res.Stats
	if s.Sections != 3 || s.Paragraphs != 2 || s.Tables != 1 {
		t.Errorf("section counts wrong: %+v", s)
	}
	if s.Matches != 3 || s.Variables != 3 || s.Duplicates != 0 {
		t.Errorf("match counts wrong: %+v", s)
	}
}
