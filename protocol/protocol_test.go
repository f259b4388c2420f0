package protocol

import (
	"reflect"
	"testing"

	"github.com/veskar/trialkit/docpipe"
)

func heading(text string, level int) docpipe.Section {
	return docpipe.Section{Type: "heading", Title: text, Text: text, Level: level}
}

func para(text string) docpipe.Section {
	return docpipe.Section{Type: "paragraph", Text: text}
}

func TestParse_Sections(t *testing.T) {
	doc := &docpipe.Document{
		Title: "A Randomized Study of Drug X",
		Sections: []docpipe.Section{
			para("This is a phase III, randomized, double-blind study."),
			heading("Objectives", 2),
			para("To assess the efficacy of Drug X versus placebo."),
			heading("Primary Endpoint", 2),
			para("Overall survival at 24 months."),
			heading("Secondary Endpoints", 2),
			para("1. Progression-free survival."),
			para("2. Incidence of adverse events."),
			heading("Inclusion Criteria", 2),
			para("1. Age 18 years or older."),
			para("2. Histologically confirmed diagnosis"),
			para("with measurable disease per RECIST 1.1."),
			heading("Exclusion Criteria", 2),
			para("1. Prior systemic therapy."),
			heading("Statistical Methods", 2),
			para("A sample size of 300 provides 80% power."),
		},
	}

	p := Parse(doc)

	if p.Title != "A Randomized Study of Drug X" {
		t.Errorf("title = %q", p.Title)
	}
	if p.Phase != "Phase III" {
		t.Errorf("phase = %q", p.Phase)
	}
	if !reflect.DeepEqual(p.Objectives, []string{"To assess the efficacy of Drug X versus placebo."}) {
		t.Errorf("objectives = %v", p.Objectives)
	}
	if !reflect.DeepEqual(p.PrimaryEndpoints, []string{"Overall survival at 24 months."}) {
		t.Errorf("primary = %v", p.PrimaryEndpoints)
	}
	wantSecondary := []string{"Progression-free survival.", "Incidence of adverse events."}
	if !reflect.DeepEqual(p.SecondaryEndpoints, wantSecondary) {
		t.Errorf("secondary = %v", p.SecondaryEndpoints)
	}
	wantInclusion := []string{
		"Age 18 years or older.",
		"Histologically confirmed diagnosis with measurable disease per RECIST 1.1.",
	}
	if !reflect.DeepEqual(p.Inclusion, wantInclusion) {
		t.Errorf("inclusion = %v", p.Inclusion)
	}
	if !reflect.DeepEqual(p.Exclusion, []string{"Prior systemic therapy."}) {
		t.Errorf("exclusion = %v", p.Exclusion)
	}
}

func TestParse_CriteriaTable(t *testing.T) {
	doc := &docpipe.Document{
		Sections: []docpipe.Section{
			heading("Inclusion Criteria", 2),
			{Type: "table", Rows: [][]string{
				{"1", "Signed informed consent"},
				{"2", "ECOG performance status 0-1"},
			}},
		},
	}

	p := Parse(doc)
	want := []string{"1 Signed informed consent", "2 ECOG performance status 0-1"}
	if !reflect.DeepEqual(p.Inclusion, want) {
		t.Errorf("inclusion = %v", p.Inclusion)
	}
}

func TestParse_NoRecognizedHeadings(t *testing.T) {
	doc := &docpipe.Document{
		Title: "Synopsis",
		Sections: []docpipe.Section{
			heading("Background", 1),
			para("Drug X is an investigational agent."),
		},
	}

	p := Parse(doc)
	if p.Title != "Synopsis" {
		t.Errorf("title = %q", p.Title)
	}
	if len(p.Objectives)+len(p.Inclusion)+len(p.Exclusion) != 0 {
		t.Errorf("expected no classified content, got %+v", p)
	}
}

func TestPhaseDetection(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"This phase II study enrolls 40 subjects.", "Phase II"},
		{"An open-label Phase 1b dose escalation.", "Phase 1B"},
		{"A phase IV post-marketing study.", "Phase IV"},
		{"No phase mentioned here.", ""},
	}

	for _, tt := range tests {
		doc := &docpipe.Document{Sections: []docpipe.Section{para(tt.text)}}
		if got := Parse(doc).Phase; got != tt.want {
			t.Errorf("Phase(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
