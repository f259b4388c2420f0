package docpipe

import "testing"

func TestPrintableRatio_Normal(t *testing.T) {
	ratio := computePrintableRatio("Subjects must sign informed consent before any procedure.")
	if ratio < 0.95 {
		t.Errorf("printable ratio = %f, want > 0.95", ratio)
	}
}

func TestPrintableRatio_Garbage(t *testing.T) {
	// PUA and control chars show up when a PDF embeds CIDFonts without
	// a ToUnicode map; extraction then yields garbage code points.
	garbage := "abcdefghi\x01\x02\x03\x04\x05"
	ratio := computePrintableRatio(garbage)
	if ratio >= 0.85 {
		t.Errorf("printable ratio = %f, want < 0.85", ratio)
	}
}

func TestWordlikeRatio(t *testing.T) {
	tests := []struct {
		name string
		text string
		low  bool
	}{
		{"normal prose", "record the adverse event term and onset date for each event", false},
		{"char by char", "a b c d e f g h i j k l", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ratio := computeWordlikeRatio(tt.text)
			if tt.low && ratio >= 0.40 {
				t.Errorf("wordlike ratio = %f, want < 0.40", ratio)
			}
			if !tt.low && ratio < 0.70 {
				t.Errorf("wordlike ratio = %f, want > 0.70", ratio)
			}
		})
	}
}

func TestCountVisualRefs(t *testing.T) {
	text := "see Figure 3 for the schema; refer to Table 2 for dose levels"
	if count := countVisualRefs(text); count < 2 {
		t.Errorf("visual refs = %d, want >= 2", count)
	}
}

func TestNeedsOCR(t *testing.T) {
	q := &ExtractionQuality{
		CharsPerPage:    30,
		HasImageStreams: true,
		PrintableRatio:  0.9,
	}
	if !q.NeedsOCR() {
		t.Error("expected NeedsOCR=true for low chars + images")
	}
}

func TestHasVisualGap(t *testing.T) {
	q := &ExtractionQuality{
		VisualRefCount:  2,
		HasImageStreams: true,
	}
	if !q.HasVisualGap() {
		t.Error("expected HasVisualGap=true for visual refs + images")
	}
}

func TestPoorAndScore(t *testing.T) {
	good := &ExtractionQuality{CharsPerPage: 1200, PrintableRatio: 0.99, WordlikeRatio: 0.9}
	bad := &ExtractionQuality{CharsPerPage: 20, PrintableRatio: 0.5, WordlikeRatio: 0.2}

	if good.Poor() {
		t.Error("good extraction flagged as poor")
	}
	if !bad.Poor() {
		t.Error("bad extraction not flagged as poor")
	}
	if good.Score() <= bad.Score() {
		t.Errorf("Score() ordering wrong: good=%f bad=%f", good.Score(), bad.Score())
	}
}
