package validate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

const testRulesYAML = `
rules:
  - field: SUBJID
    kind: required
  - field: SEX
    kind: allowed
    allowed: ["1", "2"]
  - field: AGE
    kind: range
    min: 18
    max: 99
  - field: ICDAT
    kind: date
  - field: AEENDT
    kind: after
    other: AESTDT
    severity: warn
`

func TestParseRules(t *testing.T) {
	rs, err := ParseRules([]byte(testRulesYAML))
	if err != nil {
		t.Fatal(err)
	}
	if len(rs.Rules) != 5 {
		t.Fatalf("got %d rules, want 5", len(rs.Rules))
	}
	if rs.Rules[0].Severity != SeverityError {
		t.Errorf("default severity = %q", rs.Rules[0].Severity)
	}
	if rs.Rules[4].Severity != SeverityWarn {
		t.Errorf("declared severity = %q", rs.Rules[4].Severity)
	}
	if rs.Rules[3].Layout != DefaultDateLayout {
		t.Errorf("default layout = %q", rs.Rules[3].Layout)
	}
}

func TestParseRules_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown kind", "rules:\n  - field: X\n    kind: regex"},
		{"empty allowed", "rules:\n  - field: X\n    kind: allowed"},
		{"range without bounds", "rules:\n  - field: X\n    kind: range"},
		{"min above max", "rules:\n  - field: X\n    kind: range\n    min: 10\n    max: 1"},
		{"after without other", "rules:\n  - field: X\n    kind: after"},
		{"bad severity", "rules:\n  - field: X\n    kind: required\n    severity: fatal"},
		{"no rules", "rules: []"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRules([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApply(t *testing.T) {
	ds, err := LoadCSV(writeCSV(t, strings.Join([]string{
		"SUBJID,SEX,AGE,ICDAT,AESTDT,AEENDT",
		"001,1,34,2024-03-01,2024-03-05,2024-03-07",
		",3,17,2024-13-01,2024-03-05,2024-03-01",
		"003,2,101,,,",
	}, "\n")))
	if err != nil {
		t.Fatal(err)
	}

	rs, err := ParseRules([]byte(testRulesYAML))
	if err != nil {
		t.Fatal(err)
	}

	findings, err := rs.Apply(ds)
	if err != nil {
		t.Fatal(err)
	}

	// Row 1 is clean. Row 2 violates required, allowed, range, date, and
	// after. Row 3 violates range only; its blank dates are skipped.
	if len(findings) != 6 {
		t.Fatalf("got %d findings, want 6: %+v", len(findings), findings)
	}

	byRowField := map[string]Finding{}
	for _, f := range findings {
		byRowField[f.Field+"/"+itoa(f.Row)] = f
	}

	if f := byRowField["SUBJID/2"]; f.Rule != KindRequired {
		t.Errorf("SUBJID row 2: %+v", f)
	}
	if f := byRowField["AEENDT/2"]; f.Rule != KindAfter || f.Severity != SeverityWarn {
		t.Errorf("AEENDT row 2: %+v", f)
	}
	if f := byRowField["AGE/3"]; f.Rule != KindRange || !strings.Contains(f.Message, "above maximum") {
		t.Errorf("AGE row 3: %+v", f)
	}

	// Findings come out in row order.
	for i := 1; i < len(findings); i++ {
		if findings[i].Row < findings[i-1].Row {
			t.Fatalf("findings out of row order: %+v", findings)
		}
	}
}

func itoa(n int) string {
	return string(rune('0' + n))
}

func TestApply_UnknownField(t *testing.T) {
	ds, err := LoadCSV(writeCSV(t, "A,B\n1,2"))
	if err != nil {
		t.Fatal(err)
	}
	rs, err := ParseRules([]byte("rules:\n  - field: MISSING\n    kind: required"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rs.Apply(ds); err == nil {
		t.Fatal("expected config error for unknown field")
	}
}

func TestApply_MessageOverride(t *testing.T) {
	ds, err := LoadCSV(writeCSV(t, "SEX\n9"))
	if err != nil {
		t.Fatal(err)
	}
	rs, err := ParseRules([]byte("rules:\n  - field: SEX\n    kind: allowed\n    allowed: [\"1\", \"2\"]\n    message: sex must be coded 1 or 2"))
	if err != nil {
		t.Fatal(err)
	}
	findings, err := rs.Apply(ds)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 || findings[0].Message != "sex must be coded 1 or 2" {
		t.Fatalf("findings = %+v", findings)
	}
}

func TestLoadCSV_RaggedAndHeaders(t *testing.T) {
	ds, err := LoadCSV(writeCSV(t, "A,B,C\n1,2\n4,5,6,7"))
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Rows) != 2 || ds.Rows[0][2] != "" || ds.Rows[1][2] != "6" {
		t.Fatalf("rows = %+v", ds.Rows)
	}

	if _, err := LoadCSV(writeCSV(t, "A,A\n1,2")); err == nil {
		t.Error("expected duplicate column error")
	}
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")
	wb := excelize.NewFile()
	wb.SetCellValue("Sheet1", "A1", "SUBJID")
	wb.SetCellValue("Sheet1", "B1", "AGE")
	wb.SetCellValue("Sheet1", "A2", "001")
	wb.SetCellValue("Sheet1", "B2", 42)
	if err := wb.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	wb.Close()

	ds, err := LoadXLSX(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Rows) != 1 || ds.Value(0, "age") != "42" {
		t.Fatalf("dataset = %+v", ds)
	}
}
