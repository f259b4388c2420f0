// Package validate checks tabular clinical data against declarative rules.
// Rules are loaded from YAML, bound to dataset columns by name, and applied
// row by row; each violation becomes one Finding. Blank cells are skipped by
// every rule kind except "required", so optional fields validate cleanly.
package validate

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rule kinds.
const (
	KindRequired = "required" // cell must be non-blank
	KindAllowed  = "allowed"  // cell must be one of the listed values
	KindRange    = "range"    // numeric cell within [min, max]
	KindDate     = "date"     // cell parses with the given layout
	KindAfter    = "after"    // date cell not before another field's date
)

// Severities.
const (
	SeverityError = "error"
	SeverityWarn  = "warn"
)

// DefaultDateLayout is used by date and after rules that set no layout.
const DefaultDateLayout = "2006-01-02"

// Rule is one declarative check on a dataset field.
type Rule struct {
	Field    string   `yaml:"field"`
	Kind     string   `yaml:"kind"`
	Severity string   `yaml:"severity"` // defaults to error
	Message  string   `yaml:"message"`  // optional override of the built-in text
	Allowed  []string `yaml:"allowed"`  // kind: allowed
	Min      *float64 `yaml:"min"`      // kind: range
	Max      *float64 `yaml:"max"`      // kind: range
	Layout   string   `yaml:"layout"`   // kind: date, after
	Other    string   `yaml:"other"`    // kind: after — the field compared against
}

// RuleSet is an ordered list of rules sharing one dataset.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Finding reports one rule violation. Row is 1-based over data rows, with
// the header row excluded.
type Finding struct {
	Row      int    `json:"row"`
	Field    string `json:"field"`
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// LoadRules reads and validates a YAML rule file. Unknown kinds, unknown
// severities, and incomplete rules are rejected here rather than surfacing
// as confusing findings later.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses YAML rule content.
func ParseRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(rs.Rules) == 0 {
		return nil, fmt.Errorf("rule file declares no rules")
	}
	for i := range rs.Rules {
		if err := rs.Rules[i].normalize(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, rs.Rules[i].Field, err)
		}
	}
	return &rs, nil
}

func (r *Rule) normalize() error {
	if strings.TrimSpace(r.Field) == "" {
		return fmt.Errorf("missing field")
	}
	switch r.Kind {
	case KindRequired:
	case KindAllowed:
		if len(r.Allowed) == 0 {
			return fmt.Errorf("allowed rule needs a non-empty allowed list")
		}
	case KindRange:
		if r.Min == nil && r.Max == nil {
			return fmt.Errorf("range rule needs min, max, or both")
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return fmt.Errorf("range rule has min > max")
		}
	case KindDate:
		if r.Layout == "" {
			r.Layout = DefaultDateLayout
		}
	case KindAfter:
		if strings.TrimSpace(r.Other) == "" {
			return fmt.Errorf("after rule needs the other field")
		}
		if r.Layout == "" {
			r.Layout = DefaultDateLayout
		}
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	switch r.Severity {
	case "":
		r.Severity = SeverityError
	case SeverityError, SeverityWarn:
	default:
		return fmt.Errorf("unknown severity %q", r.Severity)
	}
	return nil
}

// Apply runs every rule over every data row and returns the findings in row
// order. A rule naming a column the dataset does not have is a configuration
// error, not a finding.
func (rs *RuleSet) Apply(ds *Dataset) ([]Finding, error) {
	for _, r := range rs.Rules {
		if _, ok := ds.Column(r.Field); !ok {
			return nil, fmt.Errorf("rule field %q not in dataset %s", r.Field, ds.Name)
		}
		if r.Kind == KindAfter {
			if _, ok := ds.Column(r.Other); !ok {
				return nil, fmt.Errorf("rule field %q not in dataset %s", r.Other, ds.Name)
			}
		}
	}

	var findings []Finding
	for row := range ds.Rows {
		for _, r := range rs.Rules {
			if msg := r.check(ds, row); msg != "" {
				if r.Message != "" {
					msg = r.Message
				}
				findings = append(findings, Finding{
					Row:      row + 1,
					Field:    r.Field,
					Rule:     r.Kind,
					Severity: r.Severity,
					Message:  msg,
				})
			}
		}
	}
	return findings, nil
}

// check returns a violation message, or "" when the row passes.
func (r *Rule) check(ds *Dataset, row int) string {
	value := ds.Value(row, r.Field)

	if r.Kind == KindRequired {
		if value == "" {
			return "value is required"
		}
		return ""
	}
	if value == "" {
		return ""
	}

	switch r.Kind {
	case KindAllowed:
		for _, a := range r.Allowed {
			if value == a {
				return ""
			}
		}
		return fmt.Sprintf("value %q not in allowed set [%s]", value, strings.Join(r.Allowed, ", "))

	case KindRange:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Sprintf("value %q is not numeric", value)
		}
		if r.Min != nil && n < *r.Min {
			return fmt.Sprintf("value %v below minimum %v", n, *r.Min)
		}
		if r.Max != nil && n > *r.Max {
			return fmt.Sprintf("value %v above maximum %v", n, *r.Max)
		}
		return ""

	case KindDate:
		if _, err := time.Parse(r.Layout, value); err != nil {
			return fmt.Sprintf("value %q does not match date layout %s", value, r.Layout)
		}
		return ""

	case KindAfter:
		other := ds.Value(row, r.Other)
		if other == "" {
			return ""
		}
		t, err := time.Parse(r.Layout, value)
		if err != nil {
			return fmt.Sprintf("value %q does not match date layout %s", value, r.Layout)
		}
		o, err := time.Parse(r.Layout, other)
		if err != nil {
			return "" // the other field's own date rule reports it
		}
		if t.Before(o) {
			return fmt.Sprintf("date %s is before %s (%s)", value, r.Other, other)
		}
		return ""
	}
	return ""
}
