package idgen

import (
	"strings"
	"testing"
)

func TestNanoIDLengthAndAlphabet(t *testing.T) {
	gen := NanoID(12)
	seen := map[string]bool{}
	for range 100 {
		id := gen()
		if len(id) != 12 {
			t.Fatalf("expected length 12, got %d (%q)", len(id), id)
		}
		for _, r := range id {
			if !strings.ContainsRune("0123456789abcdefghijklmnopqrstuvwxyz", r) {
				t.Fatalf("unexpected rune %q in id %q", r, id)
			}
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestUUIDv7Sortable(t *testing.T) {
	gen := UUIDv7()
	a := gen()
	b := gen()
	if a == b {
		t.Fatal("two UUIDv7 ids are identical")
	}
	if _, err := Parse(a); err != nil {
		t.Fatalf("Parse(%q): %v", a, err)
	}
	// v7 is time-ordered; same-millisecond ties still differ in random bits.
	if b < a {
		t.Logf("ids not lexically ordered (%q > %q), acceptable within same tick", a, b)
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("run_", NanoID(8))
	id := gen()
	if !strings.HasPrefix(id, "run_") {
		t.Fatalf("expected run_ prefix, got %q", id)
	}
	if len(id) != len("run_")+8 {
		t.Fatalf("unexpected length for %q", id)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}
