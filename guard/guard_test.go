package guard

import (
	"net"
	"strings"
	"testing"
)

func TestCheckURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://clinicaltrials.gov/study/NCT01234567", false},
		{"http://example.com/protocol.pdf", false},
		{"ftp://example.com/data", true},    // bad scheme
		{"javascript:alert(1)", true},       // bad scheme
		{"http://127.0.0.1/admin", true},    // loopback
		{"http://10.0.0.1/internal", true},  // private
		{"http://192.168.1.1/api", true},    // private
		{"http://[::1]/api", true},          // IPv6 loopback
		{"http://169.254.169.254/", true},   // link-local metadata
		{"http://172.16.0.1/internal", true}, // private
	}
	for _, tt := range tests {
		err := CheckURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckURL(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestContainPath(t *testing.T) {
	tests := []struct {
		base, name string
		wantErr    bool
	}{
		{"/data/intake", "run-1/protocol.pdf", false},
		{"/data/intake", "../etc/passwd", true},
		{"/data/intake", "a/../b", true},
		{"/data/intake", "crf_v2.docx", false},
	}
	for _, tt := range tests {
		_, err := ContainPath(tt.base, tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ContainPath(%q, %q) error=%v, wantErr=%v", tt.base, tt.name, err, tt.wantErr)
		}
	}
}

func TestCheckIdentifier(t *testing.T) {
	if err := CheckIdentifier("run-42_crf.json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, bad := range []string{"", "has spaces", "a/b", strings.Repeat("x", 257)} {
		if err := CheckIdentifier(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestReadAtMost(t *testing.T) {
	data, err := ReadAtMost(strings.NewReader("hello"), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q", data)
	}
	if _, err := ReadAtMost(strings.NewReader("hello world"), 5); err == nil {
		t.Fatal("expected error past limit")
	}
}

func TestPrivateAddr(t *testing.T) {
	for _, addr := range []string{"127.0.0.1", "10.1.2.3", "172.20.0.5", "192.168.0.9", "169.254.1.1", "::1", "fc00::1"} {
		if !privateAddr(net.ParseIP(addr)) {
			t.Errorf("privateAddr(%s) = false, want true", addr)
		}
	}
	for _, addr := range []string{"8.8.8.8", "1.1.1.1", "2606:4700::1111"} {
		if privateAddr(net.ParseIP(addr)) {
			t.Errorf("privateAddr(%s) = true, want false", addr)
		}
	}
}
