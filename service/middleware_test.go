package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestID_InboundHonored(t *testing.T) {
	s := newTestService(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("X-Request-ID", "req_upstream_17")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req_upstream_17" {
		t.Fatalf("X-Request-ID: got %q", got)
	}
}

func TestRequestID_Generated(t *testing.T) {
	s := newTestService(t)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	first := rec.Header().Get("X-Request-ID")
	if first == "" {
		t.Fatal("no X-Request-ID generated")
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if second := rec.Header().Get("X-Request-ID"); second == first {
		t.Fatalf("request IDs not unique: %q", first)
	}
}
