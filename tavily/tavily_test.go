package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tvly-test" {
			t.Errorf("auth header = %q", got)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req["query"] != "sepsis guidelines 2026" {
			t.Errorf("query = %v", req["query"])
		}
		if req["max_results"] != float64(3) {
			t.Errorf("max_results = %v", req["max_results"])
		}

		json.NewEncoder(w).Encode(Response{
			Query: "sepsis guidelines 2026",
			Results: []Result{
				{Title: "Surviving Sepsis Campaign", URL: "https://example.org/ssc", Content: "Updated bundle...", Score: 0.97},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "tvly-test"})
	if err != nil {
		t.Fatal(err)
	}

	res, err := c.Search(context.Background(), "sepsis guidelines 2026", SearchOptions{MaxResults: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 1 || res.Results[0].Score != 0.97 {
		t.Fatalf("results = %+v", res.Results)
	}
}

func TestSearch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for missing api key")
	}

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "bad"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Search(context.Background(), "anything", SearchOptions{}); err == nil {
		t.Error("expected error from 401 response")
	}
	if _, err := c.Search(context.Background(), "  ", SearchOptions{}); err == nil {
		t.Error("expected error for empty query")
	}
}
