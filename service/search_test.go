package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veskar/trialkit/pubmed"
	"github.com/veskar/trialkit/tavily"
)

const esearchXML = `<?xml version="1.0" encoding="UTF-8"?>
<eSearchResult>
  <Count>2</Count>
  <RetMax>2</RetMax>
  <IdList>
    <Id>11111111</Id>
    <Id>22222222</Id>
  </IdList>
  <QueryTranslation>"sepsis"[MeSH Terms]</QueryTranslation>
</eSearchResult>`

func TestPubMedSearchEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "esearch") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("term"); got != "sepsis" {
			t.Errorf("term: got %q", got)
		}
		w.Write([]byte(esearchXML))
	}))
	defer upstream.Close()

	pm, err := pubmed.NewClient(pubmed.Config{BaseURL: upstream.URL + "/"})
	if err != nil {
		t.Fatal(err)
	}
	s := newTestService(t, WithPubMed(pm))

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pubmed/search?query=sepsis&limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body)
	}

	var res pubmed.SearchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 || len(res.PMIDs) != 2 || res.PMIDs[0] != "11111111" {
		t.Fatalf("result: %+v", res)
	}
}

func TestPubMedSearchEndpoint_MissingQuery(t *testing.T) {
	s := newTestService(t)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pubmed/search", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestTavilySearchEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tvly-test" {
			t.Errorf("authorization: got %q", got)
		}
		json.NewEncoder(w).Encode(tavily.Response{
			Query: "crf design",
			Results: []tavily.Result{
				{Title: "CRF design basics", URL: "https://example.org/crf"},
			},
		})
	}))
	defer upstream.Close()

	tv, err := tavily.NewClient(tavily.Config{APIKey: "tvly-test", BaseURL: upstream.URL})
	if err != nil {
		t.Fatal(err)
	}
	s := newTestService(t, WithTavily(tv))

	body := strings.NewReader(`{"query":"crf design","max_results":3}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/tavily/search", body)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body)
	}

	var res tavily.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 1 || res.Results[0].URL != "https://example.org/crf" {
		t.Fatalf("results: %+v", res.Results)
	}
}

func TestTavilySearchEndpoint_Unconfigured(t *testing.T) {
	s := newTestService(t)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/tavily/search", strings.NewReader(`{"query":"x"}`)))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status: got %d", rec.Code)
	}
}

// New builds the search clients from the config so the daemon's yaml keys
// are honored without extra options.
func TestNew_SearchClientsFromConfig(t *testing.T) {
	s := newTestService(t)
	if s.PubMed == nil {
		t.Fatal("PubMed client not constructed from config")
	}
	if s.Tavily != nil {
		t.Fatal("Tavily client constructed without an API key")
	}

	cfg := DefaultConfig()
	cfg.DBPath = s.Config.DBPath + ".2"
	cfg.DataDir = s.Config.DataDir
	cfg.Tavily.APIKey = "tvly-test"
	s2, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if s2.Tavily == nil {
		t.Fatal("Tavily client not constructed from config key")
	}
}
