package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/veskar/trialkit/pubmed"
	"github.com/veskar/trialkit/tavily"
)

// handlePubMedSearch runs an ESearch against NCBI and optionally fetches the
// matched articles. GET /v1/pubmed/search?query=...&limit=N&fetch=1
func (s *Service) handlePubMedSearch(w http.ResponseWriter, r *http.Request) {
	if s.PubMed == nil {
		s.writeError(w, r, http.StatusNotImplemented, fmt.Errorf("pubmed search is not configured"))
		return
	}
	query := r.URL.Query().Get("query")
	if query == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}
	opts := pubmed.SearchOptions{
		Sort:    r.URL.Query().Get("sort"),
		MinDate: r.URL.Query().Get("min_date"),
		MaxDate: r.URL.Query().Get("max_date"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		opts.Limit = n
	}

	res, err := s.PubMed.Search(r.Context(), query, opts)
	if err != nil {
		s.writeError(w, r, http.StatusBadGateway, err)
		return
	}
	if fetch, _ := strconv.ParseBool(r.URL.Query().Get("fetch")); !fetch {
		s.writeJSON(w, http.StatusOK, res)
		return
	}
	articles, err := s.PubMed.Fetch(r.Context(), res.PMIDs)
	if err != nil {
		s.writeError(w, r, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"count": res.Count, "articles": articles})
}

type tavilySearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	Depth      string `json:"depth,omitempty"`
}

// handleTavilySearch proxies a web search through the configured Tavily
// account. POST /v1/tavily/search
func (s *Service) handleTavilySearch(w http.ResponseWriter, r *http.Request) {
	if s.Tavily == nil {
		s.writeError(w, r, http.StatusNotImplemented, fmt.Errorf("tavily search is not configured"))
		return
	}
	var req tavilySearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if req.Query == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}

	res, err := s.Tavily.Search(r.Context(), req.Query, tavily.SearchOptions{
		MaxResults: req.MaxResults,
		Depth:      req.Depth,
	})
	if err != nil {
		s.writeError(w, r, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}
