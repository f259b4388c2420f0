package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type eSearchResult struct {
	XMLName          xml.Name `xml:"eSearchResult"`
	Count            int      `xml:"Count"`
	QueryTranslation string   `xml:"QueryTranslation"`
	IDList           struct {
		IDs []string `xml:"Id"`
	} `xml:"IdList"`
}

// Search runs an ESearch query and returns matching PMIDs.
func (c *Client) Search(ctx context.Context, term string, opts SearchOptions) (*SearchResult, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("search term is required")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmode", "xml")
	params.Set("retmax", strconv.Itoa(limit))
	if opts.Sort != "" {
		params.Set("sort", opts.Sort)
	}
	if opts.MinDate != "" || opts.MaxDate != "" {
		params.Set("datetype", "pdat")
		if opts.MinDate != "" {
			params.Set("mindate", opts.MinDate)
		}
		if opts.MaxDate != "" {
			params.Set("maxdate", opts.MaxDate)
		}
	}

	body, err := c.doGet(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("esearch: %w", err)
	}

	var res eSearchResult
	if err := xml.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("parse esearch response: %w", err)
	}

	return &SearchResult{
		Count:            res.Count,
		PMIDs:            res.IDList.IDs,
		QueryTranslation: res.QueryTranslation,
	}, nil
}
