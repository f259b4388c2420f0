package pubmed

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/veskar/trialkit/kit"
)

type searchReq struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
	Fetch bool   `json:"fetch"`
}

// RegisterMCP registers the literature search tool on an MCP server.
func (c *Client) RegisterMCP(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pubmed_search",
		Description: "Search PubMed via NCBI E-utilities; optionally fetch the full article records for the matching PMIDs.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "ESearch term"},
				"limit": map[string]any{"type": "integer", "description": "Maximum results (default 20)"},
				"fetch": map[string]any{"type": "boolean", "description": "Also fetch article records"},
			},
			"required": []string{"query"},
		},
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*searchReq)
		res, err := c.Search(ctx, r.Query, SearchOptions{Limit: r.Limit})
		if err != nil {
			return nil, err
		}
		if !r.Fetch {
			return res, nil
		}
		articles, err := c.Fetch(ctx, res.PMIDs)
		if err != nil {
			return nil, err
		}
		return map[string]any{"count": res.Count, "articles": articles}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r searchReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
