package webfetch

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/veskar/trialkit/kit"
)

type fetchReq struct {
	URL string `json:"url"`
}

// RegisterMCP registers the web_fetch tool: fetch a page, convert it to
// markdown, and return the structured document alongside fetch metadata.
func (f *Fetcher) RegisterMCP(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "web_fetch",
		Description: "Fetch a web page (trial registry entry, sponsor page), convert it to markdown, and return the structured document.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "Page URL (http or https)"},
			},
			"required": []string{"url"},
		},
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*fetchReq)
		doc, page, err := f.Document(ctx, r.URL)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"page":     page,
			"document": doc,
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r fetchReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
