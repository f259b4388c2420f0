package tavily

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/veskar/trialkit/kit"
)

type searchReq struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Depth      string `json:"depth"`
}

// RegisterMCP registers the web search tool on an MCP server.
func (c *Client) RegisterMCP(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tavily_search",
		Description: "Run a Tavily web search and return typed results.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":       map[string]any{"type": "string", "description": "Search query"},
				"max_results": map[string]any{"type": "integer", "description": "Maximum results (default 5)"},
				"depth":       map[string]any{"type": "string", "description": "basic or advanced"},
			},
			"required": []string{"query"},
		},
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*searchReq)
		return c.Search(ctx, r.Query, SearchOptions{MaxResults: r.MaxResults, Depth: r.Depth})
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
