package protocol

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/veskar/trialkit/docpipe"
	"github.com/veskar/trialkit/kit"
)

type parseReq struct {
	Path string `json:"path"`
}

// RegisterMCP registers the protocol parsing tool on an MCP server.
func RegisterMCP(srv *mcp.Server, pipe *docpipe.Pipeline) {
	tool := &mcp.Tool{
		Name:        "protocol_parse",
		Description: "Extract study metadata (title, phase, objectives, endpoints, eligibility criteria) from a clinical trial protocol document.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Document file path"},
			},
			"required": []string{"path"},
		},
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*parseReq)
		doc, err := pipe.Extract(ctx, r.Path)
		if err != nil {
			return nil, err
		}
		return Parse(doc), nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r parseReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
