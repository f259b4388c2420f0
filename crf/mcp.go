package crf

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

// RegisterMCP registers the CRF parsing tools on an MCP server. The pipeline
// decodes the document before parsing, so any docpipe-supported format works.
func RegisterMCP(srv *mcp.Server, pipe *docpipe.Pipeline) {
	registerParseTool(srv, pipe,
		"crf_parse",
		"Extract bracketed [VARIABLE] records (name, expression, coding) from an annotated CRF document.",
		Parse)
	registerParseTool(srv, pipe,
		"crfspec_parse",
		"Extract variable definitions from a CRF specification document (labeled fields or Variable/Label/Codes tables).",
		ParseSpec)
}

func registerParseTool(srv *mcp.Server, pipe *docpipe.Pipeline, name, desc string, parse func(*docpipe.Document) *Result) {
	tool := &mcp.Tool{
		Name:        name,
		Description: desc,
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
		return parse(doc), nil
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
