package service

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/veskar/trialkit/crf"
	"github.com/veskar/trialkit/kit"
	"github.com/veskar/trialkit/protocol"
	"github.com/veskar/trialkit/validate"
)

// RegisterMCP exposes the daemon's operations as MCP tools: document
// extraction, CRF/spec parsing, protocol parsing, dataset validation, web
// fetching, literature search, and run listing.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.Pipe.RegisterMCP(srv)
	crf.RegisterMCP(srv, s.Pipe)
	protocol.RegisterMCP(srv, s.Pipe)
	validate.RegisterMCP(srv)
	if s.Fetcher != nil {
		s.Fetcher.RegisterMCP(srv)
	}
	if s.PubMed != nil {
		s.PubMed.RegisterMCP(srv)
	}
	if s.Tavily != nil {
		s.Tavily.RegisterMCP(srv)
	}
	s.registerRunsTool(srv)
}

type listRunsReq struct {
	Kind  string `json:"kind"`
	Limit int    `json:"limit"`
}

func (s *Service) registerRunsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "runs_list",
		Description: "List recorded parse and validation runs, newest first.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"kind":  map[string]any{"type": "string", "description": "Filter: crf, crfspec, protocol, validate"},
				"limit": map[string]any{"type": "integer", "description": "Max runs to return (default 100)"},
			},
		},
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listRunsReq)
		runs, err := s.Store.ListRuns(ctx, r.Kind, r.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"runs": runs}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r listRunsReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
