package validate

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/veskar/trialkit/kit"
)

type validateReq struct {
	DataPath  string `json:"data_path"`
	RulesPath string `json:"rules_path"`
}

// RegisterMCP registers the dataset validation tool on an MCP server.
func RegisterMCP(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "validate_dataset",
		Description: "Check a tabular dataset (csv, xlsx) against a YAML rule file and report findings.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"data_path":  map[string]any{"type": "string", "description": "Dataset file path (csv or xlsx)"},
				"rules_path": map[string]any{"type": "string", "description": "YAML rule file path"},
			},
			"required": []string{"data_path", "rules_path"},
		},
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*validateReq)
		ds, err := Load(r.DataPath)
		if err != nil {
			return nil, err
		}
		rs, err := LoadRules(r.RulesPath)
		if err != nil {
			return nil, err
		}
		findings, err := rs.Apply(ds)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"dataset":  ds.Name,
			"rows":     len(ds.Rows),
			"findings": findings,
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r validateReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
