package capture

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/sift/kit"
)

// RegisterMCP registers the capture tools on an MCP server.
func (m *Manager) RegisterMCP(srv *mcp.Server) {
	m.registerStartTool(srv)
	m.registerRecordTool(srv)
	m.registerQuotaTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- capture_start ---

type startReq struct {
	Prompt   string `json:"prompt"`
	Headless *bool  `json:"headless"`
}

func (m *Manager) registerStartTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "capture_start",
		Description: "Start a capture session for a prompt. Fails while another session is active or when the account pool is out of quota.",
		InputSchema: inputSchema(map[string]any{
			"prompt":   map[string]any{"type": "string", "description": "Prompt to submit"},
			"headless": map[string]any{"type": "boolean", "description": "Run the browser headless (default true)"},
		}, []string{"prompt"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*startReq)
		headless := true
		if r.Headless != nil {
			headless = *r.Headless
		}
		s, err := m.Start(ctx, r.Prompt, headless)
		if err != nil {
			return nil, err
		}
		return map[string]any{"capture_id": s.ID, "status": s.Status()}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r startReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- capture_record ---

type recordReq struct {
	CaptureID string `json:"capture_id"`
}

func (m *Manager) registerRecordTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "capture_record",
		Description: "Fetch the metadata and event log of a capture (live snapshot or persisted record).",
		InputSchema: inputSchema(map[string]any{
			"capture_id": map[string]any{"type": "string", "description": "Capture id"},
		}, []string{"capture_id"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*recordReq)
		return m.Record(r.CaptureID)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r recordReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- quota_status ---

type quotaReq struct{}

func (m *Manager) registerQuotaTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "quota_status",
		Description: "Report per-account usage inside the current quota window.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return m.Quota(ctx)
	}

	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &quotaReq{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
