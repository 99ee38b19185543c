package docpipe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docprompt/kit"
)

// RegisterMCP registers docpipe tools on an MCP server.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerExtractTool(srv)
	p.registerDetectTool(srv)
	p.registerFormatsTool(srv)
	p.registerRenderTool(srv)
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

// --- extract ---

type extractReq struct {
	Filename string `json:"filename"`
	Content  string `json:"content_base64"`
}

func (p *Pipeline) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docpipe_extract",
		Description: "Extract plain text from a .docx or .pdf document given as base64.",
		InputSchema: inputSchema(map[string]any{
			"filename":       map[string]any{"type": "string", "description": "Original file name; its extension selects the format"},
			"content_base64": map[string]any{"type": "string", "description": "Document bytes, standard base64"},
		}, []string{"filename", "content_base64"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*extractReq)
		format, err := p.Detect(r.Filename)
		if err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(r.Content)
		if err != nil {
			return nil, fmt.Errorf("content_base64: %w", err)
		}
		return p.Extract(ctx, SourceDocument{Name: r.Filename, Format: format, Data: data})
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r extractReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{
			Request: &r,
			EnrichCtx: func(ctx context.Context) context.Context {
				return kit.WithDocument(ctx, r.Filename)
			},
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- detect ---

type detectReq struct {
	Filename string `json:"filename"`
}

func (p *Pipeline) registerDetectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docpipe_detect",
		Description: "Detect the format of a document from its file name.",
		InputSchema: inputSchema(map[string]any{
			"filename": map[string]any{"type": "string", "description": "File name to detect"},
		}, []string{"filename"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*detectReq)
		format, err := p.Detect(r.Filename)
		if err != nil {
			return nil, err
		}
		return map[string]any{"format": string(format)}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r detectReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- formats ---

func (p *Pipeline) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docpipe_formats",
		Description: "List all supported document formats.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"formats": SupportedFormats()}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- render ---

type renderReq struct {
	Lines []string `json:"lines"`
}

type renderResp struct {
	Pages int    `json:"pages"`
	PDF   string `json:"pdf_base64"`
}

func (p *Pipeline) registerRenderTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docpipe_render",
		Description: "Re-flow text lines onto A4 pages and return the PDF as base64. Formatting is not preserved.",
		InputSchema: inputSchema(map[string]any{
			"lines": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Text lines in order; blank lines are skipped",
			},
		}, []string{"lines"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*renderReq)
		data, err := p.RenderPDF(ctx, r.Lines)
		if err != nil {
			return nil, err
		}
		return renderResp{
			Pages: CountPages(r.Lines),
			PDF:   base64.StdEncoding.EncodeToString(data),
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r renderReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
