package bridge

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/webtex/encode"
	"github.com/hazyhaar/webtex/frame"
	"github.com/hazyhaar/webtex/kit"
)

// RegisterMCP registers the bridge tools on an MCP server.
func (b *Bridge) RegisterMCP(srv *mcp.Server) {
	b.registerLoadTool(srv)
	b.registerStatusTool(srv)
	b.registerFrameTool(srv)
}

func decodeArgs(req *mcp.CallToolRequest, v any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	return json.Unmarshal(req.Params.Arguments, v)
}

// --- load ---

type loadReq struct {
	URL    string `json:"url"`
	Action string `json:"action"`
	DY     int    `json:"dy"` // action=scroll, pixels, negative for up
}

type loadResp struct {
	Cycle  uint64 `json:"cycle"`
	Action string `json:"action"`
}

func (b *Bridge) registerLoadTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "webtex_load",
		Description: "Load a URL (or search terms) into the off-screen view, or run a navigation action. Returns the cycle id; the frame arrives asynchronously.",
		InputSchema: kit.InputSchema(map[string]any{
			"url":    map[string]any{"type": "string", "description": "URL or search terms; required for action=load"},
			"action": map[string]any{"type": "string", "enum": []string{"load", "reload", "back", "forward", "stop", "scroll"}, "description": "Default load"},
			"dy":     map[string]any{"type": "integer", "description": "Pixels to scroll for action=scroll, negative for up"},
		}, nil),
	}

	endpoint := kit.Chain(kit.Logging(b.logger, tool.Name))(func(ctx context.Context, req any) (any, error) {
		return b.dispatch(ctx, req.(*loadReq))
	})

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r loadReq
		if err := decodeArgs(req, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// dispatch runs a load or navigation command for the MCP and HTTP front
// ends.
func (b *Bridge) dispatch(ctx context.Context, r *loadReq) (*loadResp, error) {
	action := r.Action
	if action == "" {
		action = "load"
	}
	var (
		cycle uint64
		err   error
	)
	switch action {
	case "load":
		cycle, err = b.Load(ctx, r.URL)
	case "reload":
		cycle, err = b.Reload(ctx)
	case "back":
		cycle, err = b.Back(ctx)
	case "forward":
		cycle, err = b.Forward(ctx)
	case "stop":
		err = b.Stop(ctx)
	case "scroll":
		cycle, err = b.Scroll(ctx, r.DY)
	default:
		err = &frame.ConfigError{Field: "action", Reason: "unknown action " + action}
	}
	if err != nil {
		return nil, err
	}
	return &loadResp{Cycle: cycle, Action: action}, nil
}

// --- status ---

func (b *Bridge) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "webtex_status",
		Description: "Report the capture pipeline state: current cycle, lifecycle state and delivery counters.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return b.Status(), nil
	}
	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- frame ---

var errNoFrame = errors.New("no frame captured yet")

type frameReq struct {
	MetaOnly bool `json:"meta_only"`
}

// registerFrameTool returns the latest frame as image content followed by
// its metadata. It does not go through kit.RegisterMCPTool because the
// response is not JSON text.
func (b *Bridge) registerFrameTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "webtex_frame",
		Description: "Return the most recently delivered frame as an image, with its metadata.",
		InputSchema: kit.InputSchema(map[string]any{
			"meta_only": map[string]any{"type": "boolean", "description": "Omit the image, return metadata only"},
		}, nil),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r frameReq
		if err := decodeArgs(req, &r); err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		f, ok := b.LatestFrame()
		if !ok {
			var res mcp.CallToolResult
			res.SetError(errNoFrame)
			return &res, nil
		}
		meta, err := frame.MarshalMeta(f)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}

		var content []mcp.Content
		if !r.MetaOnly {
			content = append(content, &mcp.ImageContent{Data: f.Data, MIMEType: encode.ContentType(f.Format)})
		}
		content = append(content, &mcp.TextContent{Text: string(meta)})
		return &mcp.CallToolResult{Content: content}, nil
	})
}
