package mcp

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

type fakeSession struct {
	mu         sync.Mutex
	tools      []mcp.Tool
	resources  []mcp.Resource
	toolsErr   error
	resErr     error
	callErr    error
	result     *mcp.CallToolResult
	calls      []mcp.CallToolRequest
	closed     int
	closeErr   error
	onCallTool func(req mcp.CallToolRequest)
}

func (f *fakeSession) ListTools(context.Context, mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.toolsErr != nil {
		return nil, f.toolsErr
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeSession) ListResources(context.Context, mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resErr != nil {
		return nil, f.resErr
	}
	return &mcp.ListResourcesResult{Resources: f.resources}, nil
}

func (f *fakeSession) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if f.onCallTool != nil {
		f.onCallTool(req)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.callErr != nil {
		return nil, f.callErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return mcp.NewToolResultText("ok"), nil
}

func (f *fakeSession) ReadResource(_ context.Context, req mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{Contents: []mcp.ResourceContents{
		mcp.TextResourceContents{URI: req.Params.URI, Text: "contents of " + req.Params.URI},
	}}, nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

func (f *fakeSession) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCloser struct {
	closed int
	err    error
}

func (c *fakeCloser) Close() error {
	c.closed++
	return c.err
}

// fakeDialer hands out the sessions registered per server name.
type fakeDialer struct {
	mu         sync.Mutex
	sessions   map[string]*fakeSession
	transports map[string]*fakeCloser
	dials      map[string]int
	err        error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		sessions:   map[string]*fakeSession{},
		transports: map[string]*fakeCloser{},
		dials:      map[string]int{},
	}
}

func (d *fakeDialer) dial(_ context.Context, cfg ServerConfig) (Session, io.Closer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[cfg.Name]++
	if d.err != nil {
		return nil, nil, d.err
	}
	s, ok := d.sessions[cfg.Name]
	if !ok {
		return nil, nil, errors.New("connection refused")
	}
	t := &fakeCloser{}
	d.transports[cfg.Name] = t
	return s, t, nil
}

func stdioServer(name string) ServerConfig {
	return ServerConfig{Name: name, Command: "srv", Enabled: true}
}

func echoTool() mcp.Tool {
	return mcp.NewTool("echo",
		mcp.WithDescription("Echoes text"),
		mcp.WithString("text", mcp.Required()),
	)
}
