// Package mcpserver exposes the persistent label index as Model Context
// Protocol tools, so coding agents can index a source tree and ask where
// labels are defined and used.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jward/labelgraph"
)

// Server wraps an Engine in an MCP server. Indexing takes the write lock;
// queries share the read lock.
type Server struct {
	engine    *labelgraph.Engine
	mcpServer *mcp.Server
	root      string
	logger    *log.Logger

	mu sync.RWMutex
}

// Option configures a Server.
type Option func(*Server)

// WithRoot sets the directory the index tool scans when called without a
// path. It defaults to the working directory.
func WithRoot(dir string) Option {
	return func(s *Server) { s.root = dir }
}

// WithLogger sets the logger used for warnings.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New returns a Server over engine. version is reported to clients.
func New(engine *labelgraph.Engine, version string, opts ...Option) *Server {
	s := &Server{engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard, "", 0)
	}
	if s.root == "" {
		s.root, _ = os.Getwd()
	}
	s.mcpServer = mcp.NewServer(&mcp.Implementation{Name: "labelgraph", Version: version}, nil)
	s.registerTools()
	s.registerResources()
	return s
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcp.Server { return s.mcpServer }

// Run serves clients on t until ctx is canceled or the client disconnects.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	return s.mcpServer.Run(ctx, t)
}

// ServeStdio serves one client on stdin and stdout.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errorResult(text string) *mcp.CallToolResult {
	res := textResult(text)
	res.IsError = true
	return res
}

func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("encode result: " + err.Error())
	}
	return textResult(string(b))
}
