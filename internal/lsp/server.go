// Package lsp serves label hover, go-to-definition and find-references to
// editors over JSON-RPC 2.0.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/jward/labelgraph"
	"github.com/jward/labelgraph/internal/quickinfo"
)

// ServerName is reported to clients in the initialize result.
const ServerName = "labelgraph"

// Server answers language server requests. Every connection gets its own
// Workspace, so documents are never shared between clients.
type Server struct {
	wsOpts  []labelgraph.WorkspaceOption
	dict    quickinfo.Dictionary
	logger  *log.Logger
	version string
	conns   atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithWorkspaceOptions sets the options of each connection's Workspace.
func WithWorkspaceOptions(opts ...labelgraph.WorkspaceOption) Option {
	return func(s *Server) { s.wsOpts = append(s.wsOpts, opts...) }
}

// WithDictionary sets the keyword descriptions used in hover text.
func WithDictionary(d quickinfo.Dictionary) Option {
	return func(s *Server) { s.dict = d }
}

// WithLogger sets the request log.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported in the initialize result.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer returns a Server.
func NewServer(opts ...Option) *Server {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard, "", 0)
	}
	return s
}

// ServeStream serves one client connection and returns a channel closed
// when the client disconnects.
func (s *Server) ServeStream(ctx context.Context, stream jsonrpc2.ObjectStream) <-chan struct{} {
	id := s.conns.Add(1)
	sess := &session{
		server: s,
		id:     id,
		ws:     labelgraph.NewWorkspace(append([]labelgraph.WorkspaceOption{labelgraph.WithWorkspaceLogger(s.logger)}, s.wsOpts...)...),
	}
	conn := jsonrpc2.NewConn(ctx, stream, sess)
	return conn.DisconnectNotify()
}

// session is the state of one client connection.
type session struct {
	server   *Server
	id       int64
	ws       *labelgraph.Workspace
	shutdown atomic.Bool
}

func (s *session) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	s.server.logger.Printf("connection #%d: received request: %s", s.id, req.Method)
	result, err := s.handle(ctx, conn, req)
	if req.Notif {
		if err != nil {
			s.server.logger.Printf("warning: connection #%d: %s: %v", s.id, req.Method, err)
		}
		return
	}
	if err != nil {
		var rpcErr *jsonrpc2.Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
		}
		if err := conn.ReplyWithError(ctx, req.ID, rpcErr); err != nil {
			s.server.logger.Printf("warning: connection #%d: reply: %v", s.id, err)
		}
		return
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		s.server.logger.Printf("warning: connection #%d: reply: %v", s.id, err)
	}
}

func (s *session) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case "initialize":
		return s.initialize(req)
	case "initialized":
		return nil, nil
	case "textDocument/didOpen":
		return nil, s.didOpen(req)
	case "textDocument/didChange":
		return nil, s.didChange(req)
	case "textDocument/didClose":
		return nil, s.didClose(req)
	case "textDocument/hover":
		return s.hover(ctx, req)
	case "textDocument/definition":
		return s.definition(ctx, req)
	case "textDocument/references":
		return s.references(ctx, req)
	case "shutdown":
		s.shutdown.Store(true)
		return nil, nil
	case "exit":
		return nil, conn.Close()
	}
	return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: fmt.Sprintf("method not supported: %s", req.Method)}
}

func decodeParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing parameters"}
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "invalid parameters"}
	}
	return nil
}

func (s *session) initialize(req *jsonrpc2.Request) (any, error) {
	var params InitializeParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	return InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync:   TextDocumentSyncOptions{OpenClose: true, Change: SyncIncremental},
			HoverProvider:      true,
			DefinitionProvider: true,
			ReferencesProvider: true,
		},
		ServerInfo: ServerInfo{Name: ServerName, Version: s.server.version},
	}, nil
}

func (s *session) didOpen(req *jsonrpc2.Request) error {
	var params DidOpenTextDocumentParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	s.ws.OpenDocument(uriToPath(params.TextDocument.URI), params.TextDocument.Text)
	return nil
}

func (s *session) didChange(req *jsonrpc2.Request) error {
	var params DidChangeTextDocumentParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	doc, err := s.document(params.TextDocument.URI)
	if err != nil {
		return err
	}
	for _, change := range params.ContentChanges {
		if change.Range == nil {
			doc.SetText(change.Text)
			continue
		}
		if err := doc.ApplyChange(change.Range.toDocument(), change.Text); err != nil {
			return fmt.Errorf("apply change: %w", err)
		}
	}
	return nil
}

func (s *session) didClose(req *jsonrpc2.Request) error {
	var params DidCloseTextDocumentParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	return s.ws.CloseDocument(uriToPath(params.TextDocument.URI))
}

func (s *session) document(uri DocumentURI) (*labelgraph.Document, error) {
	doc, ok := s.ws.Document(uriToPath(uri))
	if !ok {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: fmt.Sprintf("document not open: %s", uri)}
	}
	return doc, nil
}

// hover returns quick info for the word under the cursor, or null.
func (s *session) hover(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	var params TextDocumentPositionParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	doc, err := s.document(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	tag, ok := doc.TagAt(params.Position.toDocument())
	if !ok {
		return nil, nil
	}
	dialect := s.ws.Dialect()
	info := quickinfo.FromTag(tag, func(prefix, bare string) string {
		return labelgraph.QualifyLabel(prefix, bare, dialect)
	})
	text, err := quickinfo.NewRenderer(s.server.dict, doc.Describer()).Describe(ctx, info)
	if err != nil {
		return nil, err
	}
	return &Hover{Contents: MarkupContent{Kind: "plaintext", Value: text}}, nil
}

func (s *session) definition(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	var params TextDocumentPositionParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	doc, err := s.document(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	entries, err := doc.Definitions(ctx, params.Position.toDocument())
	if err != nil {
		return nil, err
	}
	return locations(doc, entries), nil
}

func (s *session) references(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	var params ReferenceParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	doc, err := s.document(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	pos := params.Position.toDocument()
	entries, err := doc.References(ctx, pos)
	if err != nil {
		return nil, err
	}
	if params.Context.IncludeDeclaration {
		defs, err := doc.Definitions(ctx, pos)
		if err != nil {
			return nil, err
		}
		entries = append(defs, entries...)
	}
	return locations(doc, entries), nil
}

// locations converts graph lines to whole-line LSP locations. An empty
// result is an empty array, not null.
func locations(doc *labelgraph.Document, entries []labelgraph.LineEntry) []Location {
	out := make([]Location, 0, len(entries))
	for _, e := range entries {
		path, ok := doc.Graph().Filename(e.FileID)
		if !ok {
			continue
		}
		out = append(out, Location{
			URI: pathToURI(path),
			Range: Range{
				Start: Position{Line: e.LineNumber},
				End:   Position{Line: e.LineNumber + 1},
			},
		})
	}
	return out
}
