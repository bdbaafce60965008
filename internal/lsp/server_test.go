package lsp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	wsjsonrpc2 "github.com/sourcegraph/jsonrpc2/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/labelgraph"
	"github.com/jward/labelgraph/internal/quickinfo"
)

type noFiles struct{}

func (noFiles) ReadLines(path string) ([]string, error) {
	return nil, fmt.Errorf("no such file %s", path)
}

const testURI DocumentURI = "file:///proj/main.asm"

var testSource = strings.Join([]string{
	"main PROC",     // 0
	"L1: dec ecx",   // 1
	"  jnz L1",      // 2
	"  call helper", // 3
	"  ret",         // 4
	"main ENDP",     // 5
	"helper PROC",   // 6
	"  ret",         // 7
	"helper ENDP",   // 8
}, "\n")

func newTestServer() *Server {
	return NewServer(
		WithWorkspaceOptions(labelgraph.WithFileService(noFiles{}), labelgraph.WithWorkspaceDialect(labelgraph.MASM)),
		WithDictionary(quickinfo.Dictionary{"DEC": "Decrement by 1", "ECX": "Count register"}),
		WithVersion("test"),
	)
}

func nopHandler() jsonrpc2.Handler {
	return jsonrpc2.HandlerWithError(func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (any, error) {
		return nil, nil
	})
}

// connect serves one in-memory client and returns its connection.
func connect(t *testing.T, s *Server) *jsonrpc2.Conn {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	serverSide, clientSide := net.Pipe()
	go s.ServeConn(ctx, serverSide)
	conn := jsonrpc2.NewConn(ctx, jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}), nopHandler())
	t.Cleanup(func() {
		conn.Close()
		cancel()
	})
	return conn
}

func initialize(t *testing.T, conn *jsonrpc2.Conn) InitializeResult {
	t.Helper()
	var res InitializeResult
	require.NoError(t, conn.Call(context.Background(), "initialize", InitializeParams{RootURI: "file:///proj"}, &res))
	return res
}

func openTestDoc(t *testing.T, conn *jsonrpc2.Conn) {
	t.Helper()
	require.NoError(t, conn.Notify(context.Background(), "textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: testURI, LanguageID: "asm", Version: 1, Text: testSource},
	}))
}

func hoverAt(t *testing.T, conn *jsonrpc2.Conn, line, char int) *Hover {
	t.Helper()
	var h *Hover
	require.NoError(t, conn.Call(context.Background(), "textDocument/hover", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: testURI},
		Position:     Position{Line: line, Character: char},
	}, &h))
	return h
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestServer_Initialize(t *testing.T) {
	t.Parallel()
	conn := connect(t, newTestServer())

	res := initialize(t, conn)
	assert.True(t, res.Capabilities.HoverProvider)
	assert.True(t, res.Capabilities.DefinitionProvider)
	assert.True(t, res.Capabilities.ReferencesProvider)
	assert.Equal(t, SyncIncremental, res.Capabilities.TextDocumentSync.Change)
	assert.Equal(t, ServerInfo{Name: ServerName, Version: "test"}, res.ServerInfo)

	var out any
	require.NoError(t, conn.Call(context.Background(), "shutdown", nil, &out))
	assert.Nil(t, out)
}

func TestServer_UnknownMethod(t *testing.T) {
	t.Parallel()
	conn := connect(t, newTestServer())

	err := conn.Call(context.Background(), "textDocument/formatting", map[string]any{}, nil)
	var rpcErr *jsonrpc2.Error
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	assert.Equal(t, int64(jsonrpc2.CodeMethodNotFound), rpcErr.Code)
}

func TestServer_DocumentNotOpen(t *testing.T) {
	t.Parallel()
	conn := connect(t, newTestServer())
	initialize(t, conn)

	var h *Hover
	err := conn.Call(context.Background(), "textDocument/hover", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///proj/other.asm"},
	}, &h)
	var rpcErr *jsonrpc2.Error
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	assert.Equal(t, int64(jsonrpc2.CodeInvalidParams), rpcErr.Code)
}

// =============================================================================
// Hover
// =============================================================================

func TestServer_HoverLabel(t *testing.T) {
	t.Parallel()
	conn := connect(t, newTestServer())
	initialize(t, conn)
	openTestDoc(t, conn)

	h := hoverAt(t, conn, 2, 7)
	require.NotNil(t, h)
	assert.Equal(t, "plaintext", h.Contents.Kind)
	assert.Equal(t, "Label main.L1: Defined at LINE 2 (main.asm) :L1: dec ecx", h.Contents.Value)

	h = hoverAt(t, conn, 6, 2)
	require.NotNil(t, h)
	assert.Equal(t, "Label helper: Used at LINE 4 (main.asm) : call helper", h.Contents.Value)
}

func TestServer_HoverKeyword(t *testing.T) {
	t.Parallel()
	conn := connect(t, newTestServer())
	initialize(t, conn)
	openTestDoc(t, conn)

	h := hoverAt(t, conn, 1, 9)
	require.NotNil(t, h)
	assert.Equal(t, "Register ecx: Count register", h.Contents.Value)

	assert.Nil(t, hoverAt(t, conn, 4, 0))
}

// =============================================================================
// Navigation
// =============================================================================

func TestServer_Definition(t *testing.T) {
	t.Parallel()
	conn := connect(t, newTestServer())
	initialize(t, conn)
	openTestDoc(t, conn)

	var locs []Location
	require.NoError(t, conn.Call(context.Background(), "textDocument/definition", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: testURI},
		Position:     Position{Line: 3, Character: 9},
	}, &locs))
	require.Len(t, locs, 1)
	assert.Equal(t, testURI, locs[0].URI)
	assert.Equal(t, Range{Start: Position{Line: 6}, End: Position{Line: 7}}, locs[0].Range)
}

func TestServer_References(t *testing.T) {
	t.Parallel()
	conn := connect(t, newTestServer())
	initialize(t, conn)
	openTestDoc(t, conn)

	params := ReferenceParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: testURI},
			Position:     Position{Line: 6, Character: 0},
		},
	}
	var locs []Location
	require.NoError(t, conn.Call(context.Background(), "textDocument/references", params, &locs))
	require.Len(t, locs, 1)
	assert.Equal(t, 3, locs[0].Range.Start.Line)

	params.Context.IncludeDeclaration = true
	require.NoError(t, conn.Call(context.Background(), "textDocument/references", params, &locs))
	require.Len(t, locs, 2)
	assert.Equal(t, 6, locs[0].Range.Start.Line)
	assert.Equal(t, 3, locs[1].Range.Start.Line)

	params.Position = Position{Line: 4, Character: 3}
	require.NoError(t, conn.Call(context.Background(), "textDocument/references", params, &locs))
	assert.NotNil(t, locs)
	assert.Empty(t, locs)
}

// =============================================================================
// Document sync
// =============================================================================

func TestServer_IncrementalChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	conn := connect(t, newTestServer())
	initialize(t, conn)
	openTestDoc(t, conn)

	// Rename the L1 definition to L2.
	require.NoError(t, conn.Notify(ctx, "textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument: VersionedTextDocumentIdentifier{URI: testURI, Version: 2},
		ContentChanges: []TextDocumentContentChangeEvent{{
			Range: &Range{Start: Position{Line: 1, Character: 0}, End: Position{Line: 1, Character: 2}},
			Text:  "L2",
		}},
	}))
	h := hoverAt(t, conn, 1, 0)
	require.NotNil(t, h)
	assert.Equal(t, "Label main.L2: Not used", h.Contents.Value)

	// Full replacement.
	require.NoError(t, conn.Notify(ctx, "textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: testURI, Version: 3},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: "start:\n  jmp start"}},
	}))
	h = hoverAt(t, conn, 1, 7)
	require.NotNil(t, h)
	assert.Equal(t, "Label start: Defined at LINE 1 (main.asm) :start:", h.Contents.Value)
}

func TestServer_DidClose(t *testing.T) {
	t.Parallel()
	conn := connect(t, newTestServer())
	initialize(t, conn)
	openTestDoc(t, conn)
	require.NoError(t, conn.Notify(context.Background(), "textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: testURI},
	}))

	var h *Hover
	err := conn.Call(context.Background(), "textDocument/hover", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: testURI},
	}, &h)
	assert.Error(t, err)
}

// =============================================================================
// Transports
// =============================================================================

func TestServer_ServeListener(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	errc := make(chan error, 1)
	go func() { errc <- newTestServer().ServeListener(ctx, lis) }()

	nc, err := net.Dial("tcp", lis.Addr().String())
	require.NoError(t, err)
	conn := jsonrpc2.NewConn(ctx, jsonrpc2.NewBufferedStream(nc, jsonrpc2.VSCodeObjectCodec{}), nopHandler())
	defer conn.Close()

	assert.True(t, initialize(t, conn).Capabilities.HoverProvider)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestServer_Websocket(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(newTestServer().WebsocketHandler())
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	conn := jsonrpc2.NewConn(context.Background(), wsjsonrpc2.NewObjectStream(ws), nopHandler())
	defer conn.Close()

	initialize(t, conn)
	openTestDoc(t, conn)
	h := hoverAt(t, conn, 2, 7)
	require.NotNil(t, h)
	assert.Contains(t, h.Contents.Value, "Label main.L1")
}

// =============================================================================
// URIs
// =============================================================================

func TestURIConversion(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/proj/main.asm", uriToPath("file:///proj/main.asm"))
	assert.Equal(t, "/proj/my file.asm", uriToPath("file:///proj/my%20file.asm"))
	assert.Equal(t, "untitled:1", uriToPath("untitled:1"))
	assert.Equal(t, DocumentURI("file:///proj/my%20file.asm"), pathToURI("/proj/my file.asm"))
	assert.Equal(t, DocumentURI("rel.asm"), pathToURI("rel.asm"))
}
