package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	wsjsonrpc2 "github.com/sourcegraph/jsonrpc2/websocket"
)

type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error) {
	return os.Stdin.Read(p)
}

func (stdrwc) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}

// ServeStdio serves a single client on stdin and stdout until it
// disconnects or ctx is canceled.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.ServeConn(ctx, stdrwc{})
}

// ServeConn serves a single client on rwc using the header-framed codec
// editors speak.
func (s *Server) ServeConn(ctx context.Context, rwc io.ReadWriteCloser) error {
	done := s.ServeStream(ctx, jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{}))
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		rwc.Close()
		return ctx.Err()
	}
}

// ServeTCP listens on addr and serves every accepted connection.
func (s *Server) ServeTCP(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("lsp: listen %s: %w", addr, err)
	}
	s.logger.Printf("listening for TCP connections on %s", lis.Addr())
	return s.ServeListener(ctx, lis)
}

// ServeListener accepts connections from lis until ctx is canceled. The
// listener is closed on return.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		lis.Close()
	}()
	defer lis.Close()
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			return fmt.Errorf("lsp: accept: %w", err)
		}
		go func() {
			done := s.ServeStream(ctx, jsonrpc2.NewBufferedStream(conn, jsonrpc2.VSCodeObjectCodec{}))
			<-done
			s.logger.Printf("connection from %s closed", conn.RemoteAddr())
		}()
	}
}

// WebsocketHandler upgrades HTTP requests to websockets and serves one
// client per socket. Each websocket message carries one JSON-RPC object.
func (s *Server) WebsocketHandler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Printf("warning: websocket upgrade: %v", err)
			return
		}
		<-s.ServeStream(r.Context(), wsjsonrpc2.NewObjectStream(ws))
	})
}

// ServeWebsocket serves WebsocketHandler on addr until ctx is canceled.
func (s *Server) ServeWebsocket(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.WebsocketHandler()}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	s.logger.Printf("listening for websocket connections on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("lsp: serve websocket: %w", err)
	}
	return ctx.Err()
}
