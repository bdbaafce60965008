package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/labelgraph/internal/lsp"
	"github.com/jward/labelgraph/internal/mcpserver"
)

var (
	flagTCP string
	flagWS  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the language server",
	Long:  "Serves hover, go-to-definition and find-references for assembly documents over the Language Server Protocol. Uses stdio unless --tcp or --ws is given.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagTCP, "tcp", "", "listen for TCP clients on this address (e.g. :2035)")
	serveCmd.Flags().StringVar(&flagWS, "ws", "", "listen for websocket clients on this address")
	serveCmd.MarkFlagsMutuallyExclusive("tcp", "ws")

	mcpCmd.Flags().BoolVar(&flagMCPIndex, "index", false, "index the repository before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting cwd: %w", err)
	}
	cfg, err := projectConfig(findRepoRoot(cwd))
	if err != nil {
		return err
	}
	d, err := cfg.dialect(flagDialect)
	if err != nil {
		return err
	}
	dict, err := cfg.dictionary()
	if err != nil {
		return err
	}
	opts := []lsp.Option{
		lsp.WithWorkspaceOptions(cfg.workspaceOptions(d)...),
		lsp.WithDictionary(dict),
		lsp.WithVersion(version),
	}
	if l := stderrLogger("lsp: "); l != nil {
		opts = append(opts, lsp.WithLogger(l))
	}
	srv := lsp.NewServer(opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case flagTCP != "":
		err = srv.ServeTCP(ctx, flagTCP)
	case flagWS != "":
		err = srv.ServeWebsocket(ctx, flagWS)
	default:
		err = srv.ServeStdio(ctx)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var flagMCPIndex bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol server on stdio",
	Long:  "Exposes the label index of the repository containing the working directory as MCP tools. The database is created on first use.",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting cwd: %w", err)
	}
	repoRoot := findRepoRoot(cwd)
	dbPath := resolveDBPath(repoRoot)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	engine, err := openEngine(repoRoot, dbPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if flagMCPIndex {
		if err := engine.IndexDirectory(ctx, repoRoot); err != nil {
			return fmt.Errorf("indexing: %w", err)
		}
	}

	opts := []mcpserver.Option{mcpserver.WithRoot(repoRoot)}
	if l := stderrLogger("mcp: "); l != nil {
		opts = append(opts, mcpserver.WithLogger(l))
	}
	return mcpserver.New(engine, version, opts...).ServeStdio(ctx)
}
