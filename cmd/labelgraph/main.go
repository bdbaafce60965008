package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/labelgraph"
	"github.com/jward/labelgraph/scripts"
)

// version is reported by the servers.
var version = "dev"

var (
	flagDB      string
	flagFormat  string
	flagConfig  string
	flagDialect string
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "labelgraph",
	Short:         "Cross-reference labels in assembly sources",
	Long:          "Labelgraph indexes MASM, NASM and GAS sources into a SQLite database of label definitions and usages, and serves them to editors and agents.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .labelgraph/index.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: .labelgraph.yaml in the repo root)")
	rootCmd.PersistentFlags().StringVar(&flagDialect, "dialect", "", "assembler dialect: masm|nasm|gas (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log progress to stderr")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
}

var (
	flagForce bool
	flagWatch bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index the assembly sources of a directory",
	Long:  "Scans every source file under path, records label definitions and usages, and writes them to the SQLite database. Unchanged files are skipped.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "delete database and reindex from scratch")
	indexCmd.Flags().BoolVar(&flagWatch, "watch", false, "keep running and reindex files as they change")
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	repoRoot := findRepoRoot(targetDir)
	dbPath := resolveDBPath(repoRoot)

	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dbDir, err)
	}

	// Handle --force: delete the DB file entirely.
	if flagForce {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing database for --force: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", dbPath)
	}

	engine, err := openEngine(repoRoot, dbPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if engine.DialectChanged() {
		fmt.Fprintf(os.Stderr, "Dialect changed to %s, reindexing everything\n", engine.Dialect())
	}
	if err := engine.IndexDirectory(ctx, targetDir); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}
	affected, err := engine.Affected()
	if err != nil {
		return fmt.Errorf("collecting affected files: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Indexed %s in %s (%d files affected)\n",
		targetDir, time.Since(start).Round(time.Millisecond), len(affected))
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)

	if !flagWatch {
		return nil
	}
	return watch(ctx, engine, targetDir, os.Stderr)
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the database path from the --db flag or the default.
func resolveDBPath(repoRoot string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(repoRoot, flagDB)
	}
	return filepath.Join(repoRoot, ".labelgraph", "index.db")
}

// projectConfig loads --config, or the repository's .labelgraph.yaml when
// it exists.
func projectConfig(repoRoot string) (*Config, error) {
	if flagConfig != "" {
		return loadConfig(flagConfig, true)
	}
	return loadConfig(filepath.Join(repoRoot, configFileName), false)
}

// stderrLogger returns a logger on stderr when --verbose is set.
func stderrLogger(prefix string) *log.Logger {
	if !flagVerbose {
		return nil
	}
	return log.New(os.Stderr, prefix, log.LstdFlags)
}

// openEngine opens the database at dbPath with the repository's
// configuration and the embedded query scripts.
func openEngine(repoRoot, dbPath string) (*labelgraph.Engine, error) {
	cfg, err := projectConfig(repoRoot)
	if err != nil {
		return nil, err
	}
	d, err := cfg.dialect(flagDialect)
	if err != nil {
		return nil, err
	}
	opts := append(cfg.engineOptions(d), labelgraph.WithScriptsFS(scripts.FS))
	if l := stderrLogger("labelgraph: "); l != nil {
		opts = append(opts, labelgraph.WithLogger(l))
	}
	engine, err := labelgraph.New(dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, nil
}
