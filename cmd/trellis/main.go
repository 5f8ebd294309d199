package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/trellis"
)

// errHandled marks an error outputError already reported, so main does not
// print it twice.
var errHandled = errors.New("error already reported")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errHandled) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

// globals holds the persistent flags shared by every command.
type globals struct {
	db         string
	format     string
	config     string
	scriptsDir string
	verbose    bool
}

func rootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "trellis",
		Short:         "Feature analysis for web projects",
		Long:          "Trellis scans script, markup and style documents with tree-sitter and Risor scripts, resolves classes, custom elements, mixins and imports across documents, and exports the result to SQLite.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateFormat(g.format)
		},
	}

	cmd.PersistentFlags().StringVar(&g.db, "db", "", "database path (default: .trellis/trellis.db under the project root)")
	cmd.PersistentFlags().StringVar(&g.format, "format", "json", "output format: json|text")
	cmd.PersistentFlags().StringVar(&g.config, "config", "", "project config file (default: .trellis.yaml under the project root)")
	cmd.PersistentFlags().StringVar(&g.scriptsDir, "scripts-dir", "", "load scanner scripts from disk instead of the embedded set")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(analyzeCmd(g))
	cmd.AddCommand(queryCmd(g))
	cmd.AddCommand(watchCmd(g))
	return cmd
}

// logger builds the stderr text logger for cmd.
func (g *globals) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// out is where results go.
func (g *globals) out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}

// openEngine creates an Engine for the project at root, configured from the
// project file and then the command-line flags.
func (g *globals) openEngine(cmd *cobra.Command, root string) (*trellis.Engine, string, error) {
	cfg, err := loadProjectConfig(g.configPath(root), g.config != "")
	if err != nil {
		return nil, "", err
	}

	dbPath := resolveDBPath(root, g.db)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, "", fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}

	opts := append(cfg.options(root), trellis.WithLogger(g.logger(cmd)), trellis.WithDB(dbPath))
	if g.scriptsDir != "" {
		opts = append(opts, trellis.WithScriptsDir(g.scriptsDir))
	}
	e, err := trellis.New(root, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("creating engine: %w", err)
	}
	return e, dbPath, nil
}

func (g *globals) configPath(root string) string {
	if g.config != "" {
		return g.config
	}
	return filepath.Join(root, configFileName)
}

// resolveTargetDir returns the absolute path of the project directory.
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
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns flagDB made absolute against root, or the default
// location under root.
func resolveDBPath(root, flagDB string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(root, flagDB)
	}
	return filepath.Join(root, ".trellis", "trellis.db")
}
