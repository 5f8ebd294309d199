package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/trellis"
)

func analyzeCmd(g *globals) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Analyze a project and export it to SQLite",
		Long:  "Discovers the script, markup and style documents under path, resolves their features across documents, and writes the result to the database, reporting which features were added, changed or removed since the last run.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runAnalyze(cmd, g, args, force); err != nil {
				return outputError(g.out(cmd), cmd.ErrOrStderr(), g.format, "analyze", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "delete the database and export from scratch")
	return cmd
}

func runAnalyze(cmd *cobra.Command, g *globals, args []string, force bool) error {
	start := time.Now()
	root, err := resolveTargetDir(args)
	if err != nil {
		return err
	}

	if force {
		dbPath := resolveDBPath(root, g.db)
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing database for --force: %w", err)
		}
	}

	e, dbPath, err := g.openEngine(cmd, root)
	if err != nil {
		return err
	}
	defer e.Close()

	logger := g.logger(cmd)
	if !force && e.ScriptsChanged() {
		logger.Debug("scanner scripts differ from the last export", "hash", e.ScriptsHash())
	}

	ctx := cmd.Context()
	docs, analyzeErr := e.AnalyzeDirectory(ctx)
	if analyzeErr != nil && (docs == nil || errors.Is(analyzeErr, context.Canceled)) {
		return fmt.Errorf("analyzing: %w", analyzeErr)
	}
	if analyzeErr != nil {
		logger.Warn("some documents failed", "err", analyzeErr)
	}

	diff, err := e.Export(ctx)
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}

	summary := summarize(e.Query(), diff)
	summary.Root = root
	summary.Database = dbPath
	summary.DurationMS = time.Since(start).Milliseconds()
	if analyzeErr != nil {
		summary.Errors = []string{analyzeErr.Error()}
	}
	return outputResult(g.out(cmd), g.format, CLIResult{Command: "analyze", Results: summary})
}

// summarize counts what a snapshot holds and attaches the export diff.
func summarize(q *trellis.QueryBuilder, diff trellis.Diff) CLIAnalysis {
	a := CLIAnalysis{
		Documents: len(q.Documents()),
		Warnings:  len(q.Warnings(trellis.SeverityInfo)),
		Added:     nonNil(diff.Added),
		Changed:   nonNil(diff.Changed),
		Removed:   nonNil(diff.Removed),
	}
	for _, p := range q.Documents() {
		a.Features += len(q.Document(p).Features)
	}
	return a
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
