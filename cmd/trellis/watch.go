package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/jward/trellis"
)

func watchCmd(g *globals) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Analyze a project and keep the export current as files change",
		Long:  "Runs an initial analysis, then watches the project tree. Each burst of file events is checked against the analyzed content hashes; when something really changed, only the affected documents are reanalyzed and the export is updated.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runWatch(cmd, g, args, debounce); err != nil {
				return outputError(g.out(cmd), cmd.ErrOrStderr(), g.format, "watch", err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "quiet period before a burst of events is processed")
	return cmd
}

func runWatch(cmd *cobra.Command, g *globals, args []string, debounce time.Duration) error {
	root, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	e, _, err := g.openEngine(cmd, root)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	report := func(a CLIAnalysis) error {
		return outputResult(g.out(cmd), g.format, CLIResult{Command: "watch", Results: a})
	}

	start := time.Now()
	if _, err := e.AnalyzeDirectory(ctx); err != nil && errors.Is(err, context.Canceled) {
		return nil
	} else if err != nil {
		g.logger(cmd).Warn("some documents failed", "err", err)
	}
	diff, err := e.Export(ctx)
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}
	initial := summarize(e.Query(), diff)
	initial.Root = root
	initial.DurationMS = time.Since(start).Milliseconds()
	if err := report(initial); err != nil {
		return err
	}

	w := &watcher{
		engine:   e,
		root:     root,
		debounce: debounce,
		logger:   g.logger(cmd),
		report:   report,
	}
	return w.run(ctx)
}

// watcher turns file-system events into incremental reanalysis.
type watcher struct {
	engine   *trellis.Engine
	root     string
	debounce time.Duration
	logger   *slog.Logger
	report   func(CLIAnalysis) error
}

// run watches the tree under root until ctx is done.
func (w *watcher) run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()
	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watching", "root", w.root)

	pending := map[string]bool{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, ev.Name); err != nil {
						w.logger.Warn("watching new directory", "dir", ev.Name, "err", err)
					}
					continue
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			rel, ok := w.relative(ev.Name)
			if !ok {
				continue
			}
			pending[rel] = true
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			if err := w.flush(ctx, paths); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("update failed", "err", err)
			}
		}
	}
}

// flush reanalyzes after the given root-relative paths were touched. It does
// nothing when none of them changed content.
func (w *watcher) flush(ctx context.Context, paths []string) error {
	start := time.Now()
	changed, err := w.engine.FilesChanged(ctx, paths)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		w.logger.Debug("no content changes", "paths", paths)
		return nil
	}
	w.logger.Info("files changed", "paths", changed)

	_, analyzeErr := w.engine.Reanalyze(ctx)
	if analyzeErr != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	diff, err := w.engine.Export(ctx)
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}
	a := summarize(w.engine.Query(), diff)
	a.DurationMS = time.Since(start).Milliseconds()
	if analyzeErr != nil {
		a.Errors = []string{analyzeErr.Error()}
	}
	return w.report(a)
}

// relative maps an event path to a root-relative slash path. Paths inside
// skipped directories are dropped.
func (w *watcher) relative(name string) (string, bool) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil || rel == "." {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if trellis.SkipDir(dir) {
			return "", false
		}
	}
	return rel, true
}

// addTree watches dir and every directory below it that discovery would
// descend into. fsnotify watches are not recursive.
func (w *watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && trellis.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}
