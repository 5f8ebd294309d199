package trellis

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jward/trellis/internal/document"
)

// Analyze resolves the documents at paths against the current snapshot,
// working on up to WithConcurrency documents at a time. Documents the
// snapshot already analyzed come straight from its cache.
//
// Errors on individual documents are collected and the remaining documents
// still analyzed; the returned slice holds the successful results in the
// order of paths. Only cancellation of ctx stops the batch early.
func (e *Engine) Analyze(ctx context.Context, paths []string) ([]*AnalyzedDocument, error) {
	actx := e.Snapshot()

	e.mu.Lock()
	for _, p := range paths {
		e.paths[document.CanonicalPath(p)] = true
	}
	e.mu.Unlock()

	results := make([]*AnalyzedDocument, len(paths))
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, p := range paths {
		g.Go(func() error {
			a, err := actx.Analyze(gctx, p)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.logger.Warn("analysis failed", "path", p, "err", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("analyze %s: %w", p, err))
				mu.Unlock()
				return nil
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	docs := make([]*AnalyzedDocument, 0, len(results))
	for _, a := range results {
		if a != nil {
			docs = append(docs, a)
		}
	}
	e.logger.Debug("analyzed", "documents", len(docs), "errors", len(errs))
	if len(errs) > 0 {
		return docs, fmt.Errorf("analysis had %d error(s): %w", len(errs), errs[0])
	}
	return docs, nil
}

// AnalyzeDirectory discovers every document under the root and analyzes
// them all.
func (e *Engine) AnalyzeDirectory(ctx context.Context) ([]*AnalyzedDocument, error) {
	paths, err := e.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return e.Analyze(ctx, paths)
}

// Reanalyze analyzes every known document. After FilesChanged only the
// invalidated documents do any work.
func (e *Engine) Reanalyze(ctx context.Context) ([]*AnalyzedDocument, error) {
	return e.Analyze(ctx, e.Paths())
}
