package analysis

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/jward/trellis/internal/document"
)

// Loader reads document contents by canonical path.
type Loader interface {
	Load(ctx context.Context, path string) ([]byte, error)
}

// FSLoader loads documents from a file system rooted at the analysis root.
type FSLoader struct {
	FS fs.FS
}

func (l FSLoader) Load(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(l.FS, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return data, nil
}

// OverlayLoader serves in-memory contents in front of a base loader, for
// unsaved editor buffers and tests.
type OverlayLoader struct {
	base Loader

	mu    sync.RWMutex
	files map[string][]byte
}

// NewOverlayLoader creates an overlay over base. base may be nil, in which
// case only overlaid paths load.
func NewOverlayLoader(base Loader) *OverlayLoader {
	return &OverlayLoader{base: base, files: map[string][]byte{}}
}

// Set overlays contents at path.
func (l *OverlayLoader) Set(path string, contents []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.files[document.CanonicalPath(path)] = contents
}

// Remove drops the overlay at path, exposing the base again.
func (l *OverlayLoader) Remove(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.files, document.CanonicalPath(path))
}

func (l *OverlayLoader) Load(ctx context.Context, path string) ([]byte, error) {
	l.mu.RLock()
	data, ok := l.files[path]
	l.mu.RUnlock()
	if ok {
		return data, nil
	}
	if l.base == nil {
		return nil, fmt.Errorf("load %s: %w", path, fs.ErrNotExist)
	}
	return l.base.Load(ctx, path)
}
