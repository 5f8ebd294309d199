package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	assert.Equal(t, root, findRepoRoot(root))
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "sub", "deep")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	assert.Equal(t, root, findRepoRoot(deep))
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	t.Parallel()
	// TempDir has no .git directory anywhere in its ancestry
	// (unless /tmp itself is a repo, which would be unusual).
	dir := t.TempDir()
	assert.Equal(t, dir, findRepoRoot(dir))
}

func TestResolveDBPath(t *testing.T) {
	t.Parallel()
	root := filepath.Join("/", "work", "site")
	assert.Equal(t, filepath.Join(root, ".trellis", "trellis.db"), resolveDBPath(root, ""))
	assert.Equal(t, filepath.Join(root, "out.db"), resolveDBPath(root, "out.db"))
	abs := filepath.Join("/", "tmp", "x.db")
	assert.Equal(t, abs, resolveDBPath(root, abs))
}

func TestResolveTargetDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	got, err := resolveTargetDir([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = resolveTargetDir([]string{filepath.Join(dir, "missing")})
	assert.ErrorContains(t, err, "directory not found")

	file := filepath.Join(dir, "a.js")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = resolveTargetDir([]string{file})
	assert.ErrorContains(t, err, "not a directory")
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.ErrorContains(t, validateFormat("xml"), `invalid format "xml"`)
}
