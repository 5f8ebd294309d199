package analysis

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSLoader(t *testing.T) {
	t.Parallel()
	l := FSLoader{FS: fstest.MapFS{"src/a.js": {Data: []byte("x")}}}

	data, err := l.Load(context.Background(), "src/a.js")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	_, err = l.Load(context.Background(), "src/missing.js")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestOverlayLoader(t *testing.T) {
	t.Parallel()
	base := FSLoader{FS: fstest.MapFS{"a.js": {Data: []byte("disk")}}}
	l := NewOverlayLoader(base)
	ctx := context.Background()

	l.Set("./a.js", []byte("buffer"))
	data, err := l.Load(ctx, "a.js")
	require.NoError(t, err)
	assert.Equal(t, "buffer", string(data))

	l.Remove("a.js")
	data, err = l.Load(ctx, "a.js")
	require.NoError(t, err)
	assert.Equal(t, "disk", string(data))

	bare := NewOverlayLoader(nil)
	_, err = bare.Load(ctx, "a.js")
	require.ErrorIs(t, err, fs.ErrNotExist)
}
