package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRegular(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte("hello"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))
	require.NoError(t, os.Symlink("a.bin", filepath.Join(dir, "link.bin")))

	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	defer root.Close()

	f, size, err := OpenRegular(root, "a.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	require.NoError(t, f.Close())

	_, _, err = OpenRegular(root, "link.bin")
	assert.ErrorIs(t, err, ErrSymlink)

	_, _, err = OpenRegular(root, "sub")
	assert.Error(t, err)

	_, _, err = OpenRegular(root, "missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
