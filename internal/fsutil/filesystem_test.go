package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystemCreate(t *testing.T) {
	m := NewMemoryFileSystem()

	w, err := m.Create("out/BRapd.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("1000\t1\t250\n"))
	require.NoError(t, err)

	// Truncated but not yet flushed.
	data, err := m.ReadFile("out/BRapd.txt")
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, w.Close())
	data, err = m.ReadFile("out/./BRapd.txt")
	require.NoError(t, err)
	assert.Equal(t, "1000\t1\t250\n", string(data))

	info, err := m.Stat("out/BRapd.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(11), info.Size())
	assert.False(t, info.IsDir())
}

func TestMemoryFileSystemReadFileCopies(t *testing.T) {
	m := NewMemoryFileSystem()
	require.NoError(t, m.WriteFile("a.txt", []byte("abc"), 0o644))

	data, err := m.ReadFile("a.txt")
	require.NoError(t, err)
	data[0] = 'x'

	again, err := m.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestMemoryFileSystemMissing(t *testing.T) {
	m := NewMemoryFileSystem()

	_, err := m.ReadFile("nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = m.Stat("nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.False(t, m.Exists("nope"))
}

func TestMemoryFileSystemDirs(t *testing.T) {
	m := NewMemoryFileSystem()
	require.NoError(t, m.MkdirAll("runs/a/b", 0o755))

	for _, dir := range []string{"runs", "runs/a", "runs/a/b"} {
		assert.True(t, m.Exists(dir), dir)
		info, err := m.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir(), dir)
	}
}

func TestMemoryFileSystemFiles(t *testing.T) {
	m := NewMemoryFileSystem()
	require.NoError(t, m.WriteFile("runs/b.txt", nil, 0o644))
	require.NoError(t, m.WriteFile("runs/a.txt", nil, 0o644))
	require.NoError(t, m.WriteFile("other/c.txt", nil, 0o644))

	assert.Equal(t, []string{"runs/a.txt", "runs/b.txt"}, m.Files("runs"))
	assert.Len(t, m.Files(""), 3)
}

func TestOSFileSystem(t *testing.T) {
	var fsys FileSystem = OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "nested", "out")
	require.NoError(t, fsys.MkdirAll(dir, 0o755))
	assert.True(t, fsys.Exists(dir))

	path := filepath.Join(dir, "trace.txt")
	w, err := fsys.Create(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("0\t-84.6\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0\t-84.6\n", string(data))

	require.NoError(t, fsys.WriteFile(path, []byte("x"), 0o644))
	info, err := fsys.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Size())

	_, err = os.Stat(filepath.Join(dir, "missing"))
	assert.True(t, os.IsNotExist(err))
}
