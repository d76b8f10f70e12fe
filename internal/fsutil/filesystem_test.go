package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	require.NoError(t, mfs.WriteFile("/run/a.csv", []byte("x,y\n"), 0o644))
	data, err := mfs.ReadFile("/run/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "x,y\n", string(data))

	_, err = mfs.ReadFile("/run/missing.csv")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMemoryFileSystem_Create(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/run/out.txt")
	require.NoError(t, err)
	_, _ = w.Write([]byte("hello "))
	_, _ = w.Write([]byte("world"))
	require.NoError(t, w.Close())

	data, err := mfs.ReadFile("/run/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestMemoryFileSystem_ReadDir(t *testing.T) {
	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("/frames", 0o755))
	for _, name := range []string{"00002.jpg", "00000.jpg", "00001.jpg"} {
		require.NoError(t, mfs.WriteFile(filepath.Join("/frames", name), nil, 0o644))
	}
	require.NoError(t, mfs.WriteFile("/frames/sub/00009.jpg", nil, 0o644))

	names, err := mfs.ReadDir("/frames")
	require.NoError(t, err)
	assert.Equal(t, []string{"00000.jpg", "00001.jpg", "00002.jpg"}, names)

	_, err = mfs.ReadDir("/nope")
	assert.Error(t, err)
}

func TestResetDir(t *testing.T) {
	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("/w/frames", 0o755))
	require.NoError(t, mfs.WriteFile("/w/frames/00000.jpg", []byte("old"), 0o644))
	require.NoError(t, mfs.WriteFile("/w/framesX/keep.jpg", []byte("keep"), 0o644))

	require.NoError(t, ResetDir(mfs, "/w/frames"))

	assert.True(t, mfs.Exists("/w/frames"))
	assert.False(t, mfs.Exists("/w/frames/00000.jpg"))
	assert.True(t, mfs.Exists("/w/framesX/keep.jpg"))
}

func TestWriteReadJSON(t *testing.T) {
	type rec struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}
	mfs := NewMemoryFileSystem()
	require.NoError(t, WriteJSON(mfs, "/out/rec.json", rec{Name: "a", Value: 3}))
	assert.True(t, mfs.Exists("/out"))

	var got rec
	require.NoError(t, ReadJSON(mfs, "/out/rec.json", &got))
	assert.Equal(t, rec{Name: "a", Value: 3}, got)

	require.NoError(t, mfs.WriteFile("/out/bad.json", []byte("{"), 0o644))
	assert.Error(t, ReadJSON(mfs, "/out/bad.json", &got))
}

func TestOSFileSystem_ReadDir(t *testing.T) {
	dir := t.TempDir()
	osfs := OSFileSystem{}
	require.NoError(t, osfs.WriteFile(filepath.Join(dir, "b.jpg"), []byte("b"), 0o644))
	require.NoError(t, osfs.WriteFile(filepath.Join(dir, "a.jpg"), []byte("a"), 0o644))
	require.NoError(t, osfs.MkdirAll(filepath.Join(dir, "nested"), 0o755))

	names, err := osfs.ReadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, names)
	assert.True(t, osfs.Exists(filepath.Join(dir, "a.jpg")))

	require.NoError(t, ResetDir(osfs, dir))
	names, err = osfs.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, names)
}
