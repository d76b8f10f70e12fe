package frames

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/accident.report/internal/detection"
	"github.com/banshee-data/accident.report/internal/fsutil"
)

// writeFrames simulates a successful ffmpeg run by writing n frames next to
// the output pattern, which is always the last argument.
func writeFrames(fs *fsutil.MemoryFileSystem, n int) func(string, []string) ([]byte, error) {
	return func(name string, args []string) ([]byte, error) {
		dir := filepath.Dir(args[len(args)-1])
		for i := 0; i < n; i++ {
			_ = fs.WriteFile(filepath.Join(dir, detection.FrameName(i)), []byte("jpg"), 0o644)
		}
		return nil, nil
	}
}

func newFS(t *testing.T) *fsutil.MemoryFileSystem {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("/work/v.mp4", []byte("video"), 0o644))
	return fs
}

func TestExtract_HardwareFirst(t *testing.T) {
	fs := newFS(t)
	run := &MockRunner{Handler: writeFrames(fs, 3)}
	ex := NewExtractor(run, fs, Options{HardwareDecode: true})

	dir, err := ex.Extract(context.Background(), "/work/v.mp4", "/work/frames", "vid1")
	require.NoError(t, err)
	assert.Equal(t, "/work/frames/vid1", dir)

	require.Len(t, run.Commands, 1)
	cmd := run.LastCommand()
	assert.Equal(t, "ffmpeg", cmd.Name)
	assert.Contains(t, cmd.Args, "cuda")
	assert.Equal(t, "/work/frames/vid1/%05d.jpg", cmd.Args[len(cmd.Args)-1])

	frames, err := List(fs, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/work/frames/vid1/00000.jpg",
		"/work/frames/vid1/00001.jpg",
		"/work/frames/vid1/00002.jpg",
	}, frames)
}

func TestExtract_FallsBackToSoftware(t *testing.T) {
	fs := newFS(t)
	ok := writeFrames(fs, 2)
	run := &MockRunner{Handler: func(name string, args []string) ([]byte, error) {
		for _, a := range args {
			if a == "-hwaccel" {
				// leave a partial frame behind; the retry must wipe it
				_ = fs.WriteFile("/work/frames/vid1/00003.jpg", nil, 0o644)
				return []byte("Cannot load libcuda.so.1"), errors.New("exit status 1")
			}
		}
		return ok(name, args)
	}}
	ex := NewExtractor(run, fs, Options{HardwareDecode: true, MaxFPS: 10})

	dir, err := ex.Extract(context.Background(), "/work/v.mp4", "/work/frames", "vid1")
	require.NoError(t, err)
	require.Len(t, run.Commands, 2)
	assert.NotContains(t, run.Commands[1].Args, "-hwaccel")
	assert.Contains(t, run.Commands[1].Args, "fps=10")

	frames, err := List(fs, dir)
	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestExtract_AllDecodersFail(t *testing.T) {
	fs := newFS(t)
	run := &MockRunner{Handler: func(string, []string) ([]byte, error) {
		return []byte("moov atom not found"), errors.New("exit status 1")
	}}
	ex := NewExtractor(run, fs, Options{})

	_, err := ex.Extract(context.Background(), "/work/v.mp4", "/work/frames", "vid1")
	require.ErrorIs(t, err, ErrDecodeFailed)
	assert.Contains(t, err.Error(), "moov atom not found")
	assert.Len(t, run.Commands, 1, "software only when hardware decode is off")
}

func TestExtract_CountFailureIsLogged(t *testing.T) {
	var diag bytes.Buffer
	SetLogWriters(nil, &diag, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	fs := newFS(t)
	run := &MockRunner{Handler: func(_ string, args []string) ([]byte, error) {
		return nil, fs.RemoveAll(filepath.Dir(args[len(args)-1]))
	}}
	dir, err := NewExtractor(run, fs, Options{}).Extract(context.Background(), "/work/v.mp4", "/work/frames", "vid1")
	require.NoError(t, err)
	assert.Equal(t, "/work/frames/vid1", dir)
	assert.Contains(t, diag.String(), "count extracted frames: list frames in /work/frames/vid1")
}

func TestExtract_MissingSource(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	run := &MockRunner{}
	_, err := NewExtractor(run, fs, Options{}).Extract(context.Background(), "/nope.mp4", "/work", "v")
	assert.ErrorIs(t, err, ErrSourceMissing)
	assert.Empty(t, run.Commands)
}

func TestList_IgnoresNonFrames(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.MkdirAll("/f", 0o755))
	for _, name := range []string{"00010.jpg", "00002.png", "notes.txt", "00001_mask.png", "00003.jpg"} {
		require.NoError(t, fs.WriteFile("/f/"+name, nil, 0o644))
	}
	frames, err := List(fs, "/f")
	require.NoError(t, err)
	assert.Equal(t, []string{"/f/00002.png", "/f/00003.jpg", "/f/00010.jpg"}, frames)

	_, err = List(fs, "/missing")
	assert.Error(t, err)
}
