package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"video_001", "video_001"},
		{"../../etc/passwd", "etc_passwd"},
		{"a b  c", "a_b_c"},
		{"사고영상", "unknown"},
		{"", "unknown"},
		{"..", "unknown"},
		{"clip.mp4", "clip.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}

	assert.Len(t, SanitizeFilename(strings.Repeat("x", 300)), maxSegment)
}

func TestValidatePathWithinDirectory(t *testing.T) {
	root := t.TempDir()

	assert.NoError(t, ValidatePathWithinDirectory(filepath.Join(root, "users", "u1"), root))
	assert.NoError(t, ValidatePathWithinDirectory(root, root))
	assert.ErrorIs(t, ValidatePathWithinDirectory(filepath.Join(root, "..", "other"), root), ErrUnsafePath)
	assert.ErrorIs(t, ValidatePathWithinDirectory("/etc/passwd", root), ErrUnsafePath)
}

func TestValidatePathWithinDirectory_Symlink(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	err := ValidatePathWithinDirectory(filepath.Join(link, "new.mp4"), root)
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()
	p, err := SafeJoin(root, "users", "../../u1", "video 7")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "users", "u1", "video_7"), p)
}
