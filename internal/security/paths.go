// Package security guards the on-disk workspace against identifiers taken
// from requests.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned when a path would leave its root directory.
var ErrUnsafePath = errors.New("path escapes workspace")

// maxSegment bounds a sanitised path segment.
const maxSegment = 128

// SanitizeFilename maps an arbitrary identifier onto [A-Za-z0-9._-],
// collapsing runs of other characters into one underscore and trimming
// leading and trailing dots and underscores. An identifier with nothing
// usable left becomes "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxSegment {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// ValidatePathWithinDirectory reports ErrUnsafePath when the cleaned,
// absolute form of path is not root or below it. Symlinks are resolved for
// whichever prefix of the path exists.
func ValidatePathWithinDirectory(path, root string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root, err)
	}
	rel, err := filepath.Rel(resolveExisting(absRoot), resolveExisting(absPath))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrUnsafePath, path, root)
	}
	return nil
}

// resolveExisting evaluates symlinks on the longest existing prefix of an
// absolute path and re-attaches the rest.
func resolveExisting(p string) string {
	for check := p; ; {
		if resolved, err := filepath.EvalSymlinks(check); err == nil {
			rest, _ := filepath.Rel(check, p)
			return filepath.Join(resolved, rest)
		}
		parent := filepath.Dir(check)
		if parent == check {
			return p
		}
		check = parent
	}
}

// SafeJoin sanitises each segment, joins them under root and checks the
// result stays inside root.
func SafeJoin(root string, segments ...string) (string, error) {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, root)
	for _, s := range segments {
		parts = append(parts, SanitizeFilename(s))
	}
	p := filepath.Join(parts...)
	if err := ValidatePathWithinDirectory(p, root); err != nil {
		return "", err
	}
	return p, nil
}
