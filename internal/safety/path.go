// Package safety centralizes the filesystem, URL, and logging checks every
// other component must apply at its boundaries: path containment, filename
// sanitization, outbound URL validation, and secret redaction.
package safety

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned whenever a resolved path falls outside its
// configured root.
var ErrPathEscape = errors.New("path_escape")

// IsWithin reports whether candidate, after symlink resolution, has root as
// an ancestor. Both paths are cleaned and made absolute first. A candidate
// that does not yet exist is resolved component-by-component so callers can
// check a path before creating it.
func IsWithin(root, candidate string) (bool, error) {
	resolvedRoot, err := resolveExisting(root)
	if err != nil {
		return false, fmt.Errorf("resolve root: %w", err)
	}
	resolvedCandidate, err := resolveExisting(candidate)
	if err != nil {
		return false, fmt.Errorf("resolve candidate: %w", err)
	}

	rel, err := filepath.Rel(resolvedRoot, resolvedCandidate)
	if err != nil {
		return false, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, nil
	}
	return true, nil
}

// SafeJoin joins root with parts and verifies the result stays within root.
// It returns ErrPathEscape (wrapped) when it does not.
func SafeJoin(root string, parts ...string) (string, error) {
	joined := filepath.Join(append([]string{root}, parts...)...)
	joined = filepath.Clean(joined)

	ok, err := IsWithin(root, joined)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathEscape, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s escapes %s", ErrPathEscape, joined, root)
	}
	return joined, nil
}

// resolveExisting resolves symlinks on the longest existing prefix of path,
// then reattaches the remaining (not-yet-created) components unresolved.
// This lets IsWithin/SafeJoin be used both to validate a path that is about
// to be created and one that already exists.
func resolveExisting(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	var tail []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			full := filepath.Join(append([]string{resolved}, tail...)...)
			return filepath.Clean(full), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			// Reached the filesystem root without finding an existing
			// component; nothing to resolve, return the cleaned path as-is.
			return abs, nil
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}
