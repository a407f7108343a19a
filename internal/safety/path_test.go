package safety

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsWithin(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "task1", "file.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(inside), 0o755))
	require.NoError(t, os.WriteFile(inside, []byte("x"), 0o644))

	ok, err := IsWithin(root, inside)
	require.NoError(t, err)
	require.True(t, ok)

	outside := filepath.Join(filepath.Dir(root), "elsewhere", "file.txt")
	ok, err = IsWithin(root, outside)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsWithin_TraversalRejected(t *testing.T) {
	root := t.TempDir()
	escape := filepath.Join(root, "..", "..", "etc", "passwd")

	ok, err := IsWithin(root, escape)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "task1"), 0o755))

	p, err := SafeJoin(root, "task1", "transcript.md")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "task1", "transcript.md"), p)

	_, err = SafeJoin(root, "..", "..", "secret")
	require.ErrorIs(t, err, ErrPathEscape)
}

func TestSafeJoin_RejectsEncodedTraversal(t *testing.T) {
	root := t.TempDir()
	_, err := SafeJoin(root, "task1/../../outside")
	require.ErrorIs(t, err, ErrPathEscape)
}
