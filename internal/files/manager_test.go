package files

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *Manager {
	t.Helper()
	outputDir := filepath.Join(t.TempDir(), "output")
	tempDir := filepath.Join(t.TempDir(), "temp")
	require.NoError(t, os.MkdirAll(filepath.Join(outputDir, "task1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "task1", "transcript.md"), []byte("hello"), 0o644))
	return New(outputDir, tempDir)
}

func TestListAll_FindsFiles(t *testing.T) {
	m := setup(t)
	entries, err := m.ListAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "task1", entries[0].TaskID)
	require.Equal(t, KindOutput, entries[0].Kind)
}

func TestOpenForDownload_StreamsFile(t *testing.T) {
	m := setup(t)
	entries, err := m.ListAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, name, err := m.OpenForDownload(entries[0].PathToken)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, "transcript.md", name)

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestDecodeToken_RejectsEscapingToken(t *testing.T) {
	m := setup(t)
	token := encodeToken(KindOutput, "../../etc/passwd")
	_, _, err := m.decodeToken(token)
	require.ErrorIs(t, err, ErrEscapesRoots)
}

func TestDeleteMany_RejectsEscapingTokenWithoutDeleting(t *testing.T) {
	m := setup(t)
	escaping := encodeToken(KindOutput, "../../etc/passwd")
	results := m.DeleteMany([]string{escaping})
	require.Len(t, results, 1)
	require.False(t, results[0].Deleted)
	require.NotEmpty(t, results[0].Error)
}

func TestDeleteTask_RemovesBothRoots(t *testing.T) {
	m := setup(t)
	require.NoError(t, os.MkdirAll(filepath.Join(m.TempDir, "task1"), 0o755))

	require.NoError(t, m.DeleteTask("task1"))

	_, err := os.Stat(filepath.Join(m.OutputDir, "task1"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(m.TempDir, "task1"))
	require.True(t, os.IsNotExist(err))
}
