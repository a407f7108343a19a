package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkText_FitsInOneWindow(t *testing.T) {
	text := "short transcript"
	chunks := chunkText(text, 4000, 200)
	require.Equal(t, []string{text}, chunks)
}

func TestChunkText_SplitsWithOverlap(t *testing.T) {
	text := strings.Repeat("a", 9000)
	chunks := chunkText(text, 4000, 200)
	require.Greater(t, len(chunks), 1)

	// every chunk after the first overlaps the previous chunk's tail
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1][len(chunks[i-1])-200:]
		require.True(t, strings.HasPrefix(chunks[i], prevTail))
	}
}

func TestStitchChunks_RemovesDuplicateOverlap(t *testing.T) {
	chunks := []string{
		"the quick brown fox jumps over",
		"jumps over the lazy dog",
	}
	stitched := stitchChunks(chunks, 50)
	require.Equal(t, "the quick brown fox jumps over the lazy dog", stitched)
}

func TestStitchChunks_SingleChunk(t *testing.T) {
	require.Equal(t, "only one", stitchChunks([]string{"only one"}, 50))
}
