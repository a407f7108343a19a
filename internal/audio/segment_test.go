package audio

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	require.False(t, Plan(120, 300, 300))
	require.True(t, Plan(900, 300, 300))
}

func TestSplit_ShortAudioSingleSegment(t *testing.T) {
	s := &Splitter{}
	segments, err := s.Split(context.Background(), "/tmp/audio.mp3", "/tmp", 120, 300, 300)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, 0.0, segments[0].StartSeconds)
	require.Equal(t, 120.0, segments[0].EndSeconds)
}

func TestSplit_LongAudioInvokesFFmpegAndProducesContiguousSegments(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg script is POSIX shell only")
	}
	destDir := t.TempDir()
	fakeFFmpeg := filepath.Join(t.TempDir(), "ffmpeg")
	// Writes 3 placeholder segment files regardless of arguments, standing
	// in for ffmpeg's segment muxer so the test stays hermetic.
	script := `#!/bin/sh
out=""
for a in "$@"; do out="$a"; done
pattern=$(echo "$out" | sed 's/%04d/REPL/')
base=$(dirname "$pattern")
ext="${pattern##*.}"
for i in 0 1 2; do
  printf '' > "$base/segment_000$i.$ext"
done
`
	require.NoError(t, os.WriteFile(fakeFFmpeg, []byte(script), 0o755))

	s := &Splitter{FFmpegPath: fakeFFmpeg}
	segments, err := s.Split(context.Background(), "/tmp/audio.mp3", destDir, 900, 300, 300)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	for i := 0; i < len(segments)-1; i++ {
		require.Equal(t, segments[i].EndSeconds, segments[i+1].StartSeconds)
	}
	require.Equal(t, 900.0, segments[len(segments)-1].EndSeconds)
}

func TestSplit_ToolMissing(t *testing.T) {
	s := &Splitter{FFmpegPath: "definitely-not-real-ffmpeg-xyz"}
	_, err := s.Split(context.Background(), "/tmp/audio.mp3", t.TempDir(), 900, 300, 300)
	require.Error(t, err)
	var splitErr *ErrSplitFailed
	require.ErrorAs(t, err, &splitErr)
}
