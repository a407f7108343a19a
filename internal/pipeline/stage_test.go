package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhuguadundan/videowhisper/internal/media"
	"github.com/zhuguadundan/videowhisper/internal/task"
)

func TestStageSpans_MatchProgressTable(t *testing.T) {
	cases := []struct {
		state      task.State
		start, end int
	}{
		{task.StateFetching, 0, 15},
		{task.StateExtracting, 15, 25},
		{task.StateTranscribing, 25, 70},
		{task.StatePolishing, 70, 80},
		{task.StateSummarizing, 80, 90},
		{task.StateAnalyzing, 90, 97},
		{task.StateWriting, 97, 100},
		{task.StateCompleted, 100, 100},
	}
	for _, tc := range cases {
		require.Equal(t, tc.start, stageStartProgress(tc.state), "start of %s", tc.state)
		require.Equal(t, tc.end, stageEndProgress(tc.state), "end of %s", tc.state)
	}
}

func TestStageSpans_AreContiguousAndMonotonic(t *testing.T) {
	order := []task.State{
		task.StateFetching,
		task.StateExtracting,
		task.StateTranscribing,
		task.StatePolishing,
		task.StateSummarizing,
		task.StateAnalyzing,
		task.StateWriting,
	}
	for i := 1; i < len(order); i++ {
		require.Equal(t, stageEndProgress(order[i-1]), stageStartProgress(order[i]),
			"%s must start where %s ends", order[i], order[i-1])
	}
}

func TestTranscribingProgress(t *testing.T) {
	require.Equal(t, 25, transcribingProgress(0, 3))
	require.Equal(t, 40, transcribingProgress(1, 3))
	require.Equal(t, 55, transcribingProgress(2, 3))
	require.Equal(t, 70, transcribingProgress(3, 3))

	// segments_total not yet known: stay at the span start.
	require.Equal(t, 25, transcribingProgress(0, 0))
	// never overshoot the span even with inconsistent counters.
	require.Equal(t, 70, transcribingProgress(5, 3))
}

func TestClassifyStageError(t *testing.T) {
	kind, msg := classifyStageError(&stageError{kind: task.ErrURLRejected, err: errors.New("bad url")})
	require.Equal(t, task.ErrURLRejected, kind)
	require.Equal(t, "bad url", msg)

	kind, _ = classifyStageError(errors.New("something unexpected"))
	require.Equal(t, task.ErrInternal, kind)
}

func TestMapMediaErrorKind(t *testing.T) {
	cases := map[media.Kind]task.ErrorKind{
		media.KindURLRejected:  task.ErrURLRejected,
		media.KindNotFound:     task.ErrNotFound,
		media.KindGeoBlocked:   task.ErrNotFound,
		media.KindAuthRequired: task.ErrUnauthorized,
		media.KindDiskFull:     task.ErrDiskFull,
		media.KindToolMissing:  task.ErrToolMissing,
		media.KindNetwork:      task.ErrNetwork,
	}
	for in, want := range cases {
		require.Equal(t, want, mapMediaErrorKind(in), "kind %s", in)
	}
}
