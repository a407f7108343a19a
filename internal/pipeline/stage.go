// Package pipeline drives one task through fetch -> segment -> transcribe
// -> polish/summarize/analyze -> artifact writing, updating the task
// registry after every stage.
package pipeline

import "github.com/zhuguadundan/videowhisper/internal/task"

// span is a stage's slice of the fixed progress table.
type span struct{ start, end int }

var stageSpans = map[task.State]span{
	task.StatePending:      {0, 0},
	task.StateFetching:     {0, 15},
	task.StateExtracting:   {15, 25},
	task.StateTranscribing: {25, 70},
	task.StatePolishing:    {70, 80},
	task.StateSummarizing:  {80, 90},
	task.StateAnalyzing:    {90, 97},
	task.StateWriting:      {97, 100},
	task.StateCompleted:    {100, 100},
}

// stageStartProgress is the progress value set the moment a stage begins.
func stageStartProgress(state task.State) int { return stageSpans[state].start }

// stageEndProgress is the progress value set the moment a stage completes.
func stageEndProgress(state task.State) int { return stageSpans[state].end }

// transcribingProgress allocates the transcribing span linearly over the
// segment count: progress = 25 + (segments_done / segments_total) * 45.
func transcribingProgress(segmentsDone, segmentsTotal int) int {
	s := stageSpans[task.StateTranscribing]
	if segmentsTotal <= 0 {
		return s.start
	}
	p := s.start + int(float64(segmentsDone)/float64(segmentsTotal)*float64(s.end-s.start))
	if p > s.end {
		p = s.end
	}
	if p < s.start {
		p = s.start
	}
	return p
}
