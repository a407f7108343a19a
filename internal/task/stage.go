package task

// State is the pipeline engine's internal state name, distinct from the
// localized Stage label shown to clients. Defined here (not in
// internal/pipeline) because Task.Stage is part of the durable record's
// data model.
type State string

const (
	StatePending      State = "pending"
	StateFetching     State = "fetching"
	StateExtracting   State = "extracting"
	StateTranscribing State = "transcribing"
	StatePolishing    State = "polishing"
	StateSummarizing  State = "summarizing"
	StateAnalyzing    State = "analyzing"
	StateWriting      State = "writing"
	StateCompleted    State = "completed"
)

// stageLabels is the fixed translation table between internal state and
// the closed set of client-facing stage labels.
var stageLabels = map[State]string{
	StatePending:      "获取视频信息",
	StateFetching:     "下载音频",
	StateExtracting:   "处理音频",
	StateTranscribing: "语音转文字",
	StatePolishing:    "生成逐字稿",
	StateSummarizing:  "生成总结报告",
	StateAnalyzing:    "内容分析",
	StateWriting:      "保存结果",
	StateCompleted:    "完成",
}

// StageLabel returns the client-facing label for an internal state, or the
// raw state name if it is not one of the known states (defensive default;
// should not occur for a State produced by the pipeline engine).
func StageLabel(state State) string {
	if label, ok := stageLabels[state]; ok {
		return label
	}
	return string(state)
}
