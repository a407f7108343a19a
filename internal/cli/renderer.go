package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
)

// progressTask mirrors the JSON shape of task.Task's progress-relevant
// fields, decoded independently here since the cli binary talks to the
// server over HTTP rather than importing the task package directly.
type progressTask struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	Stage         string `json:"stage"`
	StageDetail   string `json:"stage_detail"`
	SegmentsTotal int    `json:"segments_total"`
	SegmentsDone  int    `json:"segments_done"`
	Error         *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// progressRenderer draws a two-line progress display on a TTY, or prints
// timestamped single lines on a non-TTY.
type progressRenderer struct {
	out   io.Writer
	start time.Time
	isTTY bool
	width int
	last  progressTask
	lines int
}

func newProgressRenderer() *progressRenderer {
	out := os.Stdout
	tty := isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())

	width := 80
	if tty {
		if w, _, err := term.GetSize(out.Fd()); err == nil && w > 0 {
			width = w
		}
	}

	return &progressRenderer{out: out, start: time.Now(), isTTY: tty, width: width}
}

func (r *progressRenderer) Handle(t progressTask) {
	r.last = t
	if r.isTTY {
		r.renderTTY(t)
	} else {
		r.renderPlain(t)
	}
}

func (r *progressRenderer) Finish() {
	t := r.last
	if r.isTTY && r.lines > 0 {
		r.clearLines()
	}
	if t.Status == "failed" && t.Error != nil {
		fmt.Fprintf(r.out, "\n  %s: %s: %s\n", t.ID, t.Error.Kind, t.Error.Message)
		return
	}
	fmt.Fprintf(r.out, "\n  %s %s (%s)\n", t.ID, t.Status, formatElapsed(time.Since(r.start)))
}

func (r *progressRenderer) renderTTY(t progressTask) {
	if r.lines > 0 {
		r.clearLines()
	}
	msg := fmt.Sprintf("  %s: %s", t.Stage, t.StageDetail)
	bar := renderBar(float64(t.Progress)/100, r.barWidth())
	line2 := fmt.Sprintf("  %s %3d%%  %s", bar, t.Progress, formatElapsed(time.Since(r.start)))
	fmt.Fprintf(r.out, "%s\n%s", msg, line2)
	r.lines = 2
}

func (r *progressRenderer) renderPlain(t progressTask) {
	fmt.Fprintf(r.out, "[%s] %s %d%% %s\n", formatElapsed(time.Since(r.start)), t.Stage, t.Progress, t.StageDetail)
}

func (r *progressRenderer) clearLines() {
	for i := 0; i < r.lines; i++ {
		if i == 0 {
			fmt.Fprint(r.out, "\r\033[2K")
		} else {
			fmt.Fprint(r.out, "\033[A\033[2K")
		}
	}
	fmt.Fprint(r.out, "\r")
	r.lines = 0
}

func (r *progressRenderer) barWidth() int {
	w := r.width - 16
	if w < 20 {
		w = 20
	}
	if w > 60 {
		w = 60
	}
	return w
}

func renderBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	empty := width - filled
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", empty) + "]"
}

func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	mins := total / 60
	secs := total % 60
	return fmt.Sprintf("%d:%02d", mins, secs)
}
