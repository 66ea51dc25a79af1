package main

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/tejusbharadwaj/univers/internal/export"
)

// progressBarSink renders export progress as a terminal progress bar.
type progressBarSink struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func newProgressBarSink(out io.Writer) *progressBarSink {
	return &progressBarSink{out: out}
}

func (p *progressBarSink) OnProgress(ev export.Progress) {
	if p.bar == nil || p.bar.GetMax() != ev.TotalChunks {
		p.bar = progressbar.NewOptions(
			ev.TotalChunks,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(p.out, "\n")
			}),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	desc := fmt.Sprintf("[cyan]%s[reset] %d/%d chunks (%d/%d models)",
		ev.ModelID, ev.ModelChunksCompleted, ev.ModelTotalChunks, ev.ModelsCompleted, ev.TotalModels)
	switch {
	case ev.Err != nil && ev.Attempt == 0:
		desc = fmt.Sprintf("[red]%s failed[reset] (%d/%d models)", ev.ModelID, ev.ModelsCompleted, ev.TotalModels)
	case ev.Err != nil:
		desc = fmt.Sprintf("[yellow]%s attempt %d failed, retrying[reset]", ev.ModelID, ev.Attempt)
	}
	p.bar.Describe(desc)
	p.bar.Set(ev.ChunksCompleted)
}

// Finish completes the bar if the export ended early.
func (p *progressBarSink) Finish() {
	if p.bar != nil && !p.bar.IsFinished() {
		p.bar.Finish()
	}
}
