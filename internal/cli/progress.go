package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/stringvet/stringvet/internal/model"
)

// ProgressRenderer draws a terminal progress bar from streamed job progress
// events. The bar is created lazily on the first event that carries a total.
type ProgressRenderer struct {
	mu          sync.Mutex
	writer      io.Writer
	description string
	bar         *progressbar.ProgressBar
}

// NewProgressRenderer creates a renderer that writes to w.
func NewProgressRenderer(w io.Writer, description string) *ProgressRenderer {
	return &ProgressRenderer{
		writer:      w,
		description: description,
	}
}

// Update folds one progress event into the bar. Events arrive latest-wins,
// so the bar is set to the absolute position rather than incremented.
func (r *ProgressRenderer) Update(ev model.JobProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar == nil {
		if ev.Total <= 0 {
			return
		}
		r.bar = r.newBar(ev.Total)
	}

	if ev.Total > 0 && ev.Total != r.bar.GetMax() {
		r.bar.ChangeMax(ev.Total)
	}
	if err := r.bar.Set(ev.Current); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}

	description := r.description
	if ev.Language != "" {
		description = fmt.Sprintf("%s (%s)", r.description, ev.Language)
	}
	if ev.Message != "" {
		description = fmt.Sprintf("%s: %s", description, ev.Message)
	}
	r.bar.Describe(description)
}

// Finish completes the bar and moves to a fresh line.
func (r *ProgressRenderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar == nil {
		return
	}
	if err := r.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
	if _, err := fmt.Fprintln(r.writer); err != nil {
		slog.Warn("Failed to write newline", "error", err)
	}
}

func (r *ProgressRenderer) newBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(r.description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[cyan]=[reset]",
			SaucerHead:    "[cyan]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(r.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}
