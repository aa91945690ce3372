// Package audio rewrites audio files through ffmpeg: loudness
// normalization and trimming. Every rewrite goes to a temp sibling first
// and is renamed over the original, so a failed run never corrupts a file.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"musicman/internal/logger"
	"musicman/internal/metadata"
	"musicman/internal/task"
	"musicman/pkg/utils"
)

// Processor runs ffmpeg-based rewrites.
type Processor struct {
	Log *logger.Logger
}

// New creates a Processor.
func New(log *logger.Logger) *Processor {
	return &Processor{Log: log}
}

// NormalizeFile rewrites one file's audio to normalized loudness and
// marks it in the tags. The original is only replaced after ffmpeg exits
// cleanly.
func (p *Processor) NormalizeFile(ctx context.Context, path string) error {
	tmp := utils.TempSibling(path)

	err := p.runFFmpeg(ctx,
		"-i", path,
		"-af", "loudnorm",
		"-b:a", "128k",
		tmp,
	)
	if err != nil {
		os.Remove(tmp)
		if ctx.Err() != nil {
			return fmt.Errorf("normalization cancelled")
		}
		return fmt.Errorf("failed to normalize %s: %w", path, err)
	}

	if err := utils.ReplaceFile(tmp, path); err != nil {
		return err
	}

	if err := metadata.MarkNormalized(path); err != nil {
		// The audio rewrite itself succeeded; the marker is best effort.
		if p.Log != nil {
			p.Log.Warn("Normalized %s but could not mark it: %v", path, err)
		}
	}
	return nil
}

// NormalizeTask returns a task runner that normalizes the given files
// one at a time. Files already marked normalized are passed over, and a
// file that fails to decode is skipped rather than aborting the batch.
func (p *Processor) NormalizeTask(ctx context.Context, files []string) *task.Runner[string] {
	r := task.New("normalize", files, func(path string) error {
		if metadata.IsNormalized(path) {
			if p.Log != nil {
				p.Log.Debug("Already normalized: %s", path)
			}
			return nil
		}
		if err := p.NormalizeFile(ctx, path); err != nil {
			if p.Log != nil {
				p.Log.Warn("Skipping %s: %v", path, err)
			}
			return err
		}
		return nil
	})
	r.Policy = task.SkipFailed
	return r
}

// Trim rewrites the file keeping only the span between start and end
// (seconds). Unlike normalization this fails loud: any ffmpeg error
// aborts and the original file is left untouched.
func (p *Processor) Trim(ctx context.Context, path string, start, end float64) error {
	if start < 0 {
		return fmt.Errorf("trim start must not be negative, got %.3f", start)
	}
	if end <= start {
		return fmt.Errorf("trim end %.3f must be after start %.3f", end, start)
	}

	tmp := utils.TempSibling(path)

	err := p.runFFmpeg(ctx,
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", path,
		"-acodec", "copy",
		tmp,
	)
	if err != nil {
		os.Remove(tmp)
		if ctx.Err() != nil {
			return fmt.Errorf("trim cancelled")
		}
		return fmt.Errorf("failed to trim %s: %w", path, err)
	}

	return utils.ReplaceFile(tmp, path)
}

func (p *Processor) runFFmpeg(ctx context.Context, args ...string) error {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(ctx, "ffmpeg", full...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if p.Log != nil {
		p.Log.Debug("Running: ffmpeg %v", args)
	}

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%w\nDetails: %s", err, stderr.String())
		}
		return err
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
