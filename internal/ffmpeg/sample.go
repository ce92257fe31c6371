package ffmpeg

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kikiluvv/framecull/pkg/util"
)

// SampleFrames writes one JPEG per interval of input into outDir and
// returns the written files in temporal order.
func (e *Executor) SampleFrames(ctx context.Context, input, outDir string, opts SampleOptions) ([]string, error) {
	if input == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if outDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	pattern := opts.Pattern
	if pattern == "" {
		pattern = FramePattern
	}

	if err := util.EnsureDir(outDir); err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}

	e.logger.Info().
		Str("input", input).
		Str("dir", outDir).
		Dur("interval", interval).
		Msg("sampling frames")

	vf := NewFilterBuilder().FPSExpr(samplingRate(interval)).Build()
	args := []string{
		"-i", input,
		"-vf", vf,
		"-start_number", "0",
		"-q:v", "2",
		filepath.Join(outDir, pattern),
	}

	err := e.Run(ctx, RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("sampling")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("frame sampling failed: %w", err)
	}

	paths, err := util.ListFiles(outDir, filepath.Ext(pattern))
	if err != nil {
		return nil, err
	}

	e.logger.Info().Int("frames", len(paths)).Msg("frame sampling complete")
	return paths, nil
}

// samplingRate expresses one frame per interval as an fps value
func samplingRate(interval time.Duration) string {
	if interval%time.Second == 0 {
		return fmt.Sprintf("1/%d", int64(interval/time.Second))
	}
	rate := fmt.Sprintf("%.6f", float64(time.Second)/float64(interval))
	return strings.TrimRight(strings.TrimRight(rate, "0"), ".")
}
