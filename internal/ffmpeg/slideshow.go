package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Slideshow encodes still images into an H.264 video showing FPS images
// per second, in the given order.
func (e *Executor) Slideshow(ctx context.Context, opts SlideshowOptions) error {
	if len(opts.Images) == 0 {
		return fmt.Errorf("no input images provided")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}
	if opts.FPS < 1 {
		return fmt.Errorf("fps must be at least 1, got %d", opts.FPS)
	}

	e.logger.Info().
		Int("images", len(opts.Images)).
		Int("fps", opts.FPS).
		Str("output", opts.Output).
		Msg("encoding slideshow")

	listFile, err := writeConcatList(opts.Images, opts.FPS)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	defer os.Remove(listFile)

	vf := NewFilterBuilder().
		FPS(float64(opts.FPS)).
		EvenDimensions().
		Format(DefaultPixelFormat).
		Build()

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-vf", vf,
		"-c:v", DefaultVideoCodec,
		"-preset", e.preset,
		"-crf", fmt.Sprintf("%d", e.crf),
		"-movflags", "+faststart",
		opts.Output,
	}

	return e.Run(ctx, RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("encoding")
		},
	})
}

// writeConcatList builds a concat demuxer script giving every image
// 1/fps seconds. The last image is listed twice so its duration is honoured.
func writeConcatList(images []string, fps int) (string, error) {
	tmpFile, err := os.CreateTemp("", "framecull-concat-*.txt")
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	var last string
	for _, img := range images {
		abs, err := filepath.Abs(img)
		if err != nil {
			os.Remove(tmpFile.Name())
			return "", err
		}
		last = quoteConcatPath(abs)
		fmt.Fprintf(&b, "file %s\nduration %s\n", last, frameDuration(fps))
	}
	fmt.Fprintf(&b, "file %s\n", last)

	if _, err := tmpFile.WriteString(b.String()); err != nil {
		os.Remove(tmpFile.Name())
		return "", err
	}
	return tmpFile.Name(), nil
}

func frameDuration(fps int) string {
	s := fmt.Sprintf("%.6f", 1.0/float64(fps))
	return strings.TrimRight(strings.TrimRight(s, "0"), ".")
}

// quoteConcatPath single-quotes a path for the concat demuxer
func quoteConcatPath(p string) string {
	return "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
}
