// Package ffmpeg wraps the ffmpeg and ffprobe binaries used to sample
// frames from a video and to encode summary slideshows.
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Options locates the binaries and tunes encoding
type Options struct {
	FFmpegPath  string
	FFprobePath string
	Threads     int
	Preset      string
	CRF         int
}

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
	preset      string
	crf         int
}

// New resolves the configured binaries and creates an executor
func New(logger zerolog.Logger, opts Options) (*Executor, error) {
	ffmpegName := opts.FFmpegPath
	if ffmpegName == "" {
		ffmpegName = "ffmpeg"
	}
	ffprobeName := opts.FFprobePath
	if ffprobeName == "" {
		ffprobeName = "ffprobe"
	}

	ffmpegPath, err := exec.LookPath(ffmpegName)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found (%s): %w", ffmpegName, err)
	}

	ffprobePath, err := exec.LookPath(ffprobeName)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found (%s): %w", ffprobeName, err)
	}

	preset := opts.Preset
	if preset == "" {
		preset = DefaultPreset
	}
	crf := opts.CRF
	if crf <= 0 {
		crf = DefaultCRF
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     opts.Threads,
		preset:      preset,
		crf:         crf,
	}, nil
}

// Run executes ffmpeg with the given arguments and streams progress
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	// global options must precede inputs
	baseArgs := []string{"-y", "-hide_banner", "-loglevel", "error"}
	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", fmt.Sprintf("%d", e.threads))
	}
	baseArgs = append(baseArgs, "-progress", "pipe:2")
	args := append(baseArgs, opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		errTail []string
	)
	logLine := func(line string) {
		if opts.LogHandler != nil {
			opts.LogHandler(line)
		}
		if isProgressLine(line) {
			return
		}
		errMu.Lock()
		errTail = append(errTail, line)
		if len(errTail) > 5 {
			errTail = errTail[1:]
		}
		errMu.Unlock()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		streamProgress(stderr, opts.ProgressHandler, logLine)
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if opts.LogHandler != nil {
				opts.LogHandler(scanner.Text())
			}
		}
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errMu.Lock()
		tail := strings.Join(errTail, "; ")
		errMu.Unlock()
		if tail != "" {
			return fmt.Errorf("ffmpeg execution failed: %w: %s", err, tail)
		}
		return fmt.Errorf("ffmpeg execution failed: %w", err)
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

var progressKeys = []string{
	"frame=", "fps=", "bitrate=", "total_size=", "out_time", "dup_frames=",
	"drop_frames=", "speed=", "progress=", "stream_",
}

func isProgressLine(line string) bool {
	for _, k := range progressKeys {
		if strings.HasPrefix(line, k) {
			return true
		}
	}
	return false
}

// streamProgress parses the key=value blocks written by -progress
func streamProgress(r io.Reader, progressHandler ProgressFunc, logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	p := &Progress{}

	for scanner.Scan() {
		line := scanner.Text()
		logHandler(line)

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "frame":
			fmt.Sscanf(value, "%d", &p.Frame)
		case "fps":
			fmt.Sscanf(value, "%f", &p.FPS)
		case "bitrate":
			p.Bitrate = value
		case "out_time":
			p.Time = value
		case "speed":
			p.Speed = value
		case "progress":
			if progressHandler != nil && p.Frame > 0 {
				p.Done = value == "end"
				progressHandler(p)
			}
			p = &Progress{}
		}
	}
}
