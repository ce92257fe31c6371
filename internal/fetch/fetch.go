// Package fetch downloads remote videos with yt-dlp.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/framecull/pkg/util"
)

// Options configures the downloader
type Options struct {
	BinaryPath  string
	CookiesFile string
	OutputDir   string
	// Format is the yt-dlp format selector, "best" when empty.
	Format string
}

// Downloader fetches a single video per call
type Downloader struct {
	logger  zerolog.Logger
	binary  string
	options Options
}

// New resolves the yt-dlp binary
func New(logger zerolog.Logger, opts Options) (*Downloader, error) {
	name := opts.BinaryPath
	if name == "" {
		name = "yt-dlp"
	}
	bin, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp not found (%s): %w", name, err)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.Format == "" {
		opts.Format = "best"
	}
	return &Downloader{
		logger:  logger.With().Str("component", "fetch").Logger(),
		binary:  bin,
		options: opts,
	}, nil
}

// IsURL reports whether input looks like a remote http(s) location
func IsURL(input string) bool {
	u, err := url.Parse(input)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Download saves the video behind rawURL and returns the local file path
func (d *Downloader) Download(ctx context.Context, rawURL string) (string, error) {
	if !IsURL(rawURL) {
		return "", fmt.Errorf("not a downloadable url: %q", rawURL)
	}
	if err := util.EnsureDir(d.options.OutputDir); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	args := d.args(rawURL)

	d.logger.Info().
		Str("url", rawURL).
		Str("dir", d.options.OutputDir).
		Msg("downloading video")
	d.logger.Debug().Strs("args", args).Msg("executing yt-dlp")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	path := lastLine(stdout.String())
	if path == "" {
		return "", fmt.Errorf("yt-dlp did not report a downloaded file")
	}
	if !util.FileExists(path) {
		return "", fmt.Errorf("yt-dlp reported %s but the file does not exist", path)
	}

	d.logger.Info().Str("path", path).Msg("download complete")
	return path, nil
}

func (d *Downloader) args(rawURL string) []string {
	args := []string{
		"-f", d.options.Format,
		"--no-playlist",
		"-o", filepath.Join(d.options.OutputDir, "%(title)s.%(ext)s"),
		"--no-simulate",
		"--print", "after_move:filepath",
	}
	if d.options.CookiesFile != "" {
		args = append(args, "--cookies", d.options.CookiesFile)
	}
	return append(args, rawURL)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
