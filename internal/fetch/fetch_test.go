package fetch

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeYtDlp writes a shell script that mimics yt-dlp printing the final path
func fakeYtDlp(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://www.youtube.com/watch?v=abc"))
	assert.True(t, IsURL("http://example.com/v.mp4"))
	assert.False(t, IsURL("video.mp4"))
	assert.False(t, IsURL("/tmp/video.mp4"))
	assert.False(t, IsURL("ftp://example.com/v.mp4"))
	assert.False(t, IsURL("https://"))
}

func TestNewMissingBinary(t *testing.T) {
	_, err := New(zerolog.Nop(), Options{BinaryPath: "/nonexistent/yt-dlp"})
	assert.Error(t, err)
}

func TestArgs(t *testing.T) {
	d := &Downloader{options: Options{OutputDir: "/videos", Format: "best", CookiesFile: "c.txt"}}
	args := d.args("https://example.com/v")

	assert.Equal(t, []string{
		"-f", "best",
		"--no-playlist",
		"-o", "/videos/%(title)s.%(ext)s",
		"--no-simulate",
		"--print", "after_move:filepath",
		"--cookies", "c.txt",
		"https://example.com/v",
	}, args)
}

func TestDownload(t *testing.T) {
	outDir := t.TempDir()
	target := filepath.Join(outDir, "clip.mp4")
	bin := fakeYtDlp(t, `echo "[download] 100%"
touch "`+target+`"
echo "`+target+`"`)

	d, err := New(zerolog.Nop(), Options{BinaryPath: bin, OutputDir: outDir})
	require.NoError(t, err)

	path, err := d.Download(context.Background(), "https://example.com/watch?v=1")
	require.NoError(t, err)
	assert.Equal(t, target, path)
}

func TestDownloadFailure(t *testing.T) {
	bin := fakeYtDlp(t, `echo "ERROR: video unavailable" >&2
exit 1`)

	d, err := New(zerolog.Nop(), Options{BinaryPath: bin, OutputDir: t.TempDir()})
	require.NoError(t, err)

	_, err = d.Download(context.Background(), "https://example.com/watch?v=1")
	assert.ErrorContains(t, err, "video unavailable")
}

func TestDownloadMissingFile(t *testing.T) {
	bin := fakeYtDlp(t, `echo "/does/not/exist.mp4"`)
	d, err := New(zerolog.Nop(), Options{BinaryPath: bin, OutputDir: t.TempDir()})
	require.NoError(t, err)

	_, err = d.Download(context.Background(), "https://example.com/watch?v=1")
	assert.Error(t, err)
}

func TestDownloadRejectsLocalPath(t *testing.T) {
	bin := fakeYtDlp(t, "exit 0")
	d, err := New(zerolog.Nop(), Options{BinaryPath: bin})
	require.NoError(t, err)

	_, err = d.Download(context.Background(), "local.mp4")
	assert.Error(t, err)
}
