package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/kikiluvv/framecull/internal/config"
	"github.com/kikiluvv/framecull/internal/descriptor"
	"github.com/kikiluvv/framecull/internal/fetch"
	"github.com/kikiluvv/framecull/internal/logging"
)

// newProgressBar returns a progress callback that draws a bar on stderr.
// The bar is created on the first update, once the total is known.
func newProgressBar(description string) descriptor.ProgressFunc {
	var (
		once sync.Once
		bar  *progressbar.ProgressBar
	)
	return func(done, total int) {
		once.Do(func() {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription(description),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "█",
					SaucerHead:    "█",
					SaucerPadding: "░",
					BarStart:      "▐",
					BarEnd:        "▌",
				}),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionClearOnFinish(),
			)
		})
		bar.Set(done)
	}
}

// batchName derives a descriptor batch name from a frame directory
func batchName(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Base(dir)
	}
	base := filepath.Base(abs)
	// sampler output lives in <work>/<video>/frames
	if base == "frames" {
		return filepath.Base(filepath.Dir(abs))
	}
	return base
}

func download(ctx context.Context, cfg *config.Config, url string) (string, error) {
	d, err := fetch.New(logging.WithComponent("framecull"), fetch.Options{
		BinaryPath:  cfg.Fetch.BinaryPath,
		CookiesFile: cfg.Fetch.CookiesFile,
		OutputDir:   cfg.Fetch.OutputDir,
	})
	if err != nil {
		return "", err
	}
	return d.Download(ctx, url)
}
