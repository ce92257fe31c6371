// Package summary turns the selected representatives into the summary
// video.
package summary

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/framecull/internal/cluster"
	"github.com/kikiluvv/framecull/internal/ffmpeg"
	"github.com/kikiluvv/framecull/internal/keyframe"
	"github.com/kikiluvv/framecull/pkg/util"
)

// Order decides how representatives are laid out in the summary
type Order string

const (
	// OrderChronological plays representatives by source sequence index.
	OrderChronological Order = "chronological"
	// OrderCluster plays representatives by cluster id.
	OrderCluster Order = "cluster"
)

// ParseOrder validates an order name
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case OrderChronological, OrderCluster:
		return Order(s), nil
	case "":
		return OrderChronological, nil
	}
	return "", fmt.Errorf("unknown summary order %q (want chronological or cluster)", s)
}

// EmptyInputError is returned when there is nothing to assemble
type EmptyInputError struct{}

func (e *EmptyInputError) Error() string {
	return "no representatives to assemble"
}

// IsEmptyInput reports whether err is an EmptyInputError
func IsEmptyInput(err error) bool {
	var target *EmptyInputError
	return errors.As(err, &target)
}

// Encoder writes an ordered image sequence as a video
type Encoder interface {
	Slideshow(ctx context.Context, opts ffmpeg.SlideshowOptions) error
}

// Config configures an Assembler
type Config struct {
	Order Order
	// Width and Height fix the output frame size. When zero the first
	// representative's size is used.
	Width  int
	Height int
	// FramesDir receives the normalised summary frames. When empty a
	// temporary directory is used and removed afterwards.
	FramesDir string
	// JPEGQuality for written frames, 95 when zero.
	JPEGQuality int
}

// Output describes an assembled summary
type Output struct {
	Video  string
	Frames []string
	Width  int
	Height int
}

// Assembler normalises representative frames and encodes them
type Assembler struct {
	logger  zerolog.Logger
	encoder Encoder
	config  Config
}

func NewAssembler(logger zerolog.Logger, enc Encoder, cfg Config) (*Assembler, error) {
	if enc == nil {
		return nil, errors.New("summary encoder is required")
	}
	order, err := ParseOrder(string(cfg.Order))
	if err != nil {
		return nil, err
	}
	cfg.Order = order
	if (cfg.Width == 0) != (cfg.Height == 0) || cfg.Width < 0 || cfg.Height < 0 {
		return nil, fmt.Errorf("summary size must set both width and height, got %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 95
	}
	return &Assembler{
		logger:  logger.With().Str("component", "assembler").Logger(),
		encoder: enc,
		config:  cfg,
	}, nil
}

// Arrange returns the representatives in playback order without
// modifying reps
func (a *Assembler) Arrange(reps []cluster.Representative) []cluster.Representative {
	out := make([]cluster.Representative, len(reps))
	copy(out, reps)

	switch a.config.Order {
	case OrderCluster:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Cluster < out[j].Cluster })
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Candidate.Index() < out[j].Candidate.Index()
		})
	}
	return out
}

// Assemble writes the representatives to outputPath as a video at fps
// frames per second.
func (a *Assembler) Assemble(ctx context.Context, reps []cluster.Representative, outputPath string, fps int) (*Output, error) {
	if len(reps) == 0 {
		return nil, &EmptyInputError{}
	}
	if fps < 1 {
		return nil, fmt.Errorf("fps must be at least 1, got %d", fps)
	}
	if outputPath == "" {
		return nil, errors.New("output path is required")
	}

	framesDir := a.config.FramesDir
	if framesDir == "" {
		tmp, err := os.MkdirTemp("", "framecull-summary-*")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(tmp)
		framesDir = tmp
	}
	if err := util.EnsureDir(framesDir); err != nil {
		return nil, fmt.Errorf("create summary frame dir: %w", err)
	}
	if err := util.EnsureDir(filepath.Dir(outputPath)); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	ordered := a.Arrange(reps)

	paths, w, h, err := a.writeFrames(ctx, ordered, framesDir)
	if err != nil {
		return nil, err
	}

	if err := a.encoder.Slideshow(ctx, ffmpeg.SlideshowOptions{
		Images: paths,
		Output: outputPath,
		FPS:    fps,
	}); err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}

	a.logger.Info().
		Str("output", outputPath).
		Int("frames", len(paths)).
		Int("fps", fps).
		Str("order", string(a.config.Order)).
		Msg("summary video written")

	out := &Output{Video: outputPath, Width: w, Height: h}
	if a.config.FramesDir != "" {
		out.Frames = paths
	}
	return out, nil
}

// writeFrames letterboxes every representative onto a canvas of one size
func (a *Assembler) writeFrames(ctx context.Context, reps []cluster.Representative, dir string) ([]string, int, int, error) {
	w, h := a.config.Width, a.config.Height
	paths := make([]string, 0, len(reps))

	for i, rep := range reps {
		if err := ctx.Err(); err != nil {
			return nil, 0, 0, err
		}

		img, err := rep.Candidate.Frame.Decode()
		if err != nil {
			return nil, 0, 0, &keyframe.DecodeError{
				Index: rep.Candidate.Index(),
				Path:  rep.Candidate.Frame.Path,
				Err:   err,
			}
		}
		if w == 0 {
			b := img.Bounds()
			w, h = b.Dx(), b.Dy()
		}

		path := filepath.Join(dir, fmt.Sprintf("summary_%04d.jpg", i))
		if err := imaging.Save(letterbox(img, w, h), path, imaging.JPEGQuality(a.config.JPEGQuality)); err != nil {
			return nil, 0, 0, fmt.Errorf("write summary frame %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, w, h, nil
}

// letterbox fits img inside w x h and centres it on black
func letterbox(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	fitted := imaging.Fit(img, w, h, imaging.Lanczos)
	canvas := imaging.New(w, h, color.Black)
	return imaging.PasteCenter(canvas, fitted)
}
