// Package frames models the ordered frame samples taken from a source video.
package frames

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"

	"github.com/kikiluvv/framecull/pkg/util"
)

// Frame is one sample from the source video. Frames are treated as
// immutable once produced.
type Frame struct {
	// Index is the monotonic sequence index assigned at sampling time.
	Index int
	// Path is the file the sampler wrote. Empty for in-memory frames.
	Path string
	// Timestamp is the offset into the source video, nil when unknown.
	Timestamp *time.Duration
	// Image holds already-decoded pixels. When nil, Decode reads Path.
	Image image.Image
}

// ID identifies the frame across stages and in persisted descriptor batches
func (f Frame) ID() string {
	if f.Path != "" {
		return f.Path
	}
	return fmt.Sprintf("frame_%04d", f.Index)
}

// Decode returns the frame raster, reading it from disk if needed
func (f Frame) Decode() (image.Image, error) {
	if f.Image != nil {
		return f.Image, nil
	}
	if f.Path == "" {
		return nil, errors.New("frame has neither image data nor a path")
	}
	img, err := imaging.Open(f.Path)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// ReadDir loads the sampler output in dir. Files with the given extension
// are sorted by their frame number and numbered from zero. When interval is
// positive every frame gets Index*interval as its timestamp.
func ReadDir(dir, ext string, interval time.Duration) ([]Frame, error) {
	paths, err := util.ListFiles(dir, ext)
	if err != nil {
		return nil, fmt.Errorf("read frame directory %s: %w", dir, err)
	}

	seq := make([]Frame, 0, len(paths))
	for i, path := range paths {
		f := Frame{Index: i, Path: path}
		if interval > 0 {
			ts := time.Duration(i) * interval
			f.Timestamp = &ts
		}
		seq = append(seq, f)
	}
	return seq, nil
}

// FromImages wraps in-memory rasters as an ordered frame sequence
func FromImages(images ...image.Image) []Frame {
	seq := make([]Frame, len(images))
	for i, img := range images {
		seq[i] = Frame{Index: i, Image: img}
	}
	return seq
}
