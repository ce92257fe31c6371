// Package keyframe flags frames that mark visual discontinuities in an
// ordered frame sequence.
package keyframe

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/framecull/internal/frames"
)

// DetectorConfig configures keyframe detection behavior
type DetectorConfig struct {
	// Threshold is the similarity below which the current frame is a candidate.
	Threshold float64
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Threshold: 0.5,
	}
}

// Candidate is a frame flagged as a keyframe
type Candidate struct {
	Frame frames.Frame
	// Similarity is the correlation against the previous frame that triggered the flag.
	Similarity float64
}

// ID returns the originating frame identifier
func (c Candidate) ID() string {
	return c.Frame.ID()
}

// Index returns the originating frame sequence index
func (c Candidate) Index() int {
	return c.Frame.Index
}

// Detector scans frame sequences for discontinuities
type Detector struct {
	logger zerolog.Logger
	config DetectorConfig
}

// NewDetector creates a detector. The threshold must lie in (0,1).
func NewDetector(logger zerolog.Logger, cfg DetectorConfig) (*Detector, error) {
	if !(cfg.Threshold > 0 && cfg.Threshold < 1) {
		return nil, fmt.Errorf("threshold must be in (0,1), got %v", cfg.Threshold)
	}
	return &Detector{
		logger: logger.With().Str("component", "keyframe-detector").Logger(),
		config: cfg,
	}, nil
}

// Detect compares each frame with its predecessor and emits the current
// frame whenever the histogram correlation drops below the threshold.
// Frame 0 only seeds the comparison and is never emitted. Candidates come
// back in ascending sequence index.
func (d *Detector) Detect(ctx context.Context, seq []frames.Frame) ([]Candidate, error) {
	candidates := []Candidate{}

	if len(seq) < 2 {
		d.logger.Warn().Int("frames", len(seq)).Msg("not enough frames to detect keyframes")
		return candidates, nil
	}

	d.logger.Info().
		Int("frames", len(seq)).
		Float64("threshold", d.config.Threshold).
		Msg("detecting keyframes")

	var prev Histogram
	for i, frame := range seq {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 && frame.Index <= seq[i-1].Index {
			return nil, fmt.Errorf("frame %d follows frame %d: sequence indexes must increase", frame.Index, seq[i-1].Index)
		}

		img, err := frame.Decode()
		if err != nil {
			return nil, &DecodeError{Index: frame.Index, Path: frame.Path, Err: err}
		}
		hist := ComputeHistogram(img)

		if i > 0 {
			similarity := Correlation(prev, hist)
			if similarity < d.config.Threshold {
				candidates = append(candidates, Candidate{Frame: frame, Similarity: similarity})
				d.logger.Debug().
					Int("frame", frame.Index).
					Float64("similarity", similarity).
					Msg("keyframe")
			}
		}

		prev = hist
	}

	d.logger.Info().
		Int("frames", len(seq)).
		Int("candidates", len(candidates)).
		Msg("keyframe detection complete")

	return candidates, nil
}
