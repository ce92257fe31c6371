package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kikiluvv/framecull/internal/cluster"
	"github.com/kikiluvv/framecull/internal/descriptor"
	"github.com/kikiluvv/framecull/internal/ffmpeg"
	"github.com/kikiluvv/framecull/internal/keyframe"
	"github.com/kikiluvv/framecull/internal/summary"
)

// Sampler turns a video into frame files
type Sampler interface {
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
	SampleFrames(ctx context.Context, input, outDir string, opts ffmpeg.SampleOptions) ([]string, error)
}

// Downloader fetches remote videos
type Downloader interface {
	Download(ctx context.Context, rawURL string) (string, error)
}

// Deps are the collaborators a Pipeline drives. Nil members are built
// from configuration by New.
type Deps struct {
	Sampler    Sampler
	Encoder    summary.Encoder
	Extractor  descriptor.Extractor
	Persister  descriptor.Persister
	Downloader Downloader
}

// Options override configuration for a single run. Zero values keep the
// configured setting.
type Options struct {
	Threshold float64
	Clusters  int
	Seed      *int64
	FPS       int
	Order     string
	Interval  time.Duration
	// Output is the summary video path, <work>/<name>/<name>_summary.mp4 by default.
	Output string
	// Batch names the persisted descriptor batch. Empty skips persistence.
	Batch    string
	Progress descriptor.ProgressFunc
}

// Summary reports one full run
type Summary struct {
	RunID      uuid.UUID
	Name       string
	Input      string
	Video      *ffmpeg.VideoInfo
	Frames     int
	Candidates []keyframe.Candidate
	Clusters   *cluster.Result
	Output     *summary.Output
	StartedAt  time.Time
	FinishedAt time.Time
}

// Representatives returns the selected frames in cluster-id order
func (s *Summary) Representatives() []cluster.Representative {
	if s.Clusters == nil {
		return nil
	}
	return s.Clusters.Representatives
}
