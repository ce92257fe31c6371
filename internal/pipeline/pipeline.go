// Package pipeline wires sampling, keyframe detection, descriptor
// extraction, clustering and summary assembly into one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/framecull/internal/cluster"
	"github.com/kikiluvv/framecull/internal/config"
	"github.com/kikiluvv/framecull/internal/descriptor"
	"github.com/kikiluvv/framecull/internal/fetch"
	"github.com/kikiluvv/framecull/internal/ffmpeg"
	"github.com/kikiluvv/framecull/internal/frames"
	"github.com/kikiluvv/framecull/internal/keyframe"
	"github.com/kikiluvv/framecull/internal/summary"
	"github.com/kikiluvv/framecull/pkg/util"
)

// Pipeline orchestrates the video summarisation workflow
type Pipeline struct {
	logger     zerolog.Logger
	config     *config.Config
	sampler    Sampler
	encoder    summary.Encoder
	extractor  descriptor.Extractor
	persister  descriptor.Persister
	downloader Downloader
}

// New creates a pipeline from configuration. Missing external tools are
// tolerated until an operation needs them.
func New(ctx context.Context, logger zerolog.Logger, appCfg *config.Config) (*Pipeline, error) {
	return NewWithDeps(ctx, logger, appCfg, Deps{})
}

// NewWithDeps creates a pipeline using the given collaborators, building
// any that are nil from configuration
func NewWithDeps(ctx context.Context, logger zerolog.Logger, appCfg *config.Config, deps Deps) (*Pipeline, error) {
	if appCfg == nil {
		appCfg = config.Default()
	}

	p := &Pipeline{
		logger:     logger.With().Str("component", "pipeline").Logger(),
		config:     appCfg,
		sampler:    deps.Sampler,
		encoder:    deps.Encoder,
		extractor:  deps.Extractor,
		persister:  deps.Persister,
		downloader: deps.Downloader,
	}

	if p.sampler == nil || p.encoder == nil {
		exec, err := ffmpeg.New(logger, ffmpeg.Options{
			FFmpegPath:  appCfg.FFmpeg.BinaryPath,
			FFprobePath: appCfg.FFmpeg.ProbePath,
			Threads:     appCfg.FFmpeg.Threads,
			Preset:      appCfg.FFmpeg.Preset,
			CRF:         appCfg.FFmpeg.CRF,
		})
		if err != nil {
			p.logger.Debug().Err(err).Msg("ffmpeg unavailable, sampling and encoding disabled")
		} else {
			if p.sampler == nil {
				p.sampler = exec
			}
			if p.encoder == nil {
				p.encoder = exec
			}
		}
	}

	if p.downloader == nil {
		d, err := fetch.New(logger, fetch.Options{
			BinaryPath:  appCfg.Fetch.BinaryPath,
			CookiesFile: appCfg.Fetch.CookiesFile,
			OutputDir:   appCfg.Fetch.OutputDir,
		})
		if err != nil {
			p.logger.Debug().Err(err).Msg("yt-dlp unavailable, remote inputs disabled")
		} else {
			p.downloader = d
		}
	}

	if p.extractor == nil {
		p.extractor = p.buildExtractor()
	}

	if p.persister == nil {
		persister, err := p.buildPersister(ctx)
		if err != nil {
			p.extractor.Close()
			return nil, err
		}
		p.persister = persister
	}

	return p, nil
}

// Close releases the model session and store connections
func (p *Pipeline) Close() error {
	if p.persister != nil {
		p.persister.Close()
	}
	if p.extractor != nil {
		return p.extractor.Close()
	}
	return nil
}

// Extractor returns the descriptor extractor in use
func (p *Pipeline) Extractor() descriptor.Extractor {
	return p.extractor
}

// buildExtractor loads the embedding model, falling back to colour
// statistics when it cannot be used
func (p *Pipeline) buildExtractor() descriptor.Extractor {
	cfg := p.config.Descriptor
	fallback := descriptor.NewColorExtractor(256)

	if !cfg.UseModel || cfg.ModelPath == "" {
		p.logger.Info().Msg("using colour statistics descriptors")
		return fallback
	}

	model, err := descriptor.NewONNXExtractor(p.logger, descriptor.ModelConfig{
		Path:        cfg.ModelPath,
		LibraryPath: cfg.LibraryPath,
		InputName:   cfg.InputName,
		OutputName:  cfg.OutputName,
		InputSize:   cfg.InputSize,
		OutputShape: cfg.OutputShape,
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to load embedding model, using colour statistics descriptors")
		return fallback
	}

	p.logger.Info().Str("model", cfg.ModelPath).Int("dim", model.Dim()).Msg("using model descriptors")
	return model
}

func (p *Pipeline) buildPersister(ctx context.Context) (descriptor.Persister, error) {
	cfg := p.config.Descriptor
	switch cfg.Store {
	case "postgres":
		store, err := descriptor.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.InitSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		dir := cfg.StoreDir
		if dir == "" {
			dir = filepath.Join(p.config.WorkDir, "descriptors")
		}
		return descriptor.NewFileStore(dir)
	}
}

// Detect reads the sampled frames in frameDir and returns keyframe candidates
func (p *Pipeline) Detect(ctx context.Context, frameDir string, opts Options) ([]keyframe.Candidate, int, error) {
	if !util.IsDir(frameDir) {
		return nil, 0, fmt.Errorf("frame directory %s does not exist", frameDir)
	}

	interval := p.interval(opts)
	seq, err := frames.ReadDir(frameDir, p.config.Sampling.Extension, interval)
	if err != nil {
		return nil, 0, err
	}

	threshold := p.config.Keyframe.Threshold
	if opts.Threshold != 0 {
		threshold = opts.Threshold
	}
	detector, err := keyframe.NewDetector(p.logger, keyframe.DetectorConfig{Threshold: threshold})
	if err != nil {
		return nil, 0, err
	}

	candidates, err := detector.Detect(ctx, seq)
	if err != nil {
		return nil, len(seq), err
	}
	return candidates, len(seq), nil
}

// Extract computes descriptors for candidates and persists them when
// opts.Batch is set
func (p *Pipeline) Extract(ctx context.Context, candidates []keyframe.Candidate, opts Options) (*descriptor.Store, error) {
	store, err := descriptor.ExtractBatch(ctx, p.extractor, candidates, descriptor.BatchOptions{
		Workers:  p.config.Concurrency,
		Logger:   p.logger,
		Progress: opts.Progress,
	})
	if err != nil {
		return nil, fmt.Errorf("descriptor extraction: %w", err)
	}

	if opts.Batch != "" {
		if err := p.persister.Save(ctx, opts.Batch, store); err != nil {
			return nil, fmt.Errorf("persist descriptors: %w", err)
		}
		p.logger.Info().Str("batch", opts.Batch).Int("count", store.Len()).Msg("descriptors saved")
	}
	return store, nil
}

// Cluster selects representatives among candidates using their descriptors
func (p *Pipeline) Cluster(ctx context.Context, candidates []keyframe.Candidate, store *descriptor.Store, opts Options) (*cluster.Result, error) {
	items, err := cluster.Items(candidates, store)
	if err != nil {
		return nil, err
	}
	return p.cluster(ctx, items, opts)
}

// ClusterStored reruns clustering on a persisted descriptor batch
func (p *Pipeline) ClusterStored(ctx context.Context, batch string, opts Options) (*cluster.Result, error) {
	store, err := p.persister.Load(ctx, batch)
	if err != nil {
		return nil, err
	}
	return p.cluster(ctx, cluster.ItemsFromStore(store), opts)
}

func (p *Pipeline) cluster(ctx context.Context, items []cluster.Item, opts Options) (*cluster.Result, error) {
	c, err := cluster.NewClusterer(p.logger, p.clusterConfig(opts))
	if err != nil {
		return nil, err
	}
	return c.Select(ctx, items)
}

func (p *Pipeline) clusterConfig(opts Options) cluster.Config {
	cfg := cluster.Config{
		K: p.config.Cluster.K,
		Options: cluster.Options{
			Seed:          p.config.Cluster.Seed,
			MaxIterations: p.config.Cluster.MaxIterations,
			Tolerance:     p.config.Cluster.Tolerance,
			Restarts:      p.config.Cluster.Restarts,
		},
	}
	if opts.Clusters > 0 {
		cfg.K = opts.Clusters
	}
	if opts.Seed != nil {
		cfg.Seed = *opts.Seed
	}
	return cfg
}

func (p *Pipeline) interval(opts Options) time.Duration {
	if opts.Interval > 0 {
		return opts.Interval
	}
	return time.Duration(p.config.Sampling.IntervalSeconds) * time.Second
}

// Assemble writes representatives as the summary video
func (p *Pipeline) Assemble(ctx context.Context, reps []cluster.Representative, framesDir string, opts Options) (*summary.Output, error) {
	if p.encoder == nil {
		return nil, errors.New("summary encoding needs ffmpeg, which was not found")
	}

	order := p.config.Summary.Order
	if opts.Order != "" {
		order = opts.Order
	}
	fps := p.config.Summary.FPS
	if opts.FPS != 0 {
		fps = opts.FPS
	}

	assembler, err := summary.NewAssembler(p.logger, p.encoder, summary.Config{
		Order:     summary.Order(order),
		Width:     p.config.Summary.Width,
		Height:    p.config.Summary.Height,
		FramesDir: framesDir,
	})
	if err != nil {
		return nil, err
	}
	return assembler.Assemble(ctx, reps, opts.Output, fps)
}

// Summarize runs every stage on a local video file or a remote URL
func (p *Pipeline) Summarize(ctx context.Context, input string, opts Options) (*Summary, error) {
	if input == "" {
		return nil, fmt.Errorf("input path cannot be empty")
	}

	result := &Summary{
		RunID:     uuid.New(),
		Input:     input,
		StartedAt: time.Now(),
	}
	log := p.logger.With().Str("run_id", result.RunID.String()).Logger()

	log.Info().Str("input", input).Msg("starting summarisation pipeline")

	// Stage 0: fetch remote input
	if fetch.IsURL(input) {
		if p.downloader == nil {
			return nil, errors.New("remote input needs yt-dlp, which was not found")
		}
		local, err := p.downloader.Download(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to download video: %w", err)
		}
		input = local
	}
	if p.sampler == nil {
		return nil, errors.New("frame sampling needs ffmpeg, which was not found")
	}

	// Stage 1: probe
	info, err := p.sampler.ProbeVideo(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}
	result.Video = info

	log.Info().
		Dur("duration", info.Duration).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Msg("video metadata extracted")

	result.Name = util.BaseName(input)
	runDir := filepath.Join(p.config.WorkDir, result.Name)
	framesDir := filepath.Join(runDir, "frames")
	summaryDir := filepath.Join(runDir, "summary")

	// output from an earlier run of the same video would mix with this one
	for _, dir := range []string{framesDir, summaryDir} {
		if err := os.RemoveAll(dir); err != nil {
			return nil, err
		}
	}

	// Stage 2: sample
	if _, err := p.sampler.SampleFrames(ctx, input, framesDir, ffmpeg.SampleOptions{
		Interval: p.interval(opts),
		Pattern:  "frame_%04d" + p.config.Sampling.Extension,
	}); err != nil {
		return nil, fmt.Errorf("failed to sample frames: %w", err)
	}

	// Stage 3: detect
	candidates, n, err := p.Detect(ctx, framesDir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect keyframes: %w", err)
	}
	result.Frames = n
	result.Candidates = candidates

	// Stage 4: describe
	if opts.Batch == "" {
		opts.Batch = result.Name
	}
	store, err := p.Extract(ctx, candidates, opts)
	if err != nil {
		return nil, err
	}

	// Stage 5: cluster
	clusters, err := p.Cluster(ctx, candidates, store, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to cluster descriptors: %w", err)
	}
	result.Clusters = clusters

	// Stage 6: assemble
	if opts.Output == "" {
		opts.Output = filepath.Join(runDir, result.Name+"_summary.mp4")
	}
	out, err := p.Assemble(ctx, clusters.Representatives, summaryDir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble summary: %w", err)
	}
	result.Output = out
	result.FinishedAt = time.Now()

	log.Info().
		Int("frames", result.Frames).
		Int("candidates", len(candidates)).
		Int("representatives", len(clusters.Representatives)).
		Str("output", out.Video).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
		Msg("summarisation pipeline complete")

	return result, nil
}
