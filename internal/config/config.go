package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir     string `yaml:"work_dir" env:"FRAMECULL_WORK_DIR"`
	Concurrency int    `yaml:"concurrency" env:"FRAMECULL_CONCURRENCY"`

	Sampling   SamplingConfig   `yaml:"sampling"`
	Keyframe   KeyframeConfig   `yaml:"keyframe"`
	Descriptor DescriptorConfig `yaml:"descriptor"`
	Cluster    ClusterConfig    `yaml:"cluster"`
	Summary    SummaryConfig    `yaml:"summary"`
	FFmpeg     FFmpegConfig     `yaml:"ffmpeg"`
	Fetch      FetchConfig      `yaml:"fetch"`
}

type SamplingConfig struct {
	// IntervalSeconds is the gap between two sampled frames.
	IntervalSeconds int    `yaml:"interval_seconds" env:"FRAMECULL_SAMPLE_INTERVAL"`
	Extension       string `yaml:"extension"`
}

type KeyframeConfig struct {
	Threshold float64 `yaml:"threshold" env:"FRAMECULL_THRESHOLD"`
}

type DescriptorConfig struct {
	ModelPath   string  `yaml:"model_path" env:"FRAMECULL_MODEL_PATH"`
	UseModel    bool    `yaml:"use_model" env:"FRAMECULL_USE_MODEL"`
	LibraryPath string  `yaml:"onnx_library_path" env:"ONNXRUNTIME_LIB"`
	InputName   string  `yaml:"input_name"`
	OutputName  string  `yaml:"output_name"`
	InputSize   int     `yaml:"input_size"`
	OutputShape []int64 `yaml:"output_shape"`

	// Store selects where descriptor batches are persisted: "file" or "postgres".
	Store       string `yaml:"store" env:"FRAMECULL_STORE"`
	StoreDir    string `yaml:"store_dir"`
	DatabaseURL string `yaml:"database_url" env:"FRAMECULL_DATABASE_URL"`
}

type ClusterConfig struct {
	K             int     `yaml:"k" env:"FRAMECULL_CLUSTERS"`
	Seed          int64   `yaml:"seed" env:"FRAMECULL_SEED"`
	MaxIterations int     `yaml:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance"`
	Restarts      int     `yaml:"restarts"`
}

type SummaryConfig struct {
	FPS    int    `yaml:"fps" env:"FRAMECULL_FPS"`
	Order  string `yaml:"order"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path" env:"FFMPEG_PATH"`
	ProbePath  string `yaml:"probe_path" env:"FFPROBE_PATH"`
	Threads    int    `yaml:"threads"`
	Preset     string `yaml:"preset"`
	CRF        int    `yaml:"crf"`
}

type FetchConfig struct {
	BinaryPath  string `yaml:"binary_path" env:"YTDLP_PATH"`
	CookiesFile string `yaml:"cookies_file" env:"FRAMECULL_COOKIES"`
	OutputDir   string `yaml:"output_dir"`
}

// Load reads configuration from file or returns defaults.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks value ranges that would otherwise surface deep inside the pipeline
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Sampling.IntervalSeconds < 1 {
		return fmt.Errorf("sampling.interval_seconds must be at least 1, got %d", c.Sampling.IntervalSeconds)
	}
	if !(c.Keyframe.Threshold > 0 && c.Keyframe.Threshold < 1) {
		return fmt.Errorf("keyframe.threshold must be in (0,1), got %v", c.Keyframe.Threshold)
	}
	if c.Cluster.K < 1 {
		return fmt.Errorf("cluster.k must be at least 1, got %d", c.Cluster.K)
	}
	if c.Cluster.MaxIterations < 1 {
		return fmt.Errorf("cluster.max_iterations must be at least 1, got %d", c.Cluster.MaxIterations)
	}
	if c.Cluster.Restarts < 1 {
		return fmt.Errorf("cluster.restarts must be at least 1, got %d", c.Cluster.Restarts)
	}
	if c.Summary.FPS < 1 {
		return fmt.Errorf("summary.fps must be at least 1, got %d", c.Summary.FPS)
	}
	switch c.Summary.Order {
	case "chronological", "cluster":
	default:
		return fmt.Errorf("summary.order must be chronological or cluster, got %q", c.Summary.Order)
	}
	switch c.Descriptor.Store {
	case "", "file", "postgres":
	default:
		return fmt.Errorf("descriptor.store must be file or postgres, got %q", c.Descriptor.Store)
	}
	if c.Descriptor.Store == "postgres" && c.Descriptor.DatabaseURL == "" {
		return fmt.Errorf("descriptor.database_url is required for the postgres store")
	}
	return nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		WorkDir:     "./work",
		Concurrency: 4,
		Sampling: SamplingConfig{
			IntervalSeconds: 1,
			Extension:       ".jpg",
		},
		Keyframe: KeyframeConfig{
			Threshold: 0.5,
		},
		Descriptor: DescriptorConfig{
			ModelPath:   "./models/resnet50.onnx",
			UseModel:    true,
			InputName:   "input",
			OutputName:  "output",
			InputSize:   224,
			OutputShape: []int64{1, 2048, 1, 1},
			Store:       "file",
			StoreDir:    "./work/descriptors",
		},
		Cluster: ClusterConfig{
			K:             5,
			Seed:          42,
			MaxIterations: 300,
			Tolerance:     1e-4,
			Restarts:      10,
		},
		Summary: SummaryConfig{
			FPS:   1,
			Order: "chronological",
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    0,
			Preset:     "medium",
			CRF:        23,
		},
		Fetch: FetchConfig{
			BinaryPath: "yt-dlp",
			OutputDir:  "./work/input_videos",
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./framecull.yaml",
		"./framecull.yml",
		filepath.Join(os.Getenv("HOME"), ".framecull", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
