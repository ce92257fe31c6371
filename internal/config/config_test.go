package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framecull.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.5, cfg.Keyframe.Threshold)
	assert.Equal(t, 5, cfg.Cluster.K)
	assert.Equal(t, int64(42), cfg.Cluster.Seed)
	assert.Equal(t, 1, cfg.Summary.FPS)
	assert.Equal(t, "chronological", cfg.Summary.Order)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
keyframe:
  threshold: 0.35
cluster:
  k: 8
summary:
  order: cluster
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.35, cfg.Keyframe.Threshold)
	assert.Equal(t, 8, cfg.Cluster.K)
	assert.Equal(t, "cluster", cfg.Summary.Order)
	// untouched sections keep their defaults
	assert.Equal(t, 300, cfg.Cluster.MaxIterations)
	assert.Equal(t, ".jpg", cfg.Sampling.Extension)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Cluster, cfg.Cluster)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "cluster:\n  k: 3\n")
	t.Setenv("FRAMECULL_CLUSTERS", "7")
	t.Setenv("FRAMECULL_MODEL_PATH", "/opt/models/embed.onnx")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Cluster.K)
	assert.Equal(t, "/opt/models/embed.onnx", cfg.Descriptor.ModelPath)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"threshold too high": "keyframe:\n  threshold: 1.0\n",
		"threshold zero":     "keyframe:\n  threshold: 0\n",
		"threshold nan":      "keyframe:\n  threshold: .nan\n",
		"no restarts":        "cluster:\n  restarts: 0\n",
		"no clusters":        "cluster:\n  k: 0\n",
		"zero fps":           "summary:\n  fps: 0\n",
		"bad order":          "summary:\n  order: random\n",
		"postgres no url":    "descriptor:\n  store: postgres\n",
		"bad yaml":           "cluster: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Cluster.K = 9
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Cluster.K)
}

func TestContextRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.WorkDir = "/tmp/elsewhere"
	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
	assert.Equal(t, "./work", FromContext(context.Background()).WorkDir)
}
