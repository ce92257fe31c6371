package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchName(t *testing.T) {
	assert.Equal(t, "holiday", batchName(filepath.Join("work", "holiday", "frames")))
	assert.Equal(t, "stills", batchName(filepath.Join("tmp", "stills")))
}

func TestProgressBarAcceptsUpdates(t *testing.T) {
	progress := newProgressBar("test")
	for i := 1; i <= 3; i++ {
		progress(i, 3)
	}
}

func TestRunOptionsSeedOnlyWhenSet(t *testing.T) {
	cmd := clusterCmd
	opts := runOptions(cmd)
	assert.Nil(t, opts.Seed)

	assert.NoError(t, cmd.Flags().Set("seed", "9"))
	opts = runOptions(cmd)
	if assert.NotNil(t, opts.Seed) {
		assert.Equal(t, int64(9), *opts.Seed)
	}
}
