package descriptor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kikiluvv/framecull/internal/keyframe"
)

// ProgressFunc is called after each descriptor completes
type ProgressFunc func(done, total int)

// BatchOptions tunes ExtractBatch
type BatchOptions struct {
	Workers  int
	Logger   zerolog.Logger
	Progress ProgressFunc
}

// ExtractBatch computes one descriptor per candidate and returns them as a
// store in candidate order. Extraction runs on up to opts.Workers goroutines;
// the first failure cancels the rest.
func ExtractBatch(ctx context.Context, ex Extractor, candidates []keyframe.Candidate, opts BatchOptions) (*Store, error) {
	total := len(candidates)
	if total == 0 {
		return NewStore(), nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	vectors := make([][]float32, total)

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range candidates {
		c := candidates[i]
		slot := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			img, err := c.Frame.Decode()
			if err != nil {
				return &UnsupportedImageError{ID: c.ID(), Index: c.Index(), Err: err}
			}

			vec, err := ex.Embed(gctx, img)
			if err != nil {
				if errors.Is(err, ErrUnsupportedImage) {
					return &UnsupportedImageError{ID: c.ID(), Index: c.Index(), Err: err}
				}
				return fmt.Errorf("embed candidate %d (%s): %w", c.Index(), c.ID(), err)
			}
			if len(vec) != ex.Dim() {
				return &InvalidDescriptorError{ID: c.ID(), Want: ex.Dim(), Got: len(vec)}
			}
			vectors[slot] = vec

			mu.Lock()
			done++
			if opts.Progress != nil {
				opts.Progress(done, total)
			}
			mu.Unlock()

			opts.Logger.Debug().
				Int("index", c.Index()).
				Str("id", c.ID()).
				Msg("descriptor extracted")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	store := NewStore()
	for i, c := range candidates {
		if err := store.Put(c.ID(), c.Index(), vectors[i]); err != nil {
			return nil, err
		}
	}

	opts.Logger.Info().
		Int("count", store.Len()).
		Int("dim", store.Dim()).
		Msg("descriptor extraction complete")

	return store, nil
}
