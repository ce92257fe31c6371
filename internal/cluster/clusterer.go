// Package cluster groups descriptor vectors into themes and picks one
// representative candidate per theme.
package cluster

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/framecull/internal/descriptor"
	"github.com/kikiluvv/framecull/internal/keyframe"
)

// InvalidDescriptorError is raised when a batch mixes dimensionalities
type InvalidDescriptorError = descriptor.InvalidDescriptorError

// Config configures a Clusterer
type Config struct {
	K int
	Options
}

func DefaultConfig() Config {
	return Config{
		K:       5,
		Options: DefaultOptions(),
	}
}

// Item pairs a candidate with its descriptor
type Item struct {
	Candidate keyframe.Candidate
	Vector    []float32
}

// Representative is the candidate chosen for one cluster
type Representative struct {
	Cluster   int
	Candidate keyframe.Candidate
	// Members is the cluster size.
	Members int
}

// Result of one clustering run
type Result struct {
	// Labels holds the cluster id of each input item, in input order.
	Labels []int
	// Representatives are ordered by cluster id; empty clusters are skipped.
	Representatives []Representative
	EffectiveK      int
}

// Clusterer runs seeded k-means over descriptor batches
type Clusterer struct {
	logger zerolog.Logger
	config Config
}

func NewClusterer(logger zerolog.Logger, cfg Config) (*Clusterer, error) {
	if cfg.K < 1 {
		return nil, fmt.Errorf("cluster count must be at least 1, got %d", cfg.K)
	}
	if cfg.MaxIterations < 1 {
		return nil, fmt.Errorf("max iterations must be at least 1, got %d", cfg.MaxIterations)
	}
	if cfg.Restarts < 1 {
		return nil, fmt.Errorf("restarts must be at least 1, got %d", cfg.Restarts)
	}
	if cfg.Tolerance < 0 {
		return nil, fmt.Errorf("tolerance must not be negative, got %v", cfg.Tolerance)
	}
	return &Clusterer{
		logger: logger.With().Str("component", "clusterer").Logger(),
		config: cfg,
	}, nil
}

// Items joins candidates with their stored descriptors, keeping candidate order
func Items(candidates []keyframe.Candidate, store *descriptor.Store) ([]Item, error) {
	items := make([]Item, 0, len(candidates))
	for _, c := range candidates {
		vec, err := store.Get(c.ID())
		if err != nil {
			return nil, err
		}
		items = append(items, Item{Candidate: c, Vector: vec})
	}
	return items, nil
}

// ItemsFromStore rebuilds items from a persisted store alone. Candidates
// carry only their identifier and index; their frame path is the identifier
// when it names a file.
func ItemsFromStore(store *descriptor.Store) []Item {
	entries := store.Entries()
	items := make([]Item, len(entries))
	for i, e := range entries {
		items[i] = Item{Vector: e.Vector}
		items[i].Candidate.Frame.Index = e.Index
		items[i].Candidate.Frame.Path = e.ID
	}
	return items
}

// Select clusters items and returns one representative per non-empty
// cluster. When K exceeds the number of items every item becomes its own
// cluster.
func (c *Clusterer) Select(ctx context.Context, items []Item) (*Result, error) {
	m := len(items)
	if m == 0 {
		c.logger.Info().Msg("no descriptors to cluster")
		return &Result{Labels: []int{}, Representatives: []Representative{}}, nil
	}

	dim := len(items[0].Vector)
	if dim == 0 {
		return nil, &InvalidDescriptorError{ID: items[0].Candidate.ID()}
	}
	for _, it := range items[1:] {
		if len(it.Vector) != dim {
			return nil, &InvalidDescriptorError{ID: it.Candidate.ID(), Want: dim, Got: len(it.Vector)}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k := c.config.K
	if k > m {
		c.logger.Warn().
			Int("requested", k).
			Int("descriptors", m).
			Msg("more clusters requested than descriptors, clamping")
		k = m
	}

	var labels []int
	if k == m {
		labels = make([]int, m)
		for i := range labels {
			labels[i] = i
		}
	} else {
		points := make([][]float64, m)
		for i, it := range items {
			p := make([]float64, dim)
			for d, v := range it.Vector {
				p[d] = float64(v)
			}
			points[i] = p
		}

		res, err := KMeans(ctx, points, k, c.config.Options)
		if err != nil {
			return nil, fmt.Errorf("kmeans: %w", err)
		}
		labels = res.Labels

		c.logger.Debug().
			Float64("inertia", res.Inertia).
			Int("iterations", res.Iterations).
			Msg("kmeans converged")
	}

	reps := representatives(items, labels, k)

	c.logger.Info().
		Int("descriptors", m).
		Int("requested_k", c.config.K).
		Int("effective_k", k).
		Int("representatives", len(reps)).
		Msg("clustering complete")

	return &Result{
		Labels:          labels,
		Representatives: reps,
		EffectiveK:      k,
	}, nil
}

// representatives scans items in input order so the first member seen for
// each label wins.
func representatives(items []Item, labels []int, k int) []Representative {
	first := make([]int, k)
	for i := range first {
		first[i] = -1
	}
	counts := make([]int, k)

	for i, l := range labels {
		if first[l] < 0 {
			first[l] = i
		}
		counts[l]++
	}

	reps := make([]Representative, 0, k)
	for id := 0; id < k; id++ {
		if first[id] < 0 {
			continue
		}
		reps = append(reps, Representative{
			Cluster:   id,
			Candidate: items[first[id]].Candidate,
			Members:   counts[id],
		})
	}
	return reps
}
