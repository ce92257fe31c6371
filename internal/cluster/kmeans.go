package cluster

import (
	"context"
	"errors"
	"math"
	"math/rand"
)

// Options controls a k-means run
type Options struct {
	Seed          int64
	MaxIterations int
	// Tolerance is relative to the mean per-dimension variance of the data.
	Tolerance float64
	// Restarts is the number of independent k-means++ initialisations.
	Restarts int
}

func DefaultOptions() Options {
	return Options{
		Seed:          42,
		MaxIterations: 300,
		Tolerance:     1e-4,
		Restarts:      10,
	}
}

// KMeansResult is the best of all restarts
type KMeansResult struct {
	Labels     []int
	Centroids  [][]float64
	Inertia    float64
	Iterations int
}

// KMeans partitions points into k groups by Euclidean distance. The
// random source is seeded from opts.Seed so equal inputs give equal
// results. All points must share one dimensionality and 1 <= k <= len(points).
func KMeans(ctx context.Context, points [][]float64, k int, opts Options) (*KMeansResult, error) {
	if len(points) == 0 {
		return nil, errors.New("kmeans: no points")
	}
	if k < 1 || k > len(points) {
		return nil, errors.New("kmeans: k must be in [1, len(points)]")
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 1
	}
	if opts.Restarts < 1 {
		opts.Restarts = 1
	}

	tol := opts.Tolerance * meanVariance(points)
	rng := rand.New(rand.NewSource(opts.Seed))

	var best *KMeansResult
	for run := 0; run < opts.Restarts; run++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := lloyd(ctx, points, seedCentroids(points, k, rng), opts.MaxIterations, tol)
		if err != nil {
			return nil, err
		}
		if best == nil || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

// seedCentroids picks k initial centroids with k-means++
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	m := len(points)
	chosen := make([]bool, m)
	centroids := make([][]float64, 0, k)

	first := rng.Intn(m)
	chosen[first] = true
	centroids = append(centroids, clone(points[first]))

	dist := make([]float64, m)
	for i, p := range points {
		dist[i] = sqDist(p, centroids[0])
	}

	for len(centroids) < k {
		var total float64
		for _, d := range dist {
			total += d
		}

		next := -1
		if total > 0 {
			r := rng.Float64() * total
			var cum float64
			for i, d := range dist {
				if d == 0 {
					continue
				}
				cum += d
				next = i
				if cum > r {
					break
				}
			}
		} else {
			// every remaining point coincides with a centroid
			for i := range points {
				if !chosen[i] {
					next = i
					break
				}
			}
		}

		chosen[next] = true
		c := clone(points[next])
		centroids = append(centroids, c)
		for i, p := range points {
			if d := sqDist(p, c); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centroids
}

func lloyd(ctx context.Context, points, centroids [][]float64, maxIter int, tol float64) (*KMeansResult, error) {
	k := len(centroids)
	dim := len(points[0])
	labels := make([]int, len(points))
	iterations := 0

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterations++

		assign(points, centroids, labels)

		sums := make([][]float64, k)
		counts := make([]int, k)
		for j := range sums {
			sums[j] = make([]float64, dim)
		}
		for i, p := range points {
			l := labels[i]
			counts[l]++
			for d, v := range p {
				sums[l][d] += v
			}
		}

		var shift float64
		for j := range centroids {
			// empty clusters keep their previous centroid
			if counts[j] == 0 {
				continue
			}
			for d := range sums[j] {
				sums[j][d] /= float64(counts[j])
			}
			shift += sqDist(centroids[j], sums[j])
			centroids[j] = sums[j]
		}

		if shift <= tol {
			break
		}
	}

	inertia := assign(points, centroids, labels)
	return &KMeansResult{
		Labels:     labels,
		Centroids:  centroids,
		Inertia:    inertia,
		Iterations: iterations,
	}, nil
}

// assign labels each point with its nearest centroid, lowest index on ties,
// and returns the summed squared distance.
func assign(points, centroids [][]float64, labels []int) float64 {
	var inertia float64
	for i, p := range points {
		best, bestDist := 0, math.Inf(1)
		for j, c := range centroids {
			if d := sqDist(p, c); d < bestDist {
				best, bestDist = j, d
			}
		}
		labels[i] = best
		inertia += bestDist
	}
	return inertia
}

func meanVariance(points [][]float64) float64 {
	m := float64(len(points))
	dim := len(points[0])
	var total float64
	for d := 0; d < dim; d++ {
		var sum, sq float64
		for _, p := range points {
			sum += p[d]
			sq += p[d] * p[d]
		}
		mean := sum / m
		total += math.Max(0, sq/m-mean*mean)
	}
	return total / float64(dim)
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
