// Package cluster implements the small streaming clusterer spec 8
// property 10 names but does not assign a package to: an idempotent
// weighted clusterer. It is standalone: no other package of this module
// calls it, and extrapolateFromShingle does not use it.
//
// A single Run groups weighted points around K centers by repeating
// assign-then-recompute passes (Lloyd's algorithm) until no point changes
// cluster, or for at most 100 passes, seeded from a caller-supplied set of
// previous centers when available. Once the assignment is stable each
// center is the exact weighted mean of the points assigned to it, so
// feeding Run's own output back in as previousClusters reproduces the
// same assignment and therefore the same centers, weights, and extent
// measures -- the idempotence property 10 requires.
package cluster

import (
	"math"

	"github.com/hed1ad/rcforest/pkg/rcf/errs"
)

// Cluster is one weighted center produced by Run.
type Cluster struct {
	Center        []float64
	Weight        float64
	ExtentMeasure float64 // weighted average distance from Center to its members
}

// Config configures a clustering Run.
type Config struct {
	K          int
	Dimensions int
}

// Run groups points (with matching weights) into at most cfg.K clusters.
// previous, when non-empty, seeds the initial centers (truncated or
// extended with points as needed); otherwise the first min(K,len(points))
// points seed the centers.
func Run(cfg Config, points [][]float64, weights []float64, previous []Cluster) ([]Cluster, error) {
	if cfg.K <= 0 || cfg.Dimensions <= 0 {
		return nil, errs.New(errs.InvalidConfiguration, "cluster.Run", "K and dimensions must be positive")
	}
	if len(points) != len(weights) {
		return nil, errs.New(errs.DimensionMismatch, "cluster.Run", "points and weights must have equal length")
	}
	for _, p := range points {
		if len(p) != cfg.Dimensions {
			return nil, errs.New(errs.DimensionMismatch, "cluster.Run", "point length must equal configured dimensions")
		}
	}
	if len(points) == 0 {
		return nil, nil
	}

	centers := seedCenters(cfg, points, previous)
	k := len(centers)

	assignment := make([]int, len(points))
	for i, p := range points {
		assignment[i] = nearest(centers, p)
	}

	const maxPasses = 100
	out := make([]Cluster, k)
	sums := make([][]float64, k)
	weightSums := make([]float64, k)
	for pass := 0; ; pass++ {
		for c := range out {
			sums[c] = make([]float64, cfg.Dimensions)
			weightSums[c] = 0
		}
		for i, p := range points {
			c := assignment[i]
			weightSums[c] += weights[i]
			for d, x := range p {
				sums[c][d] += weights[i] * x
			}
		}
		for c := range out {
			out[c].Weight = weightSums[c]
			out[c].Center = make([]float64, cfg.Dimensions)
			if weightSums[c] > 0 {
				for d := range out[c].Center {
					out[c].Center[d] = sums[c][d] / weightSums[c]
				}
			} else {
				copy(out[c].Center, centers[c])
			}
		}
		if pass == maxPasses-1 {
			break
		}
		// reassign against the recomputed centers; stop once stable
		for c := range out {
			centers[c] = out[c].Center
		}
		changed := false
		for i, p := range points {
			if c := nearest(centers, p); c != assignment[i] {
				assignment[i], changed = c, true
			}
		}
		if !changed {
			break
		}
	}

	extentSums := make([]float64, k)
	for i, p := range points {
		c := assignment[i]
		extentSums[c] += weights[i] * euclidean(p, out[c].Center)
	}
	for c := range out {
		if weightSums[c] > 0 {
			out[c].ExtentMeasure = extentSums[c] / weightSums[c]
		}
	}
	return out, nil
}

// seedCenters returns k initial centers: previous's centers if supplied
// (truncated/padded against the point set), else the first
// min(K,len(points)) points, duplicates included.
func seedCenters(cfg Config, points [][]float64, previous []Cluster) [][]float64 {
	k := cfg.K
	if k > len(points) {
		k = len(points)
	}
	centers := make([][]float64, 0, k)
	for i := 0; i < k && i < len(previous); i++ {
		centers = append(centers, append([]float64(nil), previous[i].Center...))
	}
	for i := len(centers); i < k; i++ {
		centers = append(centers, append([]float64(nil), points[i]...))
	}
	return centers
}

func nearest(centers [][]float64, p []float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centers {
		d := euclidean(p, c)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
