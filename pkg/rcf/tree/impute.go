package tree

import (
	"github.com/hed1ad/rcforest/pkg/rcf/errs"
	"github.com/hed1ad/rcforest/pkg/rcf/node"
)

// ImputeMissingValues fills in v's coordinates at missingIndices by
// routing the known coordinates down to the leaf they are "most
// consistent" with: at cut dimensions that are themselves missing, the
// heavier child (greater mass) is preferred so ties are broken by mass
// (spec 4.5).
func (t *Tree) ImputeMissingValues(v []float64, missingIndices []int) ([]float64, error) {
	if t.root == node.Null {
		return nil, errs.New(errs.NotReady, "tree.ImputeMissingValues", "tree is empty")
	}
	missing := make(map[int]bool, len(missingIndices))
	for _, idx := range missingIndices {
		missing[idx] = true
	}
	n := t.root
	for !t.nodes.IsLeaf(n) {
		cutDim := t.nodes.CutDimension(n)
		if missing[cutDim] {
			if t.nodes.Mass(t.nodes.Left(n)) >= t.nodes.Mass(t.nodes.Right(n)) {
				n = t.nodes.Left(n)
			} else {
				n = t.nodes.Right(n)
			}
			continue
		}
		if v[cutDim] <= t.nodes.CutValue(n) {
			n = t.nodes.Left(n)
		} else {
			n = t.nodes.Right(n)
		}
	}
	leafVec, err := t.points.Get(t.nodes.PointIndex(n))
	if err != nil {
		return nil, err
	}
	out := append([]float64(nil), v...)
	for _, idx := range missingIndices {
		out[idx] = leafVec[idx]
	}
	return out, nil
}

// ExtrapolateFromShingle forecasts horizon additional blockSize-wide
// blocks past the trailing edge of shingledPoint by repeatedly treating
// the new trailing block as missing and imputing it, then sliding the
// window forward (spec 4.5, 4.9).
//
// centrality is accepted here for interface parity with the forest-level
// operation of the same name, but a single tree produces exactly one
// conditional sample per step; the median/mean blend centrality
// interpolates between is only meaningful once many trees' samples are
// available, so Forest.Extrapolate (not this method) is where centrality
// actually takes effect.
func (t *Tree) ExtrapolateFromShingle(shingledPoint []float64, horizon, blockSize int, centrality float64) ([]float64, error) {
	if blockSize <= 0 || horizon <= 0 {
		return nil, errs.New(errs.InvalidConfiguration, "tree.ExtrapolateFromShingle", "horizon and blockSize must be positive")
	}
	if len(shingledPoint)%blockSize != 0 {
		return nil, errs.New(errs.DimensionMismatch, "tree.ExtrapolateFromShingle", "shingle length must be a multiple of blockSize")
	}
	current := append([]float64(nil), shingledPoint...)
	out := make([]float64, 0, horizon*blockSize)
	for h := 0; h < horizon; h++ {
		next := append([]float64(nil), current[blockSize:]...)
		next = append(next, make([]float64, blockSize)...)
		missing := make([]int, blockSize)
		for i := 0; i < blockSize; i++ {
			missing[i] = len(next) - blockSize + i
		}
		filled, err := t.ImputeMissingValues(next, missing)
		if err != nil {
			return nil, err
		}
		out = append(out, filled[len(filled)-blockSize:]...)
		current = filled
	}
	return out, nil
}
