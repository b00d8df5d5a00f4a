package tree

import (
	"math"

	"github.com/hed1ad/rcforest/pkg/rcf/errs"
	"github.com/hed1ad/rcforest/pkg/rcf/node"
	"github.com/hed1ad/rcforest/pkg/rcf/types"
)

// averagePathLength is the expected path length of an unsuccessful
// search in a binary search tree over n points (the same harmonic-number
// approximation isolation-forest scoring uses).
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(harmonic(n-1)) - (2 * (n - 1) / n)
}

func harmonic(n float64) float64 {
	return math.Log(n) + 0.5772156649015329 // Euler-Mascheroni constant
}

// expectedInverseDepth is the per-tree scoring functional f(depth,mass)
// of spec 4.5: it decays from 1 toward 0 as depth grows, normalized by
// the tree's configured sample size so scores are comparable across
// trees of the same forest.
func expectedInverseDepth(depth, mass, sampleSize int) float64 {
	norm := averagePathLength(float64(sampleSize))
	if norm == 0 {
		return 0
	}
	return math.Pow(2, -(float64(depth)+averagePathLength(float64(mass)))/norm)
}

// walkResult captures where a read-only top-down walk for v terminated:
// either it fell outside some ancestor's bounding box (boxViolated) or
// it reached a leaf without ever escaping the box chain.
type walkResult struct {
	depth       int
	mass        int
	boxViolated bool
	box         *node.BoundingBox
	leafVec     []float64
}

// walk descends from the root following v's existing routing, stopping
// as soon as v would not have been contained by the subtree's bounding
// box (spec 4.5: scoring treats this as the point's separation depth),
// or upon reaching a leaf.
func (t *Tree) walk(v []float64) (walkResult, error) {
	if t.root == node.Null {
		return walkResult{}, errs.New(errs.NotReady, "tree.walk", "tree is empty")
	}
	n := t.root
	depth := 0
	for {
		if t.nodes.IsLeaf(n) {
			leafVec, err := t.points.Get(t.nodes.PointIndex(n))
			if err != nil {
				return walkResult{}, err
			}
			return walkResult{depth: depth, mass: t.nodes.Mass(n), leafVec: leafVec}, nil
		}
		box, err := t.box(n)
		if err != nil {
			return walkResult{}, err
		}
		if !box.Contains(v) {
			// v is separated here and stands alone: mass 1, so no
			// path-length term for the subtree it escaped
			return walkResult{depth: depth, mass: 1, boxViolated: true, box: box}, nil
		}
		if v[t.nodes.CutDimension(n)] <= t.nodes.CutValue(n) {
			n = t.nodes.Left(n)
		} else {
			n = t.nodes.Right(n)
		}
		depth++
	}
}

// AnomalyScore computes this tree's contribution to the ensemble
// anomaly score for v (spec 4.5, 4.6).
func (t *Tree) AnomalyScore(v []float64) (float64, error) {
	r, err := t.walk(v)
	if err != nil {
		return 0, err
	}
	return expectedInverseDepth(r.depth, r.mass, t.cfg.SampleSize), nil
}

// Attribution returns the per-dimension high/low decomposition of this
// tree's score contribution for v, summing exactly to AnomalyScore(v)
// (spec 4.5, 4.6: DiVector attribution).
func (t *Tree) Attribution(v []float64) (*types.DiVector, error) {
	r, err := t.walk(v)
	if err != nil {
		return nil, err
	}
	score := expectedInverseDepth(r.depth, r.mass, t.cfg.SampleSize)
	divec := types.NewDiVector(len(v))
	if r.boxViolated {
		distributeByBoxViolation(divec, v, r.box, score)
	} else {
		distributeByDelta(divec, v, r.leafVec, score)
	}
	return divec, nil
}

// SimpleDensity returns raw, unscaled per-dimension gaps between v and
// the bounding region of the nearest subtree it routes into (spec 4.5:
// "estimates per-side distances to the nearest neighbor's bounding
// region"), independent of the scoring functional.
func (t *Tree) SimpleDensity(v []float64) (*types.DiVector, error) {
	r, err := t.walk(v)
	if err != nil {
		return nil, err
	}
	divec := types.NewDiVector(len(v))
	if r.boxViolated {
		for d := range v {
			if v[d] > r.box.Max[d] {
				divec.High[d] = v[d] - r.box.Max[d]
			} else if v[d] < r.box.Min[d] {
				divec.Low[d] = r.box.Min[d] - v[d]
			}
		}
		return divec, nil
	}
	for d := range v {
		delta := v[d] - r.leafVec[d]
		if delta >= 0 {
			divec.High[d] = delta
		} else {
			divec.Low[d] = -delta
		}
	}
	return divec, nil
}

func distributeByBoxViolation(divec *types.DiVector, v []float64, box *node.BoundingBox, score float64) {
	violHigh := make([]float64, len(v))
	violLow := make([]float64, len(v))
	var sum float64
	for d := range v {
		if v[d] > box.Max[d] {
			violHigh[d] = v[d] - box.Max[d]
			sum += violHigh[d]
		} else if v[d] < box.Min[d] {
			violLow[d] = box.Min[d] - v[d]
			sum += violLow[d]
		}
	}
	if sum <= 0 {
		divec.High[0] += score / 2
		divec.Low[0] += score / 2
		return
	}
	for d := range v {
		divec.High[d] += score * violHigh[d] / sum
		divec.Low[d] += score * violLow[d] / sum
	}
}

func distributeByDelta(divec *types.DiVector, v, leafVec []float64, score float64) {
	deltaHigh := make([]float64, len(v))
	deltaLow := make([]float64, len(v))
	var sum float64
	for d := range v {
		delta := v[d] - leafVec[d]
		if delta >= 0 {
			deltaHigh[d] = delta
		} else {
			deltaLow[d] = -delta
		}
		sum += deltaHigh[d] + deltaLow[d]
	}
	if sum <= 0 {
		n := float64(len(v))
		for d := range v {
			divec.High[d] += score / (2 * n)
			divec.Low[d] += score / (2 * n)
		}
		return
	}
	for d := range v {
		divec.High[d] += score * deltaHigh[d] / sum
		divec.Low[d] += score * deltaLow[d] / sum
	}
}
