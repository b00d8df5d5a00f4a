// Package tree implements the binary random-cut tree over sampled points
// described in spec 4.5: insert/delete/score/attribute/impute/
// extrapolate, built on the point and node arenas.
package tree

import (
	"math/rand"

	"github.com/hed1ad/rcforest/pkg/rcf/errs"
	"github.com/hed1ad/rcforest/pkg/rcf/node"
	"github.com/hed1ad/rcforest/pkg/rcf/point"
)

// Config configures a Tree.
type Config struct {
	Dimensions          int
	SampleSize          int // expected steady-state leaf count, used to normalize scores
	BoundingBoxFraction float64
	Seed                int64
}

// Tree is the binary tree of spec 4.5: a full binary tree of exactly
// sampleSize leaves and sampleSize-1 internal nodes at steady state.
type Tree struct {
	cfg    Config
	points *point.PointStore
	nodes  *node.NodeStore
	boxes  *node.BoundingBoxCache
	rng    *rand.Rand

	root   int
	leafOf map[int]int // pointIndex -> leaf nodeIndex
}

// New allocates an empty Tree sharing points with the rest of the
// forest. nodeCapacity should be at least 2*sampleSize-1 to hold a full
// tree.
func New(cfg Config, points *point.PointStore, nodeCapacity int) (*Tree, error) {
	if cfg.Dimensions <= 0 || cfg.SampleSize <= 0 {
		return nil, errs.New(errs.InvalidConfiguration, "tree.New", "dimensions and sampleSize must be positive")
	}
	return &Tree{
		cfg:    cfg,
		points: points,
		nodes:  node.NewNodeStore(nodeCapacity),
		boxes:  node.NewBoundingBoxCache(nodeCapacity, cfg.BoundingBoxFraction),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		root:   node.Null,
		leafOf: make(map[int]int),
	}, nil
}

// Size returns the number of distinct pointIndices currently tracked by
// the tree (leaves with coalesced duplicates count once per pointIndex,
// matching the number of live entries in leafOf).
func (t *Tree) Size() int { return len(t.leafOf) }

// MassOfRoot returns the total sample mass represented by the tree
// (should equal Σ leaf masses == sampleSize at steady state, spec 8
// property 5).
func (t *Tree) MassOfRoot() int {
	if t.root == node.Null {
		return 0
	}
	return t.nodes.Mass(t.root)
}

// IsEmpty reports whether the tree currently holds no points.
func (t *Tree) IsEmpty() bool { return t.root == node.Null }

// SetBoundingBoxFraction adjusts the bounding-box cache's enablement
// fraction mid-stream; scoring results are unaffected (spec 4.3).
func (t *Tree) SetBoundingBoxFraction(f float64) {
	t.cfg.BoundingBoxFraction = f
	t.boxes.SetFraction(t.nodes.Capacity(), f)
}

// box returns the (possibly cached) bounding box for nodeIndex,
// recomputing bottom-up on a cache miss.
func (t *Tree) box(nodeIndex int) (*node.BoundingBox, error) {
	if b, ok := t.boxes.Get(nodeIndex); ok {
		return b, nil
	}
	if t.nodes.IsLeaf(nodeIndex) {
		v, err := t.points.Get(t.nodes.PointIndex(nodeIndex))
		if err != nil {
			return nil, err
		}
		b := node.NewBoundingBox(v)
		t.boxes.Set(nodeIndex, t.nodes.Depth(nodeIndex), b)
		return b, nil
	}
	left, err := t.box(t.nodes.Left(nodeIndex))
	if err != nil {
		return nil, err
	}
	right, err := t.box(t.nodes.Right(nodeIndex))
	if err != nil {
		return nil, err
	}
	merged := node.Merge(left, right)
	t.boxes.Set(nodeIndex, t.nodes.Depth(nodeIndex), merged)
	return merged, nil
}

// randomCut draws a cut dimension proportional to the box's side length
// on that dimension (uniform among positive-range dimensions) and a cut
// value uniform within that side (spec 4.5).
func randomCut(rng *rand.Rand, box *node.BoundingBox) (int, float64) {
	rangeSum := box.RangeSum()
	if rangeSum <= 0 {
		return 0, box.Min[0]
	}
	r := rng.Float64() * rangeSum
	var cum float64
	for d := range box.Min {
		side := box.Max[d] - box.Min[d]
		if side <= 0 {
			continue
		}
		cum += side
		if r <= cum {
			return d, box.Min[d] + rng.Float64()*side
		}
	}
	for d := len(box.Min) - 1; d >= 0; d-- {
		if box.Max[d] > box.Min[d] {
			return d, box.Min[d] + rng.Float64()*(box.Max[d]-box.Min[d])
		}
	}
	return 0, box.Min[0]
}

// Insert adds pointIndex (already resident in the shared PointStore) to
// the tree, walking from the root and creating a new internal node when
// the point's bounding box is not already covered by the subtree it
// descends into (spec 4.5, the "robust random cut" insertion).
func (t *Tree) Insert(pointIndex int) error {
	v, err := t.points.Get(pointIndex)
	if err != nil {
		return err
	}
	if t.root == node.Null {
		leaf, err := t.nodes.AddLeaf(node.Null, pointIndex, 1, 0)
		if err != nil {
			return err
		}
		t.root = leaf
		t.leafOf[pointIndex] = leaf
		return nil
	}
	newRoot, err := t.insertRec(t.root, pointIndex, v, 0)
	if err != nil {
		return err
	}
	t.root = newRoot
	t.nodes.SetParent(t.root, node.Null)
	return nil
}

func (t *Tree) insertRec(nodeIndex, pointIndex int, v []float64, depth int) (int, error) {
	if t.nodes.IsLeaf(nodeIndex) {
		existingPoint := t.nodes.PointIndex(nodeIndex)
		eq, err := t.points.PointEquals(existingPoint, v)
		if err != nil {
			return node.Null, err
		}
		if eq {
			t.nodes.SetMass(nodeIndex, t.nodes.Mass(nodeIndex)+1)
			t.leafOf[pointIndex] = nodeIndex
			return nodeIndex, nil
		}
		existingVec, err := t.points.Get(existingPoint)
		if err != nil {
			return node.Null, err
		}
		box := node.NewBoundingBox(existingVec)
		box.ExtendWith(v)
		cutDim, cutValue := randomCut(t.rng, box)

		newLeaf, err := t.nodes.AddLeaf(node.Null, pointIndex, 1, depth+1)
		if err != nil {
			return node.Null, err
		}
		var leftIdx, rightIdx int
		if existingVec[cutDim] <= cutValue {
			leftIdx, rightIdx = nodeIndex, newLeaf
		} else {
			leftIdx, rightIdx = newLeaf, nodeIndex
		}
		newInternal, err := t.nodes.AddInternal(node.Null, leftIdx, rightIdx, cutDim, cutValue, 2, depth)
		if err != nil {
			return node.Null, err
		}
		t.nodes.SetParent(leftIdx, newInternal)
		t.nodes.SetParent(rightIdx, newInternal)
		t.nodes.SetDepth(nodeIndex, depth+1)
		t.leafOf[pointIndex] = newLeaf
		return newInternal, nil
	}

	box, err := t.box(nodeIndex)
	if err != nil {
		return node.Null, err
	}
	merged := box.Copy()
	merged.ExtendWith(v)
	cutDim, cutValue := randomCut(t.rng, merged)

	if cutValue < box.Min[cutDim] || cutValue > box.Max[cutDim] {
		newLeaf, err := t.nodes.AddLeaf(node.Null, pointIndex, 1, depth)
		if err != nil {
			return node.Null, err
		}
		var leftIdx, rightIdx int
		if v[cutDim] <= cutValue {
			leftIdx, rightIdx = newLeaf, nodeIndex
		} else {
			leftIdx, rightIdx = nodeIndex, newLeaf
		}
		newInternal, err := t.nodes.AddInternal(node.Null, leftIdx, rightIdx, cutDim, cutValue, t.nodes.Mass(nodeIndex)+1, depth)
		if err != nil {
			return node.Null, err
		}
		t.nodes.SetParent(leftIdx, newInternal)
		t.nodes.SetParent(rightIdx, newInternal)
		t.leafOf[pointIndex] = newLeaf
		return newInternal, nil
	}

	var childIdx int
	if v[t.nodes.CutDimension(nodeIndex)] <= t.nodes.CutValue(nodeIndex) {
		childIdx = t.nodes.Left(nodeIndex)
	} else {
		childIdx = t.nodes.Right(nodeIndex)
	}
	newChild, err := t.insertRec(childIdx, pointIndex, v, depth+1)
	if err != nil {
		return node.Null, err
	}
	if childIdx == t.nodes.Left(nodeIndex) {
		t.nodes.SetLeft(nodeIndex, newChild)
	} else {
		t.nodes.SetRight(nodeIndex, newChild)
	}
	t.nodes.SetParent(newChild, nodeIndex)
	t.nodes.SetMass(nodeIndex, t.nodes.Mass(nodeIndex)+1)
	t.boxes.Invalidate(nodeIndex)
	return nodeIndex, nil
}

// Delete removes pointIndex from the tree: the leaf's mass is
// decremented, and when it reaches zero the leaf is detached and its
// parent collapsed into the sibling (spec 4.5).
func (t *Tree) Delete(pointIndex int) error {
	leafIdx, ok := t.leafOf[pointIndex]
	if !ok {
		return errs.New(errs.InvalidIndex, "tree.Delete", "pointIndex not present in this tree")
	}
	delete(t.leafOf, pointIndex)

	mass := t.nodes.Mass(leafIdx)
	if mass > 1 {
		t.nodes.SetMass(leafIdx, mass-1)
		t.decrementAncestorMass(leafIdx)
		return nil
	}

	parent := t.nodes.Parent(leafIdx)
	if parent == node.Null {
		t.root = node.Null
		t.boxes.Invalidate(leafIdx)
		return t.nodes.RemoveNode(leafIdx)
	}

	sibling := t.nodes.Sibling(leafIdx)
	grandparent := t.nodes.Parent(parent)
	t.nodes.SetParent(sibling, grandparent)
	if grandparent == node.Null {
		t.root = sibling
	} else {
		if t.nodes.Left(grandparent) == parent {
			t.nodes.SetLeft(grandparent, sibling)
		} else {
			t.nodes.SetRight(grandparent, sibling)
		}
	}
	t.decrementAncestorMass(sibling)
	t.boxes.Invalidate(parent)
	t.boxes.Invalidate(leafIdx)

	if err := t.nodes.RemoveNode(leafIdx); err != nil {
		return err
	}
	return t.nodes.RemoveNode(parent)
}

func (t *Tree) decrementAncestorMass(nodeIndex int) {
	cur := t.nodes.Parent(nodeIndex)
	for cur != node.Null {
		t.nodes.SetMass(cur, t.nodes.Mass(cur)-1)
		t.boxes.Invalidate(cur)
		cur = t.nodes.Parent(cur)
	}
}
