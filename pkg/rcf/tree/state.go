package tree

import (
	"math/rand"

	"github.com/hed1ad/rcforest/pkg/rcf/node"
	"github.com/hed1ad/rcforest/pkg/rcf/point"
)

// State is the pure (toState,fromState) snapshot required by spec 6. It
// does not capture the rng's internal stream position: a restored tree
// draws fresh randomness from cfg.Seed for any future inserts, which
// only matters for trees that are still being grown post-restore, not
// for scoring/attribution/impute/extrapolate against the tree as it was
// snapshotted.
type State struct {
	Config Config
	Nodes  node.State
	Root   int
	LeafOf map[int]int
}

// State returns a pure snapshot of t.
func (t *Tree) State() State {
	leafOf := make(map[int]int, len(t.leafOf))
	for k, v := range t.leafOf {
		leafOf[k] = v
	}
	return State{
		Config: t.cfg,
		Nodes:  t.nodes.State(),
		Root:   t.root,
		LeafOf: leafOf,
	}
}

// FromState reconstructs a Tree from a prior State() snapshot, sharing
// the given PointStore (which must itself have been restored from the
// matching snapshot).
func FromState(s State, points *point.PointStore) *Tree {
	leafOf := make(map[int]int, len(s.LeafOf))
	for k, v := range s.LeafOf {
		leafOf[k] = v
	}
	nodes := node.FromState(s.Nodes)
	return &Tree{
		cfg:    s.Config,
		points: points,
		nodes:  nodes,
		boxes:  node.NewBoundingBoxCache(nodes.Capacity(), s.Config.BoundingBoxFraction),
		rng:    rand.New(rand.NewSource(s.Config.Seed)),
		root:   s.Root,
		leafOf: leafOf,
	}
}
