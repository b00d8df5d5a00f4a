// Package node implements the packed tree-node arena (spec 4.2) and its
// companion bounding-box cache (spec 4.3).
package node

import (
	"github.com/hed1ad/rcforest/pkg/rcf/errs"
	"github.com/hed1ad/rcforest/pkg/rcf/point"
)

// Null is the sentinel used for "no such node" in parent/left/right
// fields.
const Null = -1

// NodeStore is a fixed-capacity packed array of tree nodes
// {parent,left,right,cutDim,cutValue,mass}. Leaves are nodes whose
// PointIndex (a secondary table) is >= 0; internal nodes have
// PointIndex == Null and valid Left/Right children (spec 4.2).
type NodeStore struct {
	idx *point.IndexManager

	parent []int
	left   []int
	right  []int
	cutDim []int
	mass   []int

	cutValue   []float64
	pointIndex []int // >=0 for leaves, Null for internal nodes
	depth      []int // cached tree depth from root, maintained by Tree on insert/delete
}

// NewNodeStore allocates a NodeStore with capacity internal+leaf node
// slots.
func NewNodeStore(capacity int) *NodeStore {
	ns := &NodeStore{
		idx:        point.NewIndexManager(capacity),
		parent:     make([]int, capacity),
		left:       make([]int, capacity),
		right:      make([]int, capacity),
		cutDim:     make([]int, capacity),
		mass:       make([]int, capacity),
		cutValue:   make([]float64, capacity),
		pointIndex: make([]int, capacity),
		depth:      make([]int, capacity),
	}
	for i := range ns.pointIndex {
		ns.pointIndex[i] = Null
	}
	return ns
}

// Capacity returns the node arena's fixed capacity.
func (ns *NodeStore) Capacity() int { return ns.idx.Capacity() }

// Size returns the number of currently live nodes.
func (ns *NodeStore) Size() int { return ns.idx.Size() }

// AddInternal allocates an internal node with the given cut and returns
// its node index. Errors with Capacity when the arena is full.
func (ns *NodeStore) AddInternal(parent, left, right, cutDim int, cutValue float64, mass, depth int) (int, error) {
	i, err := ns.idx.Take()
	if err != nil {
		return Null, err
	}
	ns.parent[i] = parent
	ns.left[i] = left
	ns.right[i] = right
	ns.cutDim[i] = cutDim
	ns.cutValue[i] = cutValue
	ns.mass[i] = mass
	ns.pointIndex[i] = Null
	ns.depth[i] = depth
	return i, nil
}

// AddLeaf allocates a leaf node pointing at pointIndex and returns its
// node index.
func (ns *NodeStore) AddLeaf(parent, pointIndex, mass, depth int) (int, error) {
	i, err := ns.idx.Take()
	if err != nil {
		return Null, err
	}
	ns.parent[i] = parent
	ns.left[i] = Null
	ns.right[i] = Null
	ns.cutDim[i] = Null
	ns.cutValue[i] = 0
	ns.mass[i] = mass
	ns.pointIndex[i] = pointIndex
	ns.depth[i] = depth
	return i, nil
}

// RemoveNode frees node i back to the arena. After removal, no stored
// field is guaranteed valid until the slot is reused by a future
// AddInternal/AddLeaf.
func (ns *NodeStore) RemoveNode(i int) error {
	if err := ns.idx.CheckValid(i); err != nil {
		return errs.Wrap(errs.InvalidIndex, "node.RemoveNode", "invalid nodeIndex", err)
	}
	ns.pointIndex[i] = Null
	return ns.idx.Release(i)
}

// IsLeaf reports whether node i is a leaf.
func (ns *NodeStore) IsLeaf(i int) bool { return ns.pointIndex[i] != Null }

func (ns *NodeStore) Parent(i int) int       { return ns.parent[i] }
func (ns *NodeStore) Left(i int) int         { return ns.left[i] }
func (ns *NodeStore) Right(i int) int        { return ns.right[i] }
func (ns *NodeStore) CutDimension(i int) int { return ns.cutDim[i] }
func (ns *NodeStore) CutValue(i int) float64 { return ns.cutValue[i] }
func (ns *NodeStore) Mass(i int) int         { return ns.mass[i] }
func (ns *NodeStore) PointIndex(i int) int   { return ns.pointIndex[i] }
func (ns *NodeStore) Depth(i int) int        { return ns.depth[i] }

func (ns *NodeStore) SetParent(i, p int)        { ns.parent[i] = p }
func (ns *NodeStore) SetLeft(i, l int)          { ns.left[i] = l }
func (ns *NodeStore) SetRight(i, r int)          { ns.right[i] = r }
func (ns *NodeStore) SetMass(i, m int)          { ns.mass[i] = m }
func (ns *NodeStore) SetCut(i, dim int, v float64) {
	ns.cutDim[i] = dim
	ns.cutValue[i] = v
}
func (ns *NodeStore) SetDepth(i, d int) { ns.depth[i] = d }

// Sibling returns the other child of node i's parent, or Null if i is
// the root.
func (ns *NodeStore) Sibling(i int) int {
	p := ns.parent[i]
	if p == Null {
		return Null
	}
	if ns.left[p] == i {
		return ns.right[p]
	}
	return ns.left[p]
}

// IsValid reports whether i is currently a live node.
func (ns *NodeStore) IsValid(i int) bool {
	return ns.idx.IsTaken(i)
}

// State is the pure (toState,fromState) snapshot required by spec 6.
type State struct {
	IndexManager point.IndexManagerState
	Parent       []int
	Left         []int
	Right        []int
	CutDim       []int
	Mass         []int
	CutValue     []float64
	PointIndex   []int
	Depth        []int
}

// State returns a pure snapshot of ns, preserving every node field
// exactly (spec 6).
func (ns *NodeStore) State() State {
	return State{
		IndexManager: ns.idx.State(),
		Parent:       append([]int(nil), ns.parent...),
		Left:         append([]int(nil), ns.left...),
		Right:        append([]int(nil), ns.right...),
		CutDim:       append([]int(nil), ns.cutDim...),
		Mass:         append([]int(nil), ns.mass...),
		CutValue:     append([]float64(nil), ns.cutValue...),
		PointIndex:   append([]int(nil), ns.pointIndex...),
		Depth:        append([]int(nil), ns.depth...),
	}
}

// FromState reconstructs a NodeStore from a prior State() snapshot.
func FromState(s State) *NodeStore {
	return &NodeStore{
		idx:        point.FromIndexManagerState(s.IndexManager),
		parent:     append([]int(nil), s.Parent...),
		left:       append([]int(nil), s.Left...),
		right:      append([]int(nil), s.Right...),
		cutDim:     append([]int(nil), s.CutDim...),
		mass:       append([]int(nil), s.Mass...),
		cutValue:   append([]float64(nil), s.CutValue...),
		pointIndex: append([]int(nil), s.PointIndex...),
		depth:      append([]int(nil), s.Depth...),
	}
}
