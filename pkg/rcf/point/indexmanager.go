package point

import (
	"sort"

	"github.com/hed1ad/rcforest/pkg/rcf/errs"
)

// IndexManager is a free-list over [0, capacity) handing out the smallest
// free index on Take and accepting indices back on Release (spec 3).
type IndexManager struct {
	capacity int
	free     []int // free indices, kept sorted descending so Take pops the smallest via the tail
	taken    []bool
}

// NewIndexManager builds a free-list manager with every index in
// [0, capacity) initially free.
func NewIndexManager(capacity int) *IndexManager {
	free := make([]int, capacity)
	for i := 0; i < capacity; i++ {
		free[i] = capacity - 1 - i
	}
	return &IndexManager{
		capacity: capacity,
		free:     free,
		taken:    make([]bool, capacity),
	}
}

// Capacity returns the manager's fixed capacity.
func (m *IndexManager) Capacity() int { return m.capacity }

// Size returns the number of currently taken indices.
func (m *IndexManager) Size() int { return m.capacity - len(m.free) }

// Take returns the smallest free index, or an error of kind Capacity when
// none remain.
func (m *IndexManager) Take() (int, error) {
	if len(m.free) == 0 {
		return -1, errs.New(errs.Capacity, "IndexManager.Take", "no free indices")
	}
	idx := m.free[len(m.free)-1]
	m.free = m.free[:len(m.free)-1]
	m.taken[idx] = true
	return idx, nil
}

// Release returns i to the free list. It errors if i is out of range or
// already free (double-free, an IllegalState per spec 7).
func (m *IndexManager) Release(i int) error {
	if i < 0 || i >= m.capacity {
		return errs.New(errs.InvalidIndex, "IndexManager.Release", "index out of range")
	}
	if !m.taken[i] {
		return errs.New(errs.IllegalState, "IndexManager.Release", "double free")
	}
	m.taken[i] = false
	pos := sort.Search(len(m.free), func(j int) bool { return m.free[j] < i })
	m.free = append(m.free, 0)
	copy(m.free[pos+1:], m.free[pos:])
	m.free[pos] = i
	return nil
}

// CheckValid fails for any i outside [0,capacity) or currently free.
func (m *IndexManager) CheckValid(i int) error {
	if i < 0 || i >= m.capacity {
		return errs.New(errs.InvalidIndex, "IndexManager.CheckValid", "index out of range")
	}
	if !m.taken[i] {
		return errs.New(errs.InvalidIndex, "IndexManager.CheckValid", "index is free")
	}
	return nil
}

// IsTaken reports whether i is currently taken, without erroring on a
// free or out-of-range index.
func (m *IndexManager) IsTaken(i int) bool {
	if i < 0 || i >= m.capacity {
		return false
	}
	return m.taken[i]
}

// State is the pure (mean,variance,...)-style snapshot used by spec 6's
// (toState, fromState) contract: enough to reconstruct identical free-list
// ordering.
type IndexManagerState struct {
	Capacity int
	Taken    []bool
	// FreeOrder preserves the exact order indices would be handed out in,
	// mirroring the ordering invariant called out in spec 6.
	FreeOrder []int
}

// State returns a pure snapshot of m.
func (m *IndexManager) State() IndexManagerState {
	free := make([]int, len(m.free))
	copy(free, m.free)
	taken := make([]bool, len(m.taken))
	copy(taken, m.taken)
	return IndexManagerState{Capacity: m.capacity, Taken: taken, FreeOrder: free}
}

// FromIndexManagerState reconstructs an IndexManager from a prior State(),
// preserving free-list ordering exactly.
func FromIndexManagerState(s IndexManagerState) *IndexManager {
	m := &IndexManager{
		capacity: s.Capacity,
		free:     append([]int(nil), s.FreeOrder...),
		taken:    append([]bool(nil), s.Taken...),
	}
	return m
}
