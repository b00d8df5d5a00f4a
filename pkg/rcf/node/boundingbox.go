package node

import "math"

// BoundingBox is the componentwise envelope of a set of points.
type BoundingBox struct {
	Min []float64
	Max []float64
}

// NewBoundingBox returns a degenerate box (Min==Max==v).
func NewBoundingBox(v []float64) *BoundingBox {
	min := append([]float64(nil), v...)
	max := append([]float64(nil), v...)
	return &BoundingBox{Min: min, Max: max}
}

// Copy returns a deep copy of b.
func (b *BoundingBox) Copy() *BoundingBox {
	return &BoundingBox{
		Min: append([]float64(nil), b.Min...),
		Max: append([]float64(nil), b.Max...),
	}
}

// ExtendWith grows b in place to also cover v.
func (b *BoundingBox) ExtendWith(v []float64) {
	for i, x := range v {
		if x < b.Min[i] {
			b.Min[i] = x
		}
		if x > b.Max[i] {
			b.Max[i] = x
		}
	}
}

// Merge returns the smallest box covering both b and other, without
// mutating either input.
func Merge(b, other *BoundingBox) *BoundingBox {
	out := b.Copy()
	for i := range out.Min {
		if other.Min[i] < out.Min[i] {
			out.Min[i] = other.Min[i]
		}
		if other.Max[i] > out.Max[i] {
			out.Max[i] = other.Max[i]
		}
	}
	return out
}

// Contains reports whether v lies within b on every dimension.
func (b *BoundingBox) Contains(v []float64) bool {
	for i, x := range v {
		if x < b.Min[i] || x > b.Max[i] {
			return false
		}
	}
	return true
}

// SideLength returns the extent of dimension dim.
func (b *BoundingBox) SideLength(dim int) float64 {
	return b.Max[dim] - b.Min[dim]
}

// RangeSum returns Σ(max-min) across all dimensions, the quantity cut
// dimensions are sampled proportional to (spec 4.5: "choose the cut
// dimension proportional to the bounding-box side length").
func (b *BoundingBox) RangeSum() float64 {
	var sum float64
	for i := range b.Min {
		sum += b.Max[i] - b.Min[i]
	}
	return sum
}

// MinGap returns the minimum, over dimensions, distance from v to the
// box boundary (positive when v is inside, used by simpleDensity).
func (b *BoundingBox) MinGap(v []float64) float64 {
	gap := math.Inf(1)
	for i, x := range v {
		d := math.Min(x-b.Min[i], b.Max[i]-x)
		if d < gap {
			gap = d
		}
	}
	return gap
}

type cacheEntry struct {
	box   *BoundingBox
	depth int
}

// BoundingBoxCache maintains per-node envelopes for a configurable
// fraction of nodes (spec 4.3). At fraction 0 nothing is cached; at
// fraction 1 every Set succeeds; for intermediate fractions, shallow
// nodes are preferred so the cache maximizes hit rate for the
// score/attribute top-down walk. Caching never changes what Get would
// logically return versus recomputing: callers must still be prepared
// to recompute on a cache miss.
type BoundingBoxCache struct {
	fraction    float64
	targetCount int
	entries     map[int]cacheEntry
}

// NewBoundingBoxCache creates a cache with the given enablement fraction.
func NewBoundingBoxCache(nodeCapacity int, fraction float64) *BoundingBoxCache {
	c := &BoundingBoxCache{entries: make(map[int]cacheEntry)}
	c.SetFraction(nodeCapacity, fraction)
	return c
}

// SetFraction updates the cache's enablement fraction. If the new target
// is smaller than the current occupancy, the deepest cached entries are
// evicted first, matching the "prefer shallow" policy.
func (c *BoundingBoxCache) SetFraction(nodeCapacity int, fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	c.fraction = fraction
	c.targetCount = int(math.Round(fraction * float64(nodeCapacity)))
	for len(c.entries) > c.targetCount {
		c.evictDeepest()
	}
}

// Fraction returns the current enablement fraction.
func (c *BoundingBoxCache) Fraction() float64 { return c.fraction }

func (c *BoundingBoxCache) evictDeepest() {
	deepestIdx := -1
	deepestDepth := -1
	for idx, e := range c.entries {
		if e.depth > deepestDepth {
			deepestDepth = e.depth
			deepestIdx = idx
		}
	}
	if deepestIdx != -1 {
		delete(c.entries, deepestIdx)
	}
}

// Get returns the cached box for nodeIndex, if present.
func (c *BoundingBoxCache) Get(nodeIndex int) (*BoundingBox, bool) {
	e, ok := c.entries[nodeIndex]
	if !ok {
		return nil, false
	}
	return e.box, true
}

// Set offers a computed box to the cache. Shallow nodes (small depth)
// are preferred when the target occupancy is already reached.
func (c *BoundingBoxCache) Set(nodeIndex, depth int, box *BoundingBox) {
	if c.targetCount <= 0 {
		return
	}
	if _, ok := c.entries[nodeIndex]; ok {
		c.entries[nodeIndex] = cacheEntry{box: box, depth: depth}
		return
	}
	if len(c.entries) < c.targetCount {
		c.entries[nodeIndex] = cacheEntry{box: box, depth: depth}
		return
	}
	// Full: only displace a deeper entry.
	deepestIdx := -1
	deepestDepth := -1
	for idx, e := range c.entries {
		if e.depth > deepestDepth {
			deepestDepth = e.depth
			deepestIdx = idx
		}
	}
	if deepestIdx != -1 && depth < deepestDepth {
		delete(c.entries, deepestIdx)
		c.entries[nodeIndex] = cacheEntry{box: box, depth: depth}
	}
}

// Invalidate drops nodeIndex from the cache, used when a structural
// change (insert/delete) may have changed its box.
func (c *BoundingBoxCache) Invalidate(nodeIndex int) {
	delete(c.entries, nodeIndex)
}

// Clear empties the cache.
func (c *BoundingBoxCache) Clear() {
	c.entries = make(map[int]cacheEntry)
}

// Len reports the number of currently cached entries.
func (c *BoundingBoxCache) Len() int { return len(c.entries) }
