// Package sampler implements the per-tree time-decayed reservoir
// described in spec 4.4: a bounded max-heap over exponentially
// time-decayed weights that reports the evicted pointIndex (if any) on
// every accepted insertion.
package sampler

import (
	"math"
	"math/rand"

	"github.com/hed1ad/rcforest/pkg/rcf/errs"
)

// Null marks "no eviction occurred" / "no such entry".
const Null = -1

// Config configures a Sampler.
type Config struct {
	Capacity             int
	Lambda               float64 // time-decay rate
	TrackSequenceIndices bool
	Seed                 int64
}

// DefaultConfig returns a modest reservoir with a small time decay,
// lambda=1e-4 (lambda=0 would degenerate to uniform reservoir sampling).
func DefaultConfig() Config {
	return Config{Capacity: 256, Lambda: 1e-4, TrackSequenceIndices: true, Seed: 42}
}

type entry struct {
	weight        float64
	pointIndex    int
	sequenceIndex int64
	insertionSeq  int64
}

// Sampler is the time-decayed reservoir of spec 4.4.
type Sampler struct {
	cfg     Config
	rng     *rand.Rand
	entries []entry // heap array, len == size, cap == cfg.Capacity
	nextSeq int64
	evicted int // Null when the most recent Accept produced no eviction
}

// New validates cfg and builds an empty Sampler.
func New(cfg Config) (*Sampler, error) {
	if cfg.Capacity <= 0 {
		return nil, errs.New(errs.InvalidConfiguration, "sampler.New", "capacity must be positive")
	}
	if cfg.Lambda < 0 {
		return nil, errs.New(errs.InvalidConfiguration, "sampler.New", "lambda must be non-negative")
	}
	return &Sampler{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		entries: make([]entry, 0, cfg.Capacity),
		evicted: Null,
	}, nil
}

// Capacity returns the sampler's fixed capacity.
func (s *Sampler) Capacity() int { return s.cfg.Capacity }

// Size returns the number of currently held entries.
func (s *Sampler) Size() int { return len(s.entries) }

// Full reports whether the reservoir is at capacity.
func (s *Sampler) Full() bool { return len(s.entries) >= s.cfg.Capacity }

// weight computes w(t) = -λ·t + log(-log(U)), U drawn fresh.
func (s *Sampler) weight(sequenceID int64) float64 {
	u := s.rng.Float64()
	for u <= 0 || u >= 1 {
		u = s.rng.Float64()
	}
	return -s.cfg.Lambda*float64(sequenceID) + math.Log(-math.Log(u))
}

// Accept offers (pointIndex, sequenceID) to the reservoir. It returns
// whether the point was accepted, and, if accepting it evicted an
// existing entry, that entry's pointIndex (else Null).
func (s *Sampler) Accept(pointIndex int, sequenceID int64) (accepted bool, evictedPointIndex int) {
	w := s.weight(sequenceID)
	s.evicted = Null

	if !s.Full() {
		s.push(entry{weight: w, pointIndex: pointIndex, sequenceIndex: sequenceID, insertionSeq: s.nextSeq})
		s.nextSeq++
		return true, Null
	}

	if w < s.entries[0].weight {
		evictedPointIndex = s.entries[0].pointIndex
		s.entries[0] = entry{weight: w, pointIndex: pointIndex, sequenceIndex: sequenceID, insertionSeq: s.nextSeq}
		s.nextSeq++
		s.siftDown(0)
		s.evicted = evictedPointIndex
		return true, evictedPointIndex
	}

	return false, Null
}

// EvictedPoint returns the pointIndex evicted by the most recent Accept
// call, or (Null,false) if that call produced no eviction. The slot is
// cleared on the next Accept call.
func (s *Sampler) EvictedPoint() (int, bool) {
	if s.evicted == Null {
		return Null, false
	}
	return s.evicted, true
}

// WeightArray returns a copy of the current weights, in heap-array order.
func (s *Sampler) WeightArray() []float64 {
	out := make([]float64, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.weight
	}
	return out
}

// PointIndexArray returns a copy of the current pointIndices, in
// heap-array order (parallel to WeightArray).
func (s *Sampler) PointIndexArray() []int {
	out := make([]int, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.pointIndex
	}
	return out
}

// SequenceIndexArray returns a copy of the current sequenceIndices, when
// TrackSequenceIndices is enabled; nil otherwise.
func (s *Sampler) SequenceIndexArray() []int64 {
	if !s.cfg.TrackSequenceIndices {
		return nil
	}
	out := make([]int64, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.sequenceIndex
	}
	return out
}

// heap-order comparator: entries[i] outranks entries[j] (belongs closer
// to the root) when its weight is larger, ties broken by the more
// recently inserted entry outranking the older one, so repeated-weight
// eviction order stays deterministic.
func (s *Sampler) less(i, j int) bool {
	if s.entries[i].weight != s.entries[j].weight {
		return s.entries[i].weight > s.entries[j].weight
	}
	return s.entries[i].insertionSeq > s.entries[j].insertionSeq
}

func (s *Sampler) push(e entry) {
	s.entries = append(s.entries, e)
	s.siftUp(len(s.entries) - 1)
}

func (s *Sampler) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if s.less(i, p) {
			s.entries[i], s.entries[p] = s.entries[p], s.entries[i]
			i = p
		} else {
			break
		}
	}
}

func (s *Sampler) siftDown(i int) {
	n := len(s.entries)
	for {
		l, r := 2*i+1, 2*i+2
		largest := i
		if l < n && s.less(l, largest) {
			largest = l
		}
		if r < n && s.less(r, largest) {
			largest = r
		}
		if largest == i {
			return
		}
		s.entries[i], s.entries[largest] = s.entries[largest], s.entries[i]
		i = largest
	}
}

// ValidateHeap reports whether the max-heap property holds over the
// current array: for every internal position j, weight[j] >= weight of
// both children (spec 8, property 6).
func (s *Sampler) ValidateHeap() bool {
	n := len(s.entries)
	for j := 0; j < n; j++ {
		l, r := 2*j+1, 2*j+2
		if l < n && s.entries[j].weight < s.entries[l].weight {
			return false
		}
		if r < n && s.entries[j].weight < s.entries[r].weight {
			return false
		}
	}
	return true
}

// State is the pure (toState,fromState) snapshot required by spec 6.
type State struct {
	Config          Config
	Weights         []float64
	PointIndices    []int
	SequenceIndices []int64
	InsertionSeqs   []int64
	NextSeq         int64
}

// State returns a pure snapshot of s.
func (s *Sampler) State() State {
	weights := make([]float64, len(s.entries))
	points := make([]int, len(s.entries))
	seqs := make([]int64, len(s.entries))
	ins := make([]int64, len(s.entries))
	for i, e := range s.entries {
		weights[i] = e.weight
		points[i] = e.pointIndex
		seqs[i] = e.sequenceIndex
		ins[i] = e.insertionSeq
	}
	return State{
		Config:          s.cfg,
		Weights:         weights,
		PointIndices:    points,
		SequenceIndices: seqs,
		InsertionSeqs:   ins,
		NextSeq:         s.nextSeq,
	}
}

// FromState reconstructs a Sampler from a prior State() snapshot. When
// validateHeap is true, a state whose array violates the max-heap
// property is rejected with an IllegalState error (spec 4.4).
func FromState(s State, validateHeap bool) (*Sampler, error) {
	entries := make([]entry, len(s.Weights))
	for i := range s.Weights {
		seq := int64(0)
		if i < len(s.SequenceIndices) {
			seq = s.SequenceIndices[i]
		}
		entries[i] = entry{
			weight:        s.Weights[i],
			pointIndex:    s.PointIndices[i],
			sequenceIndex: seq,
			insertionSeq:  s.InsertionSeqs[i],
		}
	}
	out := &Sampler{
		cfg:     s.Config,
		rng:     rand.New(rand.NewSource(s.Config.Seed)),
		entries: entries,
		nextSeq: s.NextSeq,
		evicted: Null,
	}
	if validateHeap && !out.ValidateHeap() {
		return nil, errs.New(errs.IllegalState, "sampler.FromState", "restored state violates max-heap property")
	}
	return out, nil
}
