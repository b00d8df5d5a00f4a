// Package point implements the arena-allocated, reference-counted dense
// point storage described in spec section 4.1, plus the free-list
// IndexManager it is built on.
package point

import (
	"math"

	"github.com/hed1ad/rcforest/pkg/rcf/errs"
	"github.com/hed1ad/rcforest/pkg/rcf/types"
)

// ShingleMode selects how Add interprets its input vector (spec 4.1).
type ShingleMode int

const (
	// ExternalShingle means the caller already assembled the full
	// dimensions-length point (the common path: a Preprocessor shingles
	// upstream and calls Add with the complete vector).
	ExternalShingle ShingleMode = iota
	// InternalSliding means Add receives one baseDimension-sized frame;
	// the store slides its rolling window and copies the full window
	// into a fresh slot.
	InternalSliding
	// InternalRotating means Add receives one baseDimension-sized frame;
	// the store writes it into a rotating physical layout so the window
	// never needs a memmove, and Get un-rotates on read.
	InternalRotating
)

// Config configures a PointStore.
type Config struct {
	BaseDimension int
	ShingleSize   int // dimensions = BaseDimension * ShingleSize
	Capacity      int
	Precision     types.Precision
	Mode          ShingleMode
}

// DefaultConfig returns a single-frame, external-shingling, double
// precision configuration; callers must still set Capacity.
func DefaultConfig() Config {
	return Config{
		BaseDimension: 1,
		ShingleSize:   1,
		Precision:     types.Double,
		Mode:          ExternalShingle,
	}
}

// PointStore is the arena described in spec 4.1: a dense mapping from
// pointIndex to a fixed-width vector, with per-index refcounts and an
// IndexManager-backed free list.
type PointStore struct {
	cfg        Config
	dimensions int
	idx        *IndexManager
	refCount   []int

	dataF64 []float64 // capacity*dimensions, used when cfg.Precision==Double
	dataF32 []float32 // capacity*dimensions, used when cfg.Precision==Single

	// internal shingling state
	slidingWindow   []float64 // InternalSliding rolling buffer, length dimensions
	rotatingRing    []float64 // InternalRotating shared scratch ring, length dimensions
	rotatingPhase   int       // current physical offset into rotatingRing, multiple of BaseDimension
	rotationOffset  []int     // per-index recorded rotation phase, InternalRotating only
	slidingWarm     int       // frames seen so far, for InternalSliding warm-up bookkeeping
}

// New validates cfg and allocates a PointStore.
func New(cfg Config) (*PointStore, error) {
	if cfg.BaseDimension <= 0 || cfg.ShingleSize <= 0 {
		return nil, errs.New(errs.InvalidConfiguration, "point.New", "baseDimension and shingleSize must be positive")
	}
	if cfg.Capacity <= 0 {
		return nil, errs.New(errs.InvalidConfiguration, "point.New", "capacity must be positive")
	}
	dims := cfg.BaseDimension * cfg.ShingleSize
	ps := &PointStore{
		cfg:        cfg,
		dimensions: dims,
		idx:        NewIndexManager(cfg.Capacity),
		refCount:   make([]int, cfg.Capacity),
	}
	switch cfg.Precision {
	case types.Single:
		ps.dataF32 = make([]float32, cfg.Capacity*dims)
	default:
		ps.dataF64 = make([]float64, cfg.Capacity*dims)
	}
	if cfg.Mode == InternalSliding {
		ps.slidingWindow = make([]float64, dims)
	}
	if cfg.Mode == InternalRotating {
		ps.rotatingRing = make([]float64, dims)
		ps.rotationOffset = make([]int, cfg.Capacity)
	}
	return ps, nil
}

// Dimensions returns D = baseDimension * shingleSize.
func (ps *PointStore) Dimensions() int { return ps.dimensions }

// BaseDimension returns the configured per-frame dimension.
func (ps *PointStore) BaseDimension() int { return ps.cfg.BaseDimension }

// Capacity returns the store's fixed index capacity.
func (ps *PointStore) Capacity() int { return ps.idx.Capacity() }

// Size returns the number of currently live indices.
func (ps *PointStore) Size() int { return ps.idx.Size() }

func (ps *PointStore) storeAt(offset int, v []float64) {
	if ps.cfg.Precision == types.Single {
		for i, x := range v {
			ps.dataF32[offset+i] = float32(x)
		}
		return
	}
	copy(ps.dataF64[offset:offset+len(v)], v)
}

func (ps *PointStore) readAt(offset int) []float64 {
	out := make([]float64, ps.dimensions)
	if ps.cfg.Precision == types.Single {
		for i := 0; i < ps.dimensions; i++ {
			out[i] = float64(ps.dataF32[offset+i])
		}
		return out
	}
	copy(out, ps.dataF64[offset:offset+ps.dimensions])
	return out
}

// Add stores v and returns a fresh pointIndex with refcount 1.
//
// In ExternalShingle mode, len(v) must equal Dimensions(). In
// InternalSliding/InternalRotating mode, len(v) must equal BaseDimension
// and v is treated as the newest frame.
func (ps *PointStore) Add(v []float64) (int, error) {
	full, err := ps.materialize(v, true)
	if err != nil {
		return -1, err
	}
	i, err := ps.idx.Take()
	if err != nil {
		return -1, err
	}
	offset := i * ps.dimensions
	if ps.cfg.Mode == InternalRotating {
		ps.storeAt(offset, ps.rotatingRing)
		ps.rotationOffset[i] = ps.rotatingPhase
	} else {
		ps.storeAt(offset, full)
	}
	ps.refCount[i] = 1
	return i, nil
}

// TransformToShingledPoint previews what Add(frame) would store without
// committing any state change (spec 4.1).
func (ps *PointStore) TransformToShingledPoint(frame []float64) ([]float64, error) {
	return ps.materialize(frame, false)
}

// materialize turns an Add/TransformToShingledPoint argument into the
// full dimensions-length point that would be (or was) stored. commit
// advances internal rolling state; preview calls must pass commit=false.
func (ps *PointStore) materialize(v []float64, commit bool) ([]float64, error) {
	switch ps.cfg.Mode {
	case ExternalShingle:
		if len(v) != ps.dimensions {
			return nil, errs.New(errs.DimensionMismatch, "point.materialize", "vector length must equal dimensions in ExternalShingle mode")
		}
		out := make([]float64, ps.dimensions)
		copy(out, v)
		return out, nil

	case InternalSliding:
		if len(v) != ps.cfg.BaseDimension {
			return nil, errs.New(errs.DimensionMismatch, "point.materialize", "frame length must equal baseDimension in InternalSliding mode")
		}
		out := make([]float64, ps.dimensions)
		copy(out, ps.slidingWindow[ps.cfg.BaseDimension:])
		copy(out[ps.dimensions-ps.cfg.BaseDimension:], v)
		if commit {
			copy(ps.slidingWindow, out)
			ps.slidingWarm++
		}
		return out, nil

	case InternalRotating:
		if len(v) != ps.cfg.BaseDimension {
			return nil, errs.New(errs.DimensionMismatch, "point.materialize", "frame length must equal baseDimension in InternalRotating mode")
		}
		phase := ps.rotatingPhase
		ring := ps.rotatingRing
		if !commit {
			ring = append([]float64(nil), ps.rotatingRing...)
		}
		for i := 0; i < ps.cfg.BaseDimension; i++ {
			ring[(phase+i)%ps.dimensions] = v[i]
		}
		newPhase := (phase + ps.cfg.BaseDimension) % ps.dimensions
		out := make([]float64, ps.dimensions)
		for j := 0; j < ps.dimensions; j++ {
			out[j] = ring[(newPhase+j)%ps.dimensions]
		}
		if commit {
			ps.rotatingPhase = newPhase
		}
		return out, nil
	}
	return nil, errs.New(errs.IllegalState, "point.materialize", "unknown shingle mode")
}

// TransformIndices maps a query for "the last k attributes" to the
// physical offsets within the stored rotated layout for index i,
// InternalRotating mode only.
func (ps *PointStore) TransformIndices(i, k int) ([]int, error) {
	if ps.cfg.Mode != InternalRotating {
		return nil, errs.New(errs.IllegalState, "point.TransformIndices", "only valid in InternalRotating mode")
	}
	if err := ps.idx.CheckValid(i); err != nil {
		return nil, err
	}
	if k < 0 || k > ps.dimensions {
		return nil, errs.New(errs.DimensionMismatch, "point.TransformIndices", "k out of range")
	}
	offsets := make([]int, k)
	rotation := ps.rotationOffset[i]
	start := ps.dimensions - k
	for j := 0; j < k; j++ {
		offsets[j] = (rotation + start + j) % ps.dimensions
	}
	return offsets, nil
}

// Get returns a copy of the canonical (non-rotated) vector stored at i.
func (ps *PointStore) Get(i int) ([]float64, error) {
	if err := ps.idx.CheckValid(i); err != nil {
		return nil, errs.Wrap(errs.InvalidIndex, "point.Get", "invalid pointIndex", err)
	}
	offset := i * ps.dimensions
	if ps.cfg.Mode != InternalRotating {
		return ps.readAt(offset), nil
	}
	raw := ps.readAt(offset)
	rotation := ps.rotationOffset[i]
	out := make([]float64, ps.dimensions)
	for j := 0; j < ps.dimensions; j++ {
		out[j] = raw[(rotation+j)%ps.dimensions]
	}
	return out, nil
}

// IncrementRefCount increments i's refcount and returns the new value.
func (ps *PointStore) IncrementRefCount(i int) (int, error) {
	if err := ps.idx.CheckValid(i); err != nil {
		return 0, errs.Wrap(errs.InvalidIndex, "point.IncrementRefCount", "invalid pointIndex", err)
	}
	ps.refCount[i]++
	return ps.refCount[i], nil
}

// DecrementRefCount decrements i's refcount and returns the new value. A
// refcount that reaches zero releases the index to the free list.
func (ps *PointStore) DecrementRefCount(i int) (int, error) {
	if err := ps.idx.CheckValid(i); err != nil {
		return 0, errs.Wrap(errs.InvalidIndex, "point.DecrementRefCount", "invalid pointIndex", err)
	}
	ps.refCount[i]--
	n := ps.refCount[i]
	if n <= 0 {
		ps.refCount[i] = 0
		if err := ps.idx.Release(i); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// RefCount returns i's current refcount.
func (ps *PointStore) RefCount(i int) (int, error) {
	if err := ps.idx.CheckValid(i); err != nil {
		return 0, errs.Wrap(errs.InvalidIndex, "point.RefCount", "invalid pointIndex", err)
	}
	return ps.refCount[i], nil
}

// PointEquals reports whether the vector stored at i equals v
// componentwise, within floating-point tolerance appropriate to the
// store's precision.
func (ps *PointStore) PointEquals(i int, v []float64) (bool, error) {
	if err := ps.idx.CheckValid(i); err != nil {
		return false, errs.Wrap(errs.InvalidIndex, "point.PointEquals", "invalid pointIndex", err)
	}
	if len(v) != ps.dimensions {
		return false, errs.New(errs.DimensionMismatch, "point.PointEquals", "vector length must equal dimensions")
	}
	stored, err := ps.Get(i)
	if err != nil {
		return false, err
	}
	tol := 1e-10
	if ps.cfg.Precision == types.Single {
		tol = 1e-5
	}
	for j := range stored {
		if math.Abs(stored[j]-v[j]) > tol {
			return false, nil
		}
	}
	return true, nil
}

// Compact relocates live slices to eliminate fragmentation. The current
// implementation is in-place (no external location table to update
// beyond the PointStore's own arena), so it is a no-op whose contract is
// "subsequent Get/Add calls observe the same logical contents" — kept as
// an explicit operation so collaborators that do maintain an external
// index->offset table have a point to hook a relocation pass onto.
func (ps *PointStore) Compact() error {
	return nil
}

// State is returned by State() for the (toState,fromState) contract
// (spec 6). It is a flat, component-owned snapshot, not a wire format.
type State struct {
	Config         Config
	IndexManager   IndexManagerState
	RefCount       []int
	DataF64        []float64
	DataF32        []float32
	SlidingWindow  []float64
	RotatingRing   []float64
	RotatingPhase  int
	RotationOffset []int
}

// State returns a pure snapshot of ps.
func (ps *PointStore) State() State {
	return State{
		Config:         ps.cfg,
		IndexManager:   ps.idx.State(),
		RefCount:       append([]int(nil), ps.refCount...),
		DataF64:        append([]float64(nil), ps.dataF64...),
		DataF32:        append([]float32(nil), ps.dataF32...),
		SlidingWindow:  append([]float64(nil), ps.slidingWindow...),
		RotatingRing:   append([]float64(nil), ps.rotatingRing...),
		RotatingPhase:  ps.rotatingPhase,
		RotationOffset: append([]int(nil), ps.rotationOffset...),
	}
}

// FromState reconstructs a PointStore from a prior State() snapshot.
func FromState(s State) *PointStore {
	dims := s.Config.BaseDimension * s.Config.ShingleSize
	return &PointStore{
		cfg:            s.Config,
		dimensions:     dims,
		idx:            FromIndexManagerState(s.IndexManager),
		refCount:       append([]int(nil), s.RefCount...),
		dataF64:        append([]float64(nil), s.DataF64...),
		dataF32:        append([]float32(nil), s.DataF32...),
		slidingWindow:  append([]float64(nil), s.SlidingWindow...),
		rotatingRing:   append([]float64(nil), s.RotatingRing...),
		rotatingPhase:  s.RotatingPhase,
		rotationOffset: append([]int(nil), s.RotationOffset...),
	}
}
