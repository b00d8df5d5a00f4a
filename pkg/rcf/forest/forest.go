// Package forest coordinates an ensemble of trees sharing one PointStore:
// update/score/attribute/density/impute/extrapolate, fanned out across a
// bounded worker pool when parallel execution is enabled (spec 4.6).
package forest

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"

	"github.com/hed1ad/rcforest/pkg/rcf/errs"
	"github.com/hed1ad/rcforest/pkg/rcf/point"
	"github.com/hed1ad/rcforest/pkg/rcf/rcflog"
	"github.com/hed1ad/rcforest/pkg/rcf/sampler"
	"github.com/hed1ad/rcforest/pkg/rcf/tree"
	"github.com/hed1ad/rcforest/pkg/rcf/types"
)

// Config configures a Forest.
type Config struct {
	NumberOfTrees       int
	SampleSize          int
	Dimensions          int
	Lambda              float64
	Precision           types.Precision
	PointStoreCapacity  int // total distinct points the shared arena can hold
	ShingleMode         point.ShingleMode
	BaseDimension       int
	ShingleSize         int
	ParallelExecution   bool
	ParallelismCap      int64 // max concurrent tree tasks; <=0 defaults to NumberOfTrees
	BoundingBoxFraction float64
	Seed                int64
	Logger              rcflog.Logger
}

// DefaultConfig returns a small, single-precision-agnostic, sequential
// forest configuration; callers must still set Dimensions.
func DefaultConfig() Config {
	return Config{
		NumberOfTrees:       50,
		SampleSize:          256,
		Lambda:              1e-4,
		Precision:           types.Double,
		ShingleMode:         point.ExternalShingle,
		BaseDimension:       1,
		ShingleSize:         1,
		ParallelExecution:   false,
		BoundingBoxFraction: 0.3,
		Seed:                42,
	}
}

// Forest is the ensemble coordinator of spec 4.6.
type Forest struct {
	cfg    Config
	points *point.PointStore
	trees  []*tree.Tree
	samps  []*sampler.Sampler
	sem    *semaphore.Weighted
	log    rcflog.Logger

	sequenceIndex int64

	// dedup lets update() reuse an existing live pointIndex for a vector
	// that is already resident (spec 4.6: "reuse existing index if equal
	// to an existing live point"), keyed by a precision-quantized string
	// form of the vector.
	dedup      map[string]int
	dedupByIdx map[int]string
}

// New validates cfg and builds an empty Forest of NumberOfTrees trees.
func New(cfg Config) (*Forest, error) {
	if cfg.NumberOfTrees <= 0 || cfg.SampleSize <= 0 || cfg.Dimensions <= 0 {
		return nil, errs.New(errs.InvalidConfiguration, "forest.New", "numberOfTrees, sampleSize, and dimensions must be positive")
	}
	if cfg.BaseDimension <= 0 {
		cfg.BaseDimension = cfg.Dimensions
	}
	if cfg.ShingleSize <= 0 {
		cfg.ShingleSize = 1
	}
	if cfg.PointStoreCapacity <= 0 {
		cfg.PointStoreCapacity = cfg.NumberOfTrees * cfg.SampleSize
	}
	if cfg.Logger == nil {
		cfg.Logger = rcflog.Nop()
	}

	ps, err := point.New(point.Config{
		BaseDimension: cfg.BaseDimension,
		ShingleSize:   cfg.ShingleSize,
		Capacity:      cfg.PointStoreCapacity,
		Precision:     cfg.Precision,
		Mode:          cfg.ShingleMode,
	})
	if err != nil {
		return nil, err
	}

	f := &Forest{
		cfg:        cfg,
		points:     ps,
		trees:      make([]*tree.Tree, cfg.NumberOfTrees),
		samps:      make([]*sampler.Sampler, cfg.NumberOfTrees),
		log:        cfg.Logger,
		dedup:      make(map[string]int),
		dedupByIdx: make(map[int]string),
	}
	nodeCapacity := 2*cfg.SampleSize + 1
	for i := 0; i < cfg.NumberOfTrees; i++ {
		tr, err := tree.New(tree.Config{
			Dimensions:          cfg.Dimensions,
			SampleSize:          cfg.SampleSize,
			BoundingBoxFraction: cfg.BoundingBoxFraction,
			Seed:                cfg.Seed + int64(i),
		}, ps, nodeCapacity)
		if err != nil {
			return nil, err
		}
		f.trees[i] = tr

		sm, err := sampler.New(sampler.Config{
			Capacity: cfg.SampleSize,
			Lambda:   cfg.Lambda,
			Seed:     cfg.Seed + int64(i),
		})
		if err != nil {
			return nil, err
		}
		f.samps[i] = sm
	}

	weight := cfg.ParallelismCap
	if weight <= 0 {
		weight = int64(cfg.NumberOfTrees)
	}
	f.sem = semaphore.NewWeighted(weight)
	return f, nil
}

// NumberOfTrees returns the configured ensemble size.
func (f *Forest) NumberOfTrees() int { return len(f.trees) }

// Points exposes the shared PointStore (e.g. for diagnostics or a
// Preprocessor that needs Dimensions()).
func (f *Forest) Points() *point.PointStore { return f.points }

func dedupKey(precision types.Precision, v []float64) string {
	if precision == types.Single {
		out := make([]byte, 0, len(v)*12)
		for _, x := range v {
			out = append(out, []byte(fmt.Sprintf("%.5g|", float32(x)))...)
		}
		return string(out)
	}
	out := make([]byte, 0, len(v)*20)
	for _, x := range v {
		out = append(out, []byte(fmt.Sprintf("%.15g|", x))...)
	}
	return string(out)
}

// runOverTrees invokes fn(i) for every tree index, either sequentially or
// fanned across the bounded semaphore pool, and aggregates any errors
// (spec 4.6/5: "within a single process invocation the Forest may fan
// out per-tree work across a bounded thread pool").
func (f *Forest) runOverTrees(fn func(i int) error) error {
	if !f.cfg.ParallelExecution {
		var errOut error
		for i := range f.trees {
			errOut = multierr.Append(errOut, fn(i))
		}
		if errOut != nil {
			f.log.Warn("tree errors during fan-out", rcflog.Int("treeCount", len(f.trees)), rcflog.String("err", errOut.Error()))
		}
		return errOut
	}

	ctx := context.Background()
	treeErrs := make([]error, len(f.trees))
	done := make(chan struct{}, len(f.trees))
	for i := range f.trees {
		i := i
		if err := f.sem.Acquire(ctx, 1); err != nil {
			treeErrs[i] = err
			done <- struct{}{}
			continue
		}
		go func() {
			defer f.sem.Release(1)
			defer func() { done <- struct{}{} }()
			treeErrs[i] = fn(i)
		}()
	}
	for range f.trees {
		<-done
	}
	var errOut error
	for _, e := range treeErrs {
		errOut = multierr.Append(errOut, e)
	}
	if errOut != nil {
		f.log.Warn("tree errors during fan-out", rcflog.Int("treeCount", len(f.trees)), rcflog.String("err", errOut.Error()))
	}
	return errOut
}

// Update offers point v (already shingled/transformed) to every tree's
// sampler in turn, inserting it into the trees that accept it and
// deleting whichever pointIndex each tree's sampler evicted (spec 4.6).
func (f *Forest) Update(v []float64) error {
	if len(v) != f.cfg.Dimensions {
		return errs.New(errs.DimensionMismatch, "forest.Update", "vector length must equal Dimensions")
	}
	key := dedupKey(f.cfg.Precision, v)
	pointIndex, reused := f.dedup[key]
	if !reused {
		idx, err := f.points.Add(v)
		if err != nil {
			return err
		}
		pointIndex = idx
	} else {
		if _, err := f.points.IncrementRefCount(pointIndex); err != nil {
			return err
		}
	}
	f.dedup[key] = pointIndex
	f.dedupByIdx[pointIndex] = key

	seq := f.sequenceIndex
	f.sequenceIndex++

	accepted := false
	var errOut error
	for i, tr := range f.trees {
		ok, evicted := f.samps[i].Accept(pointIndex, seq)
		if !ok {
			continue
		}
		accepted = true
		if _, err := f.points.IncrementRefCount(pointIndex); err != nil {
			errOut = multierr.Append(errOut, err)
			continue
		}
		if err := tr.Insert(pointIndex); err != nil {
			errOut = multierr.Append(errOut, err)
			continue
		}
		if evicted != sampler.Null {
			if err := tr.Delete(evicted); err != nil {
				errOut = multierr.Append(errOut, err)
			}
			n, err := f.points.DecrementRefCount(evicted)
			if err != nil {
				errOut = multierr.Append(errOut, err)
			} else if n <= 0 {
				f.forgetDedup(evicted)
			}
		}
	}

	n, err := f.points.DecrementRefCount(pointIndex)
	if err != nil {
		errOut = multierr.Append(errOut, err)
	} else if n <= 0 {
		f.forgetDedup(pointIndex)
	}
	if !accepted {
		f.log.Debug("point accepted by no tree sampler", rcflog.Int64("sequenceIndex", seq), rcflog.Bool("dedupReused", reused))
	}
	return errOut
}

func (f *Forest) forgetDedup(pointIndex int) {
	if k, ok := f.dedupByIdx[pointIndex]; ok {
		if cur, ok2 := f.dedup[k]; ok2 && cur == pointIndex {
			delete(f.dedup, k)
		}
		delete(f.dedupByIdx, pointIndex)
	}
}

// Score returns the ensemble anomaly score for v: the mean of each
// tree's AnomalyScore, computed sequentially or in parallel depending on
// cfg.ParallelExecution (spec 4.6, 8 properties 1-3).
func (f *Forest) Score(v []float64) (float64, error) {
	if len(v) != f.cfg.Dimensions {
		return 0, errs.New(errs.DimensionMismatch, "forest.Score", "vector length must equal Dimensions")
	}
	scores := make([]float64, len(f.trees))
	err := f.runOverTrees(func(i int) error {
		s, err := f.trees[i].AnomalyScore(v)
		if err != nil {
			return err
		}
		scores[i] = s
		return nil
	})
	if err != nil {
		return 0, err
	}
	return mean(scores), nil
}

// Attribution returns the ensemble attribution: the per-dimension mean
// of each tree's DiVector.
func (f *Forest) Attribution(v []float64) (*types.DiVector, error) {
	if len(v) != f.cfg.Dimensions {
		return nil, errs.New(errs.DimensionMismatch, "forest.Attribution", "vector length must equal Dimensions")
	}
	divecs := make([]*types.DiVector, len(f.trees))
	err := f.runOverTrees(func(i int) error {
		d, err := f.trees[i].Attribution(v)
		if err != nil {
			return err
		}
		divecs[i] = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := types.NewDiVector(len(v))
	for _, d := range divecs {
		out.AddInPlace(d)
	}
	out.ScaleInPlace(1 / float64(len(f.trees)))
	return out, nil
}

// SimpleDensity returns the ensemble mean of each tree's SimpleDensity.
func (f *Forest) SimpleDensity(v []float64) (*types.DiVector, error) {
	if len(v) != f.cfg.Dimensions {
		return nil, errs.New(errs.DimensionMismatch, "forest.SimpleDensity", "vector length must equal Dimensions")
	}
	divecs := make([]*types.DiVector, len(f.trees))
	err := f.runOverTrees(func(i int) error {
		d, err := f.trees[i].SimpleDensity(v)
		if err != nil {
			return err
		}
		divecs[i] = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := types.NewDiVector(len(v))
	for _, d := range divecs {
		out.AddInPlace(d)
	}
	out.ScaleInPlace(1 / float64(len(f.trees)))
	return out, nil
}

// ImputeMissingValues returns the elementwise mean, across trees, of
// each tree's imputed reconstruction of v.
func (f *Forest) ImputeMissingValues(v []float64, missingIndices []int) ([]float64, error) {
	results := make([][]float64, len(f.trees))
	err := f.runOverTrees(func(i int) error {
		filled, err := f.trees[i].ImputeMissingValues(v, missingIndices)
		if err != nil {
			return err
		}
		results[i] = filled
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(v))
	for d := range out {
		var sum float64
		for _, r := range results {
			sum += r[d]
		}
		out[d] = sum / float64(len(results))
	}
	return out, nil
}

// Extrapolate forecasts horizon new blockSize-wide blocks past
// shingledPoint by gathering each tree's single-tree forecast and
// blending mean and median across the ensemble according to centrality
// (spec 4.5, 4.6, 4.9): centrality=0 is the ensemble mean, centrality=1
// is the ensemble median of per-position conditional samples.
func (f *Forest) Extrapolate(shingledPoint []float64, horizon, blockSize int, centrality float64) (*types.TimedRangeVector, error) {
	samples := make([][]float64, len(f.trees))
	err := f.runOverTrees(func(i int) error {
		s, err := f.trees[i].ExtrapolateFromShingle(shingledPoint, horizon, blockSize, centrality)
		if err != nil {
			return err
		}
		samples[i] = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	width := horizon * blockSize
	blended := make([]float64, width)
	lower := make([]float64, width)
	upper := make([]float64, width)
	col := make([]float64, len(samples))
	for j := 0; j < width; j++ {
		for t := range samples {
			col[t] = samples[t][j]
		}
		sorted := append([]float64(nil), col...)
		sort.Float64s(sorted)
		blended[j] = centrality*median(sorted) + (1-centrality)*mean(col)
		lower[j] = sorted[0]
		upper[j] = sorted[len(sorted)-1]
	}

	out := &types.TimedRangeVector{}
	for h := 0; h < horizon; h++ {
		rv := types.NewRangeVector(blockSize)
		copy(rv.Values, blended[h*blockSize:(h+1)*blockSize])
		copy(rv.Lower, lower[h*blockSize:(h+1)*blockSize])
		copy(rv.Upper, upper[h*blockSize:(h+1)*blockSize])
		out.Ranges = append(out.Ranges, rv)
		out.Timestamps = append(out.Timestamps, int64(h+1))
	}
	return out, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
