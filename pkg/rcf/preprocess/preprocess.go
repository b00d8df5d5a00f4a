// Package preprocess implements the Preprocessor of spec 4.7: shingling,
// per-dimension streaming transforms, time augmentation, and streaming
// imputation ahead of the Forest.
package preprocess

import (
	"gonum.org/v1/gonum/floats"

	"github.com/hed1ad/rcforest/pkg/rcf/errs"
	"github.com/hed1ad/rcforest/pkg/rcf/forest"
	"github.com/hed1ad/rcforest/pkg/rcf/stats"
	"github.com/hed1ad/rcforest/pkg/rcf/types"
)

// Config configures a Preprocessor.
type Config struct {
	BaseDimension int
	ShingleSize   int
	Mode          types.ForestMode
	Transform     types.TransformMethod
	Imputation    types.ImputationMethod

	// StartNormalization is the minimum observation count before a
	// transform is applied; below it getScaledShingledInput returns nil.
	StartNormalization int
	// StopNormalization is the observation count after which per-dimension
	// statistics freeze; 0 means "never stop adapting".
	StopNormalization int
	// WeightedTransformAlpha is the WEIGHTED transform's blend weight
	// toward the most recent observation.
	WeightedTransformAlpha float64
	// SubtractMAWindow is the moving-average window for SUBTRACT_MA.
	SubtractMAWindow int

	// FixedValues holds the per-baseDimension fill value FIXED_VALUES
	// substitutes for a missing coordinate; a dimension beyond the
	// slice, or the slice itself left nil, falls back to zero.
	FixedValues []float64

	Discount float64 // Deviation decay, shared by every per-dimension estimator
}

// DefaultConfig returns a single-frame STANDARD/NONE configuration;
// callers must still set BaseDimension.
func DefaultConfig() Config {
	return Config{
		ShingleSize:            1,
		Mode:                   types.Standard,
		Transform:              types.TransformNone,
		Imputation:             types.ImputeZero,
		StartNormalization:     10,
		WeightedTransformAlpha: 0.2,
		SubtractMAWindow:       8,
		Discount:               1e-3,
	}
}

// Preprocessor is the spec 4.7 component.
type Preprocessor struct {
	cfg        Config
	frameDim   int // baseDimension, or baseDimension+1 under TIME_AUGMENTED
	dimensions int // frameDim * shingleSize

	shingle     []float64 // rolling window of shingleSize frames, frameDim each
	shingleWarm int       // frames committed so far

	deviations []*stats.Deviation // per output dimension, frameDim entries
	movingAvg  [][]float64        // per dimension ring buffer, SUBTRACT_MA only
	maPos      []int

	lastRawInput []float64 // last committed, already-substituted raw input; PREVIOUS's source

	lastTimestamp int64
	haveLast      bool
	observations  int
}

// New validates cfg and allocates a Preprocessor.
func New(cfg Config) (*Preprocessor, error) {
	if cfg.BaseDimension <= 0 || cfg.ShingleSize <= 0 {
		return nil, errs.New(errs.InvalidConfiguration, "preprocess.New", "baseDimension and shingleSize must be positive")
	}
	if cfg.Mode == types.StreamingImpute && cfg.ShingleSize <= 1 {
		return nil, errs.New(errs.InvalidConfiguration, "preprocess.New", "STREAMING_IMPUTE requires shingleSize > 1")
	}
	frameDim := cfg.BaseDimension
	if cfg.Mode == types.TimeAugmented {
		frameDim++
	}
	p := &Preprocessor{
		cfg:        cfg,
		frameDim:   frameDim,
		dimensions: frameDim * cfg.ShingleSize,
		shingle:    make([]float64, frameDim*cfg.ShingleSize),
	}
	p.deviations = make([]*stats.Deviation, frameDim)
	for i := range p.deviations {
		d, err := stats.New(cfg.Discount)
		if err != nil {
			return nil, err
		}
		p.deviations[i] = d
	}
	if cfg.Transform == types.TransformSubtractMA {
		window := cfg.SubtractMAWindow
		if window <= 0 {
			window = 1
		}
		p.movingAvg = make([][]float64, frameDim)
		p.maPos = make([]int, frameDim)
		for i := range p.movingAvg {
			p.movingAvg[i] = make([]float64, window)
		}
	}
	return p, nil
}

// Dimensions returns D = frameDim * shingleSize, the vector length Forest
// expects.
func (p *Preprocessor) Dimensions() int { return p.dimensions }

func (p *Preprocessor) normalizing() bool {
	if p.cfg.StopNormalization > 0 && p.observations >= p.cfg.StopNormalization {
		return false
	}
	return true
}

// substituteInput fills missingIndices in input per cfg.Imputation,
// honored only under STREAMING_IMPUTE (spec 4.7); other modes return
// input unchanged. ZERO, PREVIOUS, and FIXED_VALUES are resolved here
// from already-seen data; RCF is resolved later, in imputeFrame, once
// the shingled point exists.
func (p *Preprocessor) substituteInput(input []float64, missingIndices []int) []float64 {
	if p.cfg.Mode != types.StreamingImpute || len(missingIndices) == 0 {
		return input
	}
	out := append([]float64(nil), input...)
	for _, idx := range missingIndices {
		if idx < 0 || idx >= len(out) {
			continue
		}
		switch p.cfg.Imputation {
		case types.ImputePrevious:
			if p.lastRawInput != nil {
				out[idx] = p.lastRawInput[idx]
			} else {
				out[idx] = 0
			}
		case types.ImputeFixedValues:
			if idx < len(p.cfg.FixedValues) {
				out[idx] = p.cfg.FixedValues[idx]
			} else {
				out[idx] = 0
			}
		default: // ZERO, RCF — RCF's real fill happens in imputeFrame
			out[idx] = 0
		}
	}
	return out
}

// imputeFrame refines fr's missing coordinates using the Forest's own
// ImputeMissingValues once fr has a full shingle to route through
// (spec 4.5/4.7's RCF imputation method); any other method, or a nil
// forest, leaves fr as substituteInput already left it.
func (p *Preprocessor) imputeFrame(fr []float64, missingIndices []int, f *forest.Forest) ([]float64, error) {
	if p.cfg.Mode != types.StreamingImpute || p.cfg.Imputation != types.ImputeRCF || f == nil || len(missingIndices) == 0 {
		return fr, nil
	}
	preview := append([]float64(nil), p.shingle[p.frameDim:]...)
	preview = append(preview, fr...)
	tailOffset := len(preview) - p.frameDim

	shingleIdx := make([]int, 0, len(missingIndices))
	for _, idx := range missingIndices {
		if idx >= 0 && idx < p.frameDim {
			shingleIdx = append(shingleIdx, tailOffset+idx)
		}
	}
	if len(shingleIdx) == 0 {
		return fr, nil
	}

	filled, err := f.ImputeMissingValues(preview, shingleIdx)
	if err != nil {
		return nil, err
	}
	out := append([]float64(nil), fr...)
	for _, si := range shingleIdx {
		out[si-tailOffset] = filled[si]
	}
	return out, nil
}

// frame applies the configured transform to one raw baseDimension input,
// returning a frameDim-length vector (with the inter-arrival gap
// appended under TIME_AUGMENTED).
func (p *Preprocessor) frame(input []float64, timestamp int64) ([]float64, error) {
	if len(input) != p.cfg.BaseDimension {
		return nil, errs.New(errs.DimensionMismatch, "preprocess.frame", "input length must equal baseDimension")
	}
	out := make([]float64, p.frameDim)
	for i, x := range input {
		out[i] = p.transformOne(i, x)
	}
	if p.cfg.Mode == types.TimeAugmented {
		gap := float64(0)
		if p.haveLast {
			gap = float64(timestamp - p.lastTimestamp)
		}
		out[p.frameDim-1] = gap
	}
	return out, nil
}

func (p *Preprocessor) transformOne(dim int, x float64) float64 {
	dev := p.deviations[dim]
	switch p.cfg.Transform {
	case types.TransformNone:
		return x
	case types.TransformWeighted:
		mean := dev.Mean()
		return p.cfg.WeightedTransformAlpha*x + (1-p.cfg.WeightedTransformAlpha)*mean
	case types.TransformDifference:
		return x - dev.Mean()
	case types.TransformNormalize:
		sd := dev.StdDev()
		if sd <= 0 {
			return 0
		}
		return (x - dev.Mean()) / sd
	case types.TransformNormalizeDifference:
		sd := dev.StdDev()
		if sd <= 0 {
			return 0
		}
		return (x - dev.Mean()) / sd
	case types.TransformSubtractMA:
		window := p.movingAvg[dim]
		avg := floats.Sum(window) / float64(len(window))
		return x - avg
	default:
		return x
	}
}

// GetScaledShingledInput returns the shingled, transformed input ready
// for Forest.Score, or nil while still warming up below
// StartNormalization (spec 4.7).
func (p *Preprocessor) GetScaledShingledInput(input []float64, timestamp int64, missingIndices []int, f *forest.Forest) ([]float64, error) {
	if p.observations < p.cfg.StartNormalization {
		return nil, nil
	}
	substituted := p.substituteInput(input, missingIndices)
	fr, err := p.frame(substituted, timestamp)
	if err != nil {
		return nil, err
	}
	fr, err = p.imputeFrame(fr, missingIndices, f)
	if err != nil {
		return nil, err
	}
	preview := append([]float64(nil), p.shingle[p.frameDim:]...)
	preview = append(preview, fr...)
	if p.shingleWarm < p.cfg.ShingleSize-1 {
		return nil, nil
	}
	return preview, nil
}

// Update commits the observation: updates per-dimension statistics,
// rotates the shingle, and (if forest is non-nil) calls forest.Update
// with the freshly committed shingle (spec 4.7).
func (p *Preprocessor) Update(input []float64, shingle []float64, timestamp int64, missingIndices []int, f *forest.Forest) error {
	if len(input) != p.cfg.BaseDimension {
		return errs.New(errs.DimensionMismatch, "preprocess.Update", "input length must equal baseDimension")
	}
	substituted := p.substituteInput(input, missingIndices)
	if p.normalizing() {
		for i, x := range substituted {
			p.deviations[i].Update(x)
		}
	}
	if p.cfg.Transform == types.TransformSubtractMA {
		for i, x := range substituted {
			p.movingAvg[i][p.maPos[i]] = x
			p.maPos[i] = (p.maPos[i] + 1) % len(p.movingAvg[i])
		}
	}

	fr, err := p.frame(substituted, timestamp)
	if err != nil {
		return err
	}
	fr, err = p.imputeFrame(fr, missingIndices, f)
	if err != nil {
		return err
	}
	copy(p.shingle, p.shingle[p.frameDim:])
	copy(p.shingle[p.dimensions-p.frameDim:], fr)
	p.shingleWarm++
	p.lastTimestamp = timestamp
	p.haveLast = true
	p.observations++
	p.lastRawInput = append(p.lastRawInput[:0], substituted...)

	if f != nil && shingle != nil {
		return f.Update(shingle)
	}
	return nil
}

// InvertForecastRange maps a forecast expressed in transformed space back
// to original units, applying the inverse scale/shift and integrating
// differences when differencing is active (spec 4.7).
func (p *Preprocessor) InvertForecastRange(rng *types.TimedRangeVector, timestamp int64) (*types.TimedRangeVector, error) {
	out := &types.TimedRangeVector{Timestamps: append([]int64(nil), rng.Timestamps...)}
	// running level for integrating DIFFERENCE/NORMALIZE_DIFFERENCE
	levels := make([]float64, p.cfg.BaseDimension)
	for i := range levels {
		levels[i] = p.deviations[i].Mean()
	}
	for _, rv := range rng.Ranges {
		out.Ranges = append(out.Ranges, p.invertOne(rv, levels))
	}
	return out, nil
}

func (p *Preprocessor) invertOne(rv *types.RangeVector, levels []float64) *types.RangeVector {
	out := types.NewRangeVector(len(rv.Values))
	for d := range rv.Values {
		dimIdx := d % p.cfg.BaseDimension
		dev := p.deviations[dimIdx]
		switch p.cfg.Transform {
		case types.TransformNone, types.TransformWeighted, types.TransformSubtractMA:
			out.Values[d], out.Upper[d], out.Lower[d] = rv.Values[d], rv.Upper[d], rv.Lower[d]
		case types.TransformNormalize:
			sd := dev.StdDev()
			out.Values[d] = rv.Values[d]*sd + dev.Mean()
			out.Upper[d] = rv.Upper[d]*sd + dev.Mean()
			out.Lower[d] = rv.Lower[d]*sd + dev.Mean()
		case types.TransformDifference:
			levels[dimIdx] += rv.Values[d]
			out.Values[d] = levels[dimIdx]
			out.Upper[d] = levels[dimIdx] + (rv.Upper[d] - rv.Values[d])
			out.Lower[d] = levels[dimIdx] + (rv.Lower[d] - rv.Values[d])
		case types.TransformNormalizeDifference:
			sd := dev.StdDev()
			levels[dimIdx] += rv.Values[d] * sd
			out.Values[d] = levels[dimIdx]
			out.Upper[d] = levels[dimIdx] + (rv.Upper[d]-rv.Values[d])*sd
			out.Lower[d] = levels[dimIdx] + (rv.Lower[d]-rv.Values[d])*sd
		}
	}
	return out
}
