// Package rcf wires the Preprocessor, Forest, PredictorCorrector, and
// ErrorHandler into the single cohesive pipeline spec 6 exposes:
// Process, ProcessSequentially, and Extrapolate.
package rcf

import (
	"github.com/hed1ad/rcforest/pkg/rcf/errs"
	"github.com/hed1ad/rcforest/pkg/rcf/forecast"
	"github.com/hed1ad/rcforest/pkg/rcf/forest"
	"github.com/hed1ad/rcforest/pkg/rcf/predictor"
	"github.com/hed1ad/rcforest/pkg/rcf/preprocess"
	"github.com/hed1ad/rcforest/pkg/rcf/types"
)

// Config configures the whole pipeline; each component's own Config is
// embedded so callers can still reach component-specific tuning.
type Config struct {
	Forest     forest.Config
	Preprocess preprocess.Config
	Predictor  predictor.Config
	Forecast   forecast.Config

	// ForecastEnabled wires the ErrorHandler into Process/Extrapolate;
	// when false only anomaly detection runs.
	ForecastEnabled bool
}

// Core is the top-level pipeline: one Process call per input tuple.
type Core struct {
	cfg Config

	forest       *forest.Forest
	preprocessor *preprocess.Preprocessor
	predictor    *predictor.PredictorCorrector
	errorHandler *forecast.ErrorHandler

	totalUpdates  int64
	sequenceIndex int64
	lastAccepted  *types.ComputeDescriptor
}

// New validates cfg and wires a fresh Core.
func New(cfg Config) (*Core, error) {
	f, err := forest.New(cfg.Forest)
	if err != nil {
		return nil, err
	}
	pp, err := preprocess.New(cfg.Preprocess)
	if err != nil {
		return nil, err
	}
	pc, err := predictor.New(cfg.Predictor)
	if err != nil {
		return nil, err
	}
	c := &Core{cfg: cfg, forest: f, preprocessor: pp, predictor: pc}
	if cfg.ForecastEnabled {
		eh, err := forecast.New(cfg.Forecast)
		if err != nil {
			return nil, err
		}
		c.errorHandler = eh
	}
	return c, nil
}

// Process runs one input tuple through the full pipeline (spec 6): the
// Preprocessor shingles/transforms it, the Forest scores it, the
// PredictorCorrector grades and corrects it, the Forest is updated with
// the accepted point, and (if forecasting is enabled) the ErrorHandler
// folds in the actual now that it is known. Process is not
// transactional: Detect updates the PredictorCorrector's thresholder and
// run state before the Preprocessor and Forest are updated, and an error
// from a later step leaves those earlier updates in place.
func (c *Core) Process(input []float64, timestamp int64, missingIndices []int) (*types.AnomalyDescriptor, error) {
	desc, err := c.process(input, timestamp, missingIndices)
	if err != nil {
		return nil, err
	}
	return desc.ToAnomalyDescriptor(), nil
}

// ProcessSequentially runs Process over inputs in order, the additional
// precondition from spec 6 being that timestamps are strictly ascending.
// filter, when non-nil, is consulted per result; false drops that tuple's
// descriptor from the returned slice without stopping the run.
func (c *Core) ProcessSequentially(inputs [][]float64, timestamps []int64, filter func(*types.AnomalyDescriptor) bool) ([]*types.AnomalyDescriptor, error) {
	if len(inputs) != len(timestamps) {
		return nil, errs.New(errs.DimensionMismatch, "rcf.ProcessSequentially", "inputs and timestamps must have equal length")
	}
	var lastTs int64
	haveLast := false
	out := make([]*types.AnomalyDescriptor, 0, len(inputs))
	for i, v := range inputs {
		if haveLast && timestamps[i] <= lastTs {
			return nil, errs.New(errs.InvalidConfiguration, "rcf.ProcessSequentially", "timestamps must be strictly ascending")
		}
		lastTs, haveLast = timestamps[i], true
		desc, err := c.Process(v, timestamps[i], nil)
		if err != nil {
			return nil, err
		}
		if filter == nil || filter(desc) {
			out = append(out, desc)
		}
	}
	return out, nil
}

func (c *Core) process(input []float64, timestamp int64, missingIndices []int) (*types.ComputeDescriptor, error) {
	shingle, err := c.preprocessor.GetScaledShingledInput(input, timestamp, missingIndices, c.forest)
	if err != nil {
		return nil, err
	}

	desc := &types.ComputeDescriptor{
		TotalUpdates:      c.totalUpdates,
		InternalTimeStamp: c.sequenceIndex,
		InputTimestamp:    timestamp,
		SequenceIndex:     c.sequenceIndex,
		CurrentInput:      append([]float64(nil), input...),
		MissingIndices:    missingIndices,
	}

	if shingle != nil {
		desc.RCFPoint = shingle
	}
	// an empty forest cannot score yet: the tuple keeps grade 0 and score 0
	if shingle != nil && c.forest.Points().Size() > 0 {
		if err := c.predictor.Detect(desc, c.forest); err != nil {
			return nil, err
		}
	}

	if err := c.preprocessor.Update(input, desc.RCFPoint, timestamp, missingIndices, c.forest); err != nil {
		return nil, err
	}

	if c.errorHandler != nil && desc.RCFPoint != nil {
		if err := c.errorHandler.Observe(c.sequenceIndex, desc.RCFPoint); err != nil {
			return nil, err
		}
	}

	c.totalUpdates++
	c.sequenceIndex++
	if desc.RCFPoint != nil {
		c.lastAccepted = desc
	}
	return desc, nil
}

// Extrapolate produces a calibrated range forecast for horizon blocks of
// the configured base dimension, applying ErrorHandler calibration and
// Preprocessor unit-inversion when those are wired in (spec 6).
func (c *Core) Extrapolate(horizon int, correct bool, centrality float64) (*types.ForecastDescriptor, error) {
	baseDim := c.cfg.Forest.BaseDimension
	shingle := make([]float64, c.cfg.Forest.Dimensions)
	if c.lastAccepted != nil && c.lastAccepted.RCFPoint != nil {
		copy(shingle, c.lastAccepted.RCFPoint)
	}

	raw, err := c.forest.Extrapolate(shingle, horizon, baseDim, centrality)
	if err != nil {
		return nil, err
	}

	calibrated := raw
	if correct && c.errorHandler != nil {
		calibrated = c.errorHandler.CalibrateNewForecast(raw)
		if err := c.errorHandler.StoreForecast(c.sequenceIndex, calibrated); err != nil {
			return nil, err
		}
	}

	inverted, err := c.preprocessor.InvertForecastRange(calibrated, c.sequenceIndex)
	if err != nil {
		return nil, err
	}

	desc := &types.ComputeDescriptor{
		TotalUpdates:      c.totalUpdates,
		InternalTimeStamp: c.sequenceIndex,
		SequenceIndex:     c.sequenceIndex,
		TimedForecast:     inverted,
	}
	if c.errorHandler != nil {
		desc.ObservedErrorDistribution = c.errorHandler.ObservedErrorDistribution()
		desc.ErrorRMSE = c.errorHandler.ErrorRMSE()
		desc.ErrorMean = c.errorHandler.ErrorMean()
		desc.IntervalPrecision = c.errorHandler.IntervalPrecision()
	}
	return desc.ToForecastDescriptor(), nil
}
