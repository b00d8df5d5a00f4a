// Package rcfdetector adapts the streaming random cut forest core into the
// detectors.StreamDetector shape the rest of the module drives.
package rcfdetector

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"sort"
	"sync"

	"github.com/hed1ad/rcforest/pkg/detectors"
	"github.com/hed1ad/rcforest/pkg/rcf"
	"github.com/hed1ad/rcforest/pkg/rcf/forecast"
	"github.com/hed1ad/rcforest/pkg/rcf/forest"
	"github.com/hed1ad/rcforest/pkg/rcf/predictor"
	"github.com/hed1ad/rcforest/pkg/rcf/preprocess"
	"github.com/hed1ad/rcforest/pkg/rcf/types"
)

// Detector is a detectors.StreamDetector backed by rcf.Core. Unlike a
// batch model, a Detector keeps learning after Fit: every PredictOne call
// both scores and updates the forest, matching the streaming contract
// spec 1 calls for.
type Detector struct {
	mu sync.RWMutex

	nTrees        int
	sampleSize    int
	shingleSize   int
	seed          int64
	contamination float64
	threshold     float64
	forecasting   bool
	errorHorizon  int
	forecastLead  int

	core        *rcf.Core
	baseDim     int
	sequence    int64
	trainedOnce bool
}

// Option configures a Detector.
type Option func(*Detector)

// WithTrees sets the number of trees in the underlying forest.
func WithTrees(n int) Option {
	return func(d *Detector) { d.nTrees = n }
}

// WithSampleSize sets each tree's reservoir sample size.
func WithSampleSize(n int) Option {
	return func(d *Detector) { d.sampleSize = n }
}

// WithShingleSize sets the number of consecutive frames shingled together.
func WithShingleSize(n int) Option {
	return func(d *Detector) { d.shingleSize = n }
}

// WithContamination sets the expected proportion of anomalies, used to
// pick a grade threshold from the training data in Fit.
func WithContamination(c float64) Option {
	return func(d *Detector) { d.contamination = c }
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(d *Detector) { d.seed = seed }
}

// WithForecasting enables the error handler and conditional-forecast
// suppression path, tracking errorHorizon past actuals per forecastLead
// lead times.
func WithForecasting(errorHorizon, forecastLead int) Option {
	return func(d *Detector) {
		d.forecasting = true
		d.errorHorizon = errorHorizon
		d.forecastLead = forecastLead
	}
}

// New creates a Detector with the given options. The forest itself is not
// allocated until Fit learns the input dimensionality.
func New(opts ...Option) *Detector {
	d := &Detector{
		nTrees:        50,
		sampleSize:    256,
		shingleSize:   1,
		seed:          42,
		contamination: 0.1,
		threshold:     0.5,
		errorHorizon:  64,
		forecastLead:  4,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fit allocates the forest for data's dimensionality and streams data
// through it in order, treating each row as a successive observation.
func (d *Detector) Fit(data [][]float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(data) == 0 {
		return errors.New("rcfdetector: empty training data")
	}
	baseDim := len(data[0])

	fcfg := forest.DefaultConfig()
	fcfg.NumberOfTrees = d.nTrees
	fcfg.SampleSize = d.sampleSize
	fcfg.BaseDimension = baseDim
	fcfg.ShingleSize = d.shingleSize
	fcfg.Dimensions = baseDim * d.shingleSize
	fcfg.Seed = d.seed

	ppcfg := preprocess.DefaultConfig()
	ppcfg.BaseDimension = baseDim
	ppcfg.ShingleSize = d.shingleSize

	pcfg := predictor.DefaultConfig()
	pcfg.Dimensions = fcfg.Dimensions
	pcfg.ShingleSize = d.shingleSize

	cfg := rcf.Config{
		Forest:          fcfg,
		Preprocess:      ppcfg,
		Predictor:       pcfg,
		ForecastEnabled: d.forecasting,
	}
	if d.forecasting {
		cfg.Forecast = forecast.Config{
			Dimensions:      fcfg.Dimensions,
			ErrorHorizon:    d.errorHorizon,
			ForecastHorizon: d.forecastLead,
			Calibration:     types.CalibrationSimple,
			Interpolate:     true,
		}
	}

	core, err := rcf.New(cfg)
	if err != nil {
		return err
	}
	d.core = core
	d.baseDim = baseDim
	d.sequence = 0
	d.trainedOnce = true

	grades := make([]float64, 0, len(data))
	for _, row := range data {
		desc, err := d.core.Process(row, d.sequence, nil)
		if err != nil {
			return err
		}
		d.sequence++
		grades = append(grades, desc.AnomalyGrade)
	}

	if d.contamination > 0 {
		d.threshold = percentile(grades, 100*(1-d.contamination))
	}
	return nil
}

// Predict returns anomaly grades for data, streaming each row through the
// forest in order (so later rows see the effect of earlier ones).
func (d *Detector) Predict(data [][]float64) ([]float64, error) {
	scores := make([]float64, len(data))
	for i, row := range data {
		score, err := d.PredictOne(row)
		if err != nil {
			return nil, err
		}
		scores[i] = score
	}
	return scores, nil
}

// PredictOne scores a single observation and folds it into the forest.
func (d *Detector) PredictOne(sample []float64) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.trainedOnce || d.core == nil {
		return 0, errors.New("rcfdetector: model not trained")
	}
	if len(sample) != d.baseDim {
		return 0, errors.New("rcfdetector: dimension mismatch")
	}

	desc, err := d.core.Process(sample, d.sequence, nil)
	if err != nil {
		return 0, err
	}
	d.sequence++
	return desc.AnomalyGrade, nil
}

// PredictStream processes samples from a channel and emits Scores.
func (d *Detector) PredictStream(ctx context.Context, input <-chan []float64, output chan<- detectors.Score) error {
	d.mu.RLock()
	trained := d.trainedOnce
	d.mu.RUnlock()
	if !trained {
		return errors.New("rcfdetector: model not trained")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample, ok := <-input:
			if !ok {
				return nil
			}
			score, err := d.PredictOne(sample)
			if err != nil {
				continue
			}
			d.mu.RLock()
			threshold := d.threshold
			d.mu.RUnlock()
			select {
			case output <- detectors.Score{
				Value:     score,
				IsAnomaly: score >= threshold,
				Features:  sample,
			}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// snapshot is the gob-serializable form Save/Load round-trip through.
type snapshot struct {
	NTrees        int
	SampleSize    int
	ShingleSize   int
	Seed          int64
	Contamination float64
	Threshold     float64
	Forecasting   bool
	ErrorHorizon  int
	ForecastLead  int
	BaseDim       int
	Sequence      int64
	Core          rcf.State
}

// Save serializes the trained model, including the forest's full sampler
// and tree state, to bytes.
func (d *Detector) Save() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.trainedOnce || d.core == nil {
		return nil, errors.New("rcfdetector: model not trained")
	}

	snap := snapshot{
		NTrees:        d.nTrees,
		SampleSize:    d.sampleSize,
		ShingleSize:   d.shingleSize,
		Seed:          d.seed,
		Contamination: d.contamination,
		Threshold:     d.threshold,
		Forecasting:   d.forecasting,
		ErrorHorizon:  d.errorHorizon,
		ForecastLead:  d.forecastLead,
		BaseDim:       d.baseDim,
		Sequence:      d.sequence,
		Core:          d.core.State(),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load deserializes a trained model from bytes, replacing this Detector's
// state and configuration.
func (d *Detector) Load(data []byte) error {
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}

	core, err := rcf.FromState(snap.Core, true)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.nTrees = snap.NTrees
	d.sampleSize = snap.SampleSize
	d.shingleSize = snap.ShingleSize
	d.seed = snap.Seed
	d.contamination = snap.Contamination
	d.threshold = snap.Threshold
	d.forecasting = snap.Forecasting
	d.errorHorizon = snap.ErrorHorizon
	d.forecastLead = snap.ForecastLead
	d.baseDim = snap.BaseDim
	d.sequence = snap.Sequence
	d.core = core
	d.trainedOnce = true
	return nil
}

// Threshold returns the current anomaly-grade classification cutoff.
func (d *Detector) Threshold() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

// SetThreshold updates the anomaly-grade classification cutoff.
func (d *Detector) SetThreshold(t float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = t
}

// Extrapolate forecasts horizon blocks ahead of the last processed point.
func (d *Detector) Extrapolate(horizon int, correct bool, centrality float64) (*types.ForecastDescriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.trainedOnce || d.core == nil {
		return nil, errors.New("rcfdetector: model not trained")
	}
	return d.core.Extrapolate(horizon, correct, centrality)
}

func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)-1) * p / 100)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

var _ detectors.StreamDetector = (*Detector)(nil)
