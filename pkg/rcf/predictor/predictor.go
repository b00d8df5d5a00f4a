// Package predictor implements the PredictorCorrector of spec 4.8: it
// turns a raw forest score into a suppressed-or-accepted AnomalyGrade,
// reconstructing the expected point and attributing the grade across the
// shingle when an anomaly is accepted.
package predictor

import (
	"math"

	"github.com/hed1ad/rcforest/pkg/rcf/errs"
	"github.com/hed1ad/rcforest/pkg/rcf/forest"
	"github.com/hed1ad/rcforest/pkg/rcf/stats"
	"github.com/hed1ad/rcforest/pkg/rcf/types"
)

// Config configures a PredictorCorrector.
type Config struct {
	Dimensions    int
	ShingleSize   int
	Scoring       types.ScoringStrategy
	ZFactor       float64
	Thresholder   ThresholderConfig
	NoiseDiscount float64

	// NoiseFactor: a corrected shingle whose every entry is within
	// noiseFactor standard deviations of its running mean is graded 0
	// before any threshold test (spec 4.8 step "centered-transform
	// pass").
	NoiseFactor float64

	// TriggerScoreFraction and TriggerThresholdFactor gate the "trigger
	// test": the gap between observed and expected score must exceed
	// both a fraction of the last accepted anomaly score and a multiple
	// of the current threshold, scaled per dimension.
	TriggerScoreFraction   float64
	TriggerThresholdFactor float64

	// SamplingSupport is the minimum fraction of neighboring mass that
	// must already resemble the expected point before a conditional
	// forecast suppresses the grade.
	SamplingSupport             float64
	ConditionalForecastEnabled bool

	// DefaultRunAllowed is the number of consecutive accepted anomalies
	// before consistent drift is considered for suppression.
	DefaultRunAllowed int64
	IgnoreDrift       bool
}

// DefaultConfig returns the spec 4.8 defaults; callers must still set
// Dimensions and ShingleSize.
func DefaultConfig() Config {
	return Config{
		ShingleSize:                1,
		Scoring:                    types.ExpectedInverseDepth,
		ZFactor:                    2.5,
		Thresholder:                DefaultThresholderConfig(),
		NoiseDiscount:              1e-3,
		NoiseFactor:                0.1,
		TriggerScoreFraction:       0.3,
		TriggerThresholdFactor:     1.2,
		SamplingSupport:            0.1,
		ConditionalForecastEnabled: true,
		DefaultRunAllowed:          20,
		IgnoreDrift:                false,
	}
}

// PredictorCorrector is the spec 4.8 component.
type PredictorCorrector struct {
	cfg         Config
	thresholder *BasicThresholder

	actualDeviation   []*stats.Deviation // per shingled dimension, tracks corrected.RCFPoint
	lastAccepted      *types.ComputeDescriptor
	lastAnomalyScore  float64
	runLength         int64
	alertedThisDrift  bool
}

// New validates cfg and allocates a PredictorCorrector.
func New(cfg Config) (*PredictorCorrector, error) {
	if cfg.Dimensions <= 0 || cfg.ShingleSize <= 0 {
		return nil, errs.New(errs.InvalidConfiguration, "predictor.New", "dimensions and shingleSize must be positive")
	}
	if cfg.Dimensions%cfg.ShingleSize != 0 {
		return nil, errs.New(errs.InvalidConfiguration, "predictor.New", "dimensions must be a multiple of shingleSize")
	}
	th, err := NewThresholder(cfg.Thresholder)
	if err != nil {
		return nil, err
	}
	pc := &PredictorCorrector{cfg: cfg, thresholder: th}
	pc.actualDeviation = make([]*stats.Deviation, cfg.Dimensions)
	for i := range pc.actualDeviation {
		d, err := stats.New(cfg.NoiseDiscount)
		if err != nil {
			return nil, err
		}
		pc.actualDeviation[i] = d
	}
	return pc, nil
}

func (pc *PredictorCorrector) baseDimension() int { return pc.cfg.Dimensions / pc.cfg.ShingleSize }

// Detect runs the spec 4.8 algorithm against desc, populating its Forest
// and PredictorCorrector output fields. desc.RCFPoint must already hold
// the shingled point; desc.RCFScore and desc.Attribution are computed by
// Detect itself via f.
func (pc *PredictorCorrector) Detect(desc *types.ComputeDescriptor, f *forest.Forest) error {
	score, attribution, err := pc.computeScore(desc.RCFPoint, f)
	if err != nil {
		return err
	}
	desc.RCFScore = score
	desc.Attribution = attribution

	for i, x := range desc.RCFPoint {
		pc.actualDeviation[i].Update(x)
	}

	grade, threshold := pc.thresholder.GetAnomalyGrade(score, pc.cfg.ZFactor)
	desc.Threshold = threshold
	desc.InHighScoreRegion = score >= threshold

	corrected := pc.applyPastCorrection(desc)

	if pc.isNoise(corrected) {
		pc.accept(desc, score, 0, types.CorrectionNoise)
		return nil
	}

	if grade <= 0 {
		pc.accept(desc, score, 0, types.CorrectionNone)
		return nil
	}

	correctedScore := score
	if corrected != nil {
		correctedScore, err = f.Score(corrected)
		if err != nil {
			return err
		}
		desc.RCFPoint = corrected
	}

	attr, err := f.Attribution(desc.RCFPoint)
	if err != nil {
		return err
	}
	relIdx, contributors := topAttributionSlice(attr, pc.cfg.ShingleSize, pc.baseDimension())
	desc.RelativeIndex = relIdx

	expectedPoint, err := f.ImputeMissingValues(desc.RCFPoint, contributors)
	if err != nil {
		return err
	}
	expectedScore, err := f.Score(expectedPoint)
	if err != nil {
		return err
	}
	differentialRemainder := correctedScore - expectedScore

	if !pc.triggerTest(differentialRemainder, threshold, desc.RCFPoint, expectedPoint) {
		pc.accept(desc, score, 0, types.CorrectionAnomalyInShingle)
		return nil
	}

	if pc.withinUncertaintyBox(desc.RCFPoint, expectedPoint) {
		pc.accept(desc, score, 0, types.CorrectionForecast)
		return nil
	}

	if pc.cfg.ConditionalForecastEnabled {
		density, err := f.SimpleDensity(expectedPoint)
		if err != nil {
			return err
		}
		support := density.Sum()
		if support > pc.cfg.SamplingSupport*float64(len(desc.RCFPoint)) {
			pc.accept(desc, score, 0, types.CorrectionConditionalForecast)
			return nil
		}
	}

	if pc.runLength > pc.cfg.DefaultRunAllowed && pc.isConsistentDrift(desc.RCFPoint, expectedPoint) {
		if pc.cfg.IgnoreDrift && !pc.alertedThisDrift {
			pc.alertedThisDrift = true
		} else {
			pc.accept(desc, score, 0, types.CorrectionDataDrift)
			return nil
		}
		desc.CorrectionMode = types.CorrectionAlertOnce
	} else {
		pc.alertedThisDrift = false
	}

	attr.Renormalize(score)
	desc.Attribution = attr
	desc.ExpectedRCFPoint = expectedPoint
	desc.StartOfAnomaly = pc.lastAccepted == nil || pc.lastAccepted.AnomalyGrade == 0
	desc.AnomalyGrade = grade
	if desc.CorrectionMode != types.CorrectionAlertOnce {
		desc.CorrectionMode = types.CorrectionNone
	}
	pc.runLength++
	pc.thresholder.Update(score)
	pc.lastAnomalyScore = score
	pc.lastAccepted = desc
	return nil
}

// accept finalizes a suppressed (grade 0, non-NONE mode) or neutral
// (grade 0, NONE mode) descriptor, folding score into the thresholder and
// resetting the consecutive-anomaly run length.
func (pc *PredictorCorrector) accept(desc *types.ComputeDescriptor, score, grade float64, mode types.CorrectionMode) {
	desc.AnomalyGrade = grade
	desc.CorrectionMode = mode
	pc.thresholder.Update(score)
	pc.runLength = 0
	pc.lastAccepted = desc
}

// computeScore dispatches on Scoring. EXPECTED_INVERSE_DEPTH returns the
// forest's native tree-depth score unmodified. The other three strategies
// all blend it with SimpleDensity's per-dimension density gap, a proxy
// for nearest-neighbor distance, but differ in how: DISTANCE splits the
// two functionals evenly; MULTI_MODE leans on the native score and uses
// density only to nudge it, trading recall for precision; MULTI_MODE_RECALL
// takes whichever of the two functionals is more alarmed, since a point
// only needs one scoring mode to flag it as anomalous.
func (pc *PredictorCorrector) computeScore(v []float64, f *forest.Forest) (float64, *types.DiVector, error) {
	score, err := f.Score(v)
	if err != nil {
		return 0, nil, err
	}
	attribution, err := f.Attribution(v)
	if err != nil {
		return 0, nil, err
	}
	switch pc.cfg.Scoring {
	case types.Distance:
		density, err := f.SimpleDensity(v)
		if err != nil {
			return 0, nil, err
		}
		score = 0.5*score + 0.5*density.Sum()
	case types.MultiMode:
		density, err := f.SimpleDensity(v)
		if err != nil {
			return 0, nil, err
		}
		score = 0.7*score + 0.3*density.Sum()
	case types.MultiModeRecall:
		density, err := f.SimpleDensity(v)
		if err != nil {
			return 0, nil, err
		}
		score = math.Max(score, density.Sum())
	}
	return score, attribution, nil
}

// applyPastCorrection replaces the trailing block of desc.RCFPoint that
// overlaps the last accepted anomaly's expected point, when that anomaly
// is still within the current shingle window; it returns nil when no
// correction applies.
func (pc *PredictorCorrector) applyPastCorrection(desc *types.ComputeDescriptor) []float64 {
	if pc.lastAccepted == nil || pc.lastAccepted.ExpectedRCFPoint == nil {
		return nil
	}
	distanceBack := desc.SequenceIndex - pc.lastAccepted.SequenceIndex
	if distanceBack < 0 || distanceBack >= int64(pc.cfg.ShingleSize) {
		return nil
	}
	base := pc.baseDimension()
	blockIdx := int(int64(pc.cfg.ShingleSize) - 1 - distanceBack)
	start := blockIdx * base
	end := start + base
	if start < 0 || end > len(desc.RCFPoint) || end > len(pc.lastAccepted.ExpectedRCFPoint) {
		return nil
	}
	corrected := append([]float64(nil), desc.RCFPoint...)
	copy(corrected[start:end], pc.lastAccepted.ExpectedRCFPoint[start:end])
	return corrected
}

// isNoise reports whether every entry of the (possibly corrected) point
// lies within noiseFactor standard deviations of its running mean.
func (pc *PredictorCorrector) isNoise(corrected []float64) bool {
	if corrected == nil {
		return false
	}
	for i, x := range corrected {
		sd := pc.actualDeviation[i].StdDev()
		if sd <= 0 {
			continue
		}
		if math.Abs(x-pc.actualDeviation[i].Mean()) > pc.cfg.NoiseFactor*sd {
			return false
		}
	}
	return true
}

// triggerTest reports whether the gap between observed and expected
// score is large enough, relative both to the last accepted anomaly
// score and to the current threshold, to warrant continuing past this
// candidate anomaly rather than attributing it entirely to an
// already-reported anomaly elsewhere in the shingle.
func (pc *PredictorCorrector) triggerTest(differentialRemainder, threshold float64, observed, expected []float64) bool {
	if pc.lastAnomalyScore > 0 && differentialRemainder <= pc.cfg.TriggerScoreFraction*pc.lastAnomalyScore {
		return false
	}
	gap := l1Distance(observed, expected)
	if gap <= 0 {
		return differentialRemainder > pc.cfg.TriggerThresholdFactor*threshold
	}
	scaled := differentialRemainder * float64(len(observed)) / gap
	return scaled > pc.cfg.TriggerThresholdFactor*threshold
}

// withinUncertaintyBox reports whether observed lies within one noise
// standard deviation of expected on every coordinate, meaning it is
// explained by forecast uncertainty rather than a genuine anomaly.
func (pc *PredictorCorrector) withinUncertaintyBox(observed, expected []float64) bool {
	for i := range observed {
		sd := pc.actualDeviation[i].StdDev()
		if sd <= 0 {
			sd = 1
		}
		if math.Abs(observed[i]-expected[i]) > sd {
			return false
		}
	}
	return true
}

// isConsistentDrift reports whether observed is displaced from expected
// in the same direction, coordinate by coordinate, that the running mean
// already reflects -- the signature of a slow level shift rather than a
// one-off spike.
func (pc *PredictorCorrector) isConsistentDrift(observed, expected []float64) bool {
	agree, total := 0, 0
	for i := range observed {
		diff := observed[i] - expected[i]
		if diff == 0 {
			continue
		}
		total++
		meanDiff := pc.actualDeviation[i].Mean() - expected[i]
		if (diff > 0) == (meanDiff > 0) {
			agree++
		}
	}
	if total == 0 {
		return false
	}
	return float64(agree)/float64(total) > 0.5
}

func l1Distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}

// topAttributionSlice finds the shingle block with the largest combined
// attribution and returns its relative index (0 = most recent) along
// with the coordinate indices in that block, for use as
// Forest.ImputeMissingValues' missingIndices.
func topAttributionSlice(attribution *types.DiVector, shingleSize, baseDimension int) (int, []int) {
	bestBlock, bestSum := shingleSize-1, -math.MaxFloat64
	for block := 0; block < shingleSize; block++ {
		sum := 0.0
		start := block * baseDimension
		for i := start; i < start+baseDimension; i++ {
			sum += attribution.HighLowSum(i)
		}
		if sum > bestSum {
			bestSum = sum
			bestBlock = block
		}
	}
	indices := make([]int, baseDimension)
	start := bestBlock * baseDimension
	for i := range indices {
		indices[i] = start + i
	}
	relativeIndex := shingleSize - 1 - bestBlock
	return relativeIndex, indices
}
