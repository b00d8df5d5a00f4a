package predictor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/rcforest/pkg/rcf/forest"
	"github.com/hed1ad/rcforest/pkg/rcf/types"
)

func newTestForest(t *testing.T, seed int64) *forest.Forest {
	t.Helper()
	cfg := forest.DefaultConfig()
	cfg.Dimensions = 4
	cfg.BaseDimension = 4
	cfg.ShingleSize = 1
	cfg.NumberOfTrees = 30
	cfg.SampleSize = 64
	cfg.Seed = seed
	f, err := forest.New(cfg)
	require.NoError(t, err)
	return f
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Dimensions = 4
	cfg.ShingleSize = 1
	cfg.Thresholder.MinimumSamples = 20
	cfg.Thresholder.ZFactor = 2.0
	cfg.ZFactor = 2.0
	cfg.Thresholder.UpperZFactor = 6.0
	cfg.Thresholder.LowerThreshold = 0.7
	cfg.Thresholder.InitialThreshold = 1.0
	cfg.Thresholder.IntermediateTermFraction = 0.5
	cfg.Thresholder.PrimaryDiscount = 0
	cfg.Thresholder.SecondaryDiscount = 0
	cfg.Thresholder.HorizonRatio = 0
	return cfg
}

func warmUp(t *testing.T, f *forest.Forest, pc *PredictorCorrector, n int, seed int64) int64 {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	var seq int64
	for i := 0; i < n; i++ {
		v := []float64{rng.NormFloat64() * 0.1, rng.NormFloat64() * 0.1, rng.NormFloat64() * 0.1, rng.NormFloat64() * 0.1}
		require.NoError(t, f.Update(v))
		desc := &types.ComputeDescriptor{SequenceIndex: seq, RCFPoint: v}
		require.NoError(t, pc.Detect(desc, f))
		seq++
	}
	return seq
}

func TestPredictorGradesInliersZeroAfterWarmup(t *testing.T) {
	f := newTestForest(t, 1)
	pc, err := New(testConfig())
	require.NoError(t, err)
	seq := warmUp(t, f, pc, 300, 1)

	rng := rand.New(rand.NewSource(99))
	zeroCount := 0
	for i := 0; i < 20; i++ {
		v := []float64{rng.NormFloat64() * 0.1, rng.NormFloat64() * 0.1, rng.NormFloat64() * 0.1, rng.NormFloat64() * 0.1}
		require.NoError(t, f.Update(v))
		desc := &types.ComputeDescriptor{SequenceIndex: seq, RCFPoint: v}
		require.NoError(t, pc.Detect(desc, f))
		seq++
		if desc.AnomalyGrade == 0 {
			zeroCount++
		}
	}
	assert.Greater(t, zeroCount, 15)
}

func TestPredictorFlagsInjectedSpike(t *testing.T) {
	f := newTestForest(t, 2)
	pc, err := New(testConfig())
	require.NoError(t, err)
	seq := warmUp(t, f, pc, 300, 2)

	spike := []float64{50, 50, 50, 50}
	require.NoError(t, f.Update(spike))
	desc := &types.ComputeDescriptor{SequenceIndex: seq, RCFPoint: spike}
	require.NoError(t, pc.Detect(desc, f))

	assert.Greater(t, desc.AnomalyGrade, 0.0)
	assert.Greater(t, desc.RCFScore, desc.Threshold)
}

func TestPredictorAcceptedAnomalyPopulatesExpectedPoint(t *testing.T) {
	f := newTestForest(t, 3)
	pc, err := New(testConfig())
	require.NoError(t, err)
	seq := warmUp(t, f, pc, 300, 3)

	spike := []float64{60, -60, 60, -60}
	require.NoError(t, f.Update(spike))
	desc := &types.ComputeDescriptor{SequenceIndex: seq, RCFPoint: spike}
	require.NoError(t, pc.Detect(desc, f))

	if desc.AnomalyGrade > 0 {
		require.NotNil(t, desc.ExpectedRCFPoint)
		assert.Len(t, desc.ExpectedRCFPoint, 4)
		assert.True(t, desc.StartOfAnomaly)
	}
}

func TestPredictorStateRoundTripAgreesOnNextDetect(t *testing.T) {
	f := newTestForest(t, 4)
	pc, err := New(testConfig())
	require.NoError(t, err)
	seq := warmUp(t, f, pc, 150, 4)

	snap := pc.State()
	restored := FromState(snap)

	probe := []float64{3, -3, 3, -3}
	descA := &types.ComputeDescriptor{SequenceIndex: seq, RCFPoint: probe}
	descB := &types.ComputeDescriptor{SequenceIndex: seq, RCFPoint: probe}
	require.NoError(t, pc.Detect(descA, f))
	require.NoError(t, restored.Detect(descB, f))

	assert.InDelta(t, descA.Threshold, descB.Threshold, 1e-9)
	assert.InDelta(t, descA.AnomalyGrade, descB.AnomalyGrade, 1e-9)
	assert.InDelta(t, descA.RCFScore, descB.RCFScore, 1e-9)
}

func TestPredictorRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	cfg := testConfig()
	cfg.Dimensions = 5
	cfg.ShingleSize = 2
	_, err = New(cfg)
	require.Error(t, err)
}

func TestThresholderRampsBeforeMinimumSamples(t *testing.T) {
	cfg := DefaultThresholderConfig()
	cfg.MinimumSamples = 1000
	cfg.InitialThreshold = 1.0
	cfg.LowerThreshold = 0.5
	th, err := NewThresholder(cfg)
	require.NoError(t, err)

	_, threshold := th.GetAnomalyGrade(0.2, cfg.ZFactor)
	assert.InDelta(t, cfg.InitialThreshold, threshold, 0.5)
}

func TestThresholderGradeSaturatesAtOne(t *testing.T) {
	cfg := DefaultThresholderConfig()
	cfg.MinimumSamples = 5
	cfg.PrimaryDiscount = 0
	cfg.SecondaryDiscount = 0
	cfg.HorizonRatio = 0
	th, err := NewThresholder(cfg)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		th.Update(1.0)
	}
	grade, _ := th.GetAnomalyGrade(1000.0, cfg.ZFactor)
	assert.Equal(t, 1.0, grade)
}

func TestThresholderRejectsBadFactors(t *testing.T) {
	cfg := DefaultThresholderConfig()
	cfg.UpperZFactor = cfg.ZFactor
	_, err := NewThresholder(cfg)
	require.Error(t, err)
}
