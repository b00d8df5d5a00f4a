package preprocess

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/rcforest/pkg/rcf/forest"
	"github.com/hed1ad/rcforest/pkg/rcf/types"
)

func TestPreprocessorWarmsUpBeforeStartNormalization(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDimension = 2
	cfg.ShingleSize = 3
	cfg.StartNormalization = 5
	p, err := New(cfg)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		shingle, err := p.GetScaledShingledInput([]float64{1, 2}, int64(i), nil, nil)
		require.NoError(t, err)
		assert.Nil(t, shingle)
		require.NoError(t, p.Update([]float64{1, 2}, nil, int64(i), nil, nil))
	}
}

func TestPreprocessorProducesShingleOnceWarm(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDimension = 1
	cfg.ShingleSize = 2
	cfg.StartNormalization = 1
	p, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, p.Update([]float64{1}, nil, 0, nil, nil))
	shingle, err := p.GetScaledShingledInput([]float64{2}, 1, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, shingle)
	assert.Len(t, shingle, 2)
}

func TestPreprocessorTimeAugmentedAppendsGap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDimension = 1
	cfg.ShingleSize = 1
	cfg.Mode = types.TimeAugmented
	cfg.StartNormalization = 0
	p, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Dimensions())

	require.NoError(t, p.Update([]float64{5}, nil, 100, nil, nil))
	shingle, err := p.GetScaledShingledInput([]float64{6}, 110, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, shingle)
	assert.InDelta(t, 10, shingle[1], 1e-9)
}

func TestPreprocessorNormalizeTransformUsesRunningStats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDimension = 1
	cfg.ShingleSize = 1
	cfg.Transform = types.TransformNormalize
	cfg.StartNormalization = 0
	p, err := New(cfg)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, p.Update([]float64{float64(i % 3)}, nil, int64(i), nil, nil))
	}
	shingle, err := p.GetScaledShingledInput([]float64{1}, 20, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, shingle)
}

func TestPreprocessorRejectsStreamingImputeWithoutShingling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDimension = 1
	cfg.ShingleSize = 1
	cfg.Mode = types.StreamingImpute
	_, err := New(cfg)
	require.Error(t, err)
}

func TestPreprocessorInvertForecastRangeDifferenceIntegrates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDimension = 1
	cfg.ShingleSize = 1
	cfg.Transform = types.TransformDifference
	cfg.StartNormalization = 0
	p, err := New(cfg)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Update([]float64{10}, nil, int64(i), nil, nil))
	}

	rv := types.NewRangeVector(1)
	rv.Values[0] = 0.5
	rv.Upper[0] = 1
	rv.Lower[0] = 0
	trv := &types.TimedRangeVector{Ranges: []*types.RangeVector{rv}, Timestamps: []int64{1}}

	out, err := p.InvertForecastRange(trv, 5)
	require.NoError(t, err)
	assert.InDelta(t, 10.5, out.Ranges[0].Values[0], 1e-9)
}

func TestPreprocessorImputeZeroFillsMissingDimension(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDimension = 2
	cfg.ShingleSize = 2
	cfg.Mode = types.StreamingImpute
	cfg.Imputation = types.ImputeZero
	cfg.StartNormalization = 0
	p, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, p.Update([]float64{7, 9}, nil, 0, nil, nil))
	require.NoError(t, p.Update([]float64{5, 42}, nil, 1, []int{1}, nil))

	shingle, err := p.GetScaledShingledInput([]float64{1, 1}, 2, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, shingle)
	// second committed frame's dim 1 was missing and ZERO-substituted,
	// so it must not carry through the raw 42 that was passed in.
	assert.InDelta(t, 0, shingle[1], 1e-9)
}

func TestPreprocessorImputePreviousReusesLastRawValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDimension = 1
	cfg.ShingleSize = 2
	cfg.Mode = types.StreamingImpute
	cfg.Imputation = types.ImputePrevious
	cfg.StartNormalization = 0
	p, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, p.Update([]float64{3}, nil, 0, nil, nil))
	require.NoError(t, p.Update([]float64{999}, nil, 1, []int{0}, nil))

	shingle, err := p.GetScaledShingledInput([]float64{4}, 2, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, shingle)
	assert.InDelta(t, 3, shingle[0], 1e-9)
}

func TestPreprocessorImputeFixedValuesUsesConfiguredFill(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDimension = 1
	cfg.ShingleSize = 2
	cfg.Mode = types.StreamingImpute
	cfg.Imputation = types.ImputeFixedValues
	cfg.FixedValues = []float64{-1}
	cfg.StartNormalization = 0
	p, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, p.Update([]float64{3}, nil, 0, nil, nil))
	require.NoError(t, p.Update([]float64{999}, nil, 1, []int{0}, nil))

	shingle, err := p.GetScaledShingledInput([]float64{4}, 2, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, shingle)
	assert.InDelta(t, -1, shingle[0], 1e-9)
}

func TestPreprocessorImputeRCFRoutesThroughForest(t *testing.T) {
	fcfg := forest.DefaultConfig()
	fcfg.Dimensions = 4
	fcfg.BaseDimension = 2
	fcfg.ShingleSize = 2
	fcfg.NumberOfTrees = 10
	fcfg.SampleSize = 32
	fcfg.Seed = 3
	f, err := forest.New(fcfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		require.NoError(t, f.Update([]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}))
	}

	cfg := DefaultConfig()
	cfg.BaseDimension = 2
	cfg.ShingleSize = 2
	cfg.Mode = types.StreamingImpute
	cfg.Imputation = types.ImputeRCF
	cfg.StartNormalization = 0
	p, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, p.Update([]float64{0, 0}, nil, 0, nil, f))
	shingle, err := p.GetScaledShingledInput([]float64{0, 0}, 1, []int{1}, f)
	require.NoError(t, err)
	require.NotNil(t, shingle)
	assert.False(t, math.IsNaN(shingle[3]))
}

func TestPreprocessorStandardModeIgnoresMissingIndices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDimension = 1
	cfg.ShingleSize = 1
	cfg.Imputation = types.ImputeZero
	cfg.StartNormalization = 0
	p, err := New(cfg)
	require.NoError(t, err)

	shingle, err := p.GetScaledShingledInput([]float64{42}, 0, []int{0}, nil)
	require.NoError(t, err)
	require.NotNil(t, shingle)
	assert.InDelta(t, 42, shingle[0], 1e-9)
}
