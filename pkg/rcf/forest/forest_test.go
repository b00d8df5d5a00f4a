package forest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig(parallel bool, seed int64) Config {
	cfg := DefaultConfig()
	cfg.Dimensions = 3
	cfg.BaseDimension = 3
	cfg.ShingleSize = 1
	cfg.NumberOfTrees = 20
	cfg.SampleSize = 64
	cfg.ParallelExecution = parallel
	cfg.Seed = seed
	return cfg
}

func fillForest(t *testing.T, f *Forest, n int, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		v := []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		require.NoError(t, f.Update(v))
	}
}

func TestForestUpdateAndScore(t *testing.T) {
	f, err := New(baseConfig(false, 1))
	require.NoError(t, err)
	fillForest(t, f, 500, 1)

	inlier, err := f.Score([]float64{0, 0, 0})
	require.NoError(t, err)
	outlier, err := f.Score([]float64{50, 50, 50})
	require.NoError(t, err)
	assert.Greater(t, outlier, inlier)
}

func TestForestSequentialAndParallelScoresAgree(t *testing.T) {
	seqCfg := baseConfig(false, 2)
	parCfg := baseConfig(true, 2)

	seqForest, err := New(seqCfg)
	require.NoError(t, err)
	parForest, err := New(parCfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 300; i++ {
		v := []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		require.NoError(t, seqForest.Update(v))
		require.NoError(t, parForest.Update(v))
	}

	probe := []float64{2, -1, 0.5}
	seqScore, err := seqForest.Score(probe)
	require.NoError(t, err)
	parScore, err := parForest.Score(probe)
	require.NoError(t, err)
	assert.InDelta(t, seqScore, parScore, 1e-9)
}

func TestForestAttributionSumsToScore(t *testing.T) {
	f, err := New(baseConfig(false, 4))
	require.NoError(t, err)
	fillForest(t, f, 200, 4)

	probe := []float64{10, -10, 3}
	score, err := f.Score(probe)
	require.NoError(t, err)
	divec, err := f.Attribution(probe)
	require.NoError(t, err)
	assert.InDelta(t, score, divec.Sum(), 1e-9)
}

func TestForestDedupReusesPointIndex(t *testing.T) {
	f, err := New(baseConfig(false, 5))
	require.NoError(t, err)

	v := []float64{1, 2, 3}
	before := f.Points().Size()
	require.NoError(t, f.Update(v))
	require.NoError(t, f.Update(append([]float64(nil), v...)))
	after := f.Points().Size()
	// two updates of an identical vector should not grow the arena by 2
	// distinct entries (dedup reuses the same pointIndex).
	assert.LessOrEqual(t, after-before, 1)
}

func TestForestStateRoundTrip(t *testing.T) {
	f, err := New(baseConfig(false, 6))
	require.NoError(t, err)
	fillForest(t, f, 150, 6)

	snap := f.State()
	restored, err := FromState(snap, true)
	require.NoError(t, err)

	probe := []float64{1, 1, 1}
	want, err := f.Score(probe)
	require.NoError(t, err)
	got, err := restored.Score(probe)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-9)
}

func TestForestExtrapolateProducesHorizonRanges(t *testing.T) {
	cfg := baseConfig(false, 7)
	cfg.Dimensions = 6
	cfg.BaseDimension = 6
	f, err := New(cfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		v := make([]float64, 6)
		for d := range v {
			v[d] = rng.Float64()
		}
		require.NoError(t, f.Update(v))
	}

	shingle := make([]float64, 6)
	for i := range shingle {
		shingle[i] = rng.Float64()
	}
	trv, err := f.Extrapolate(shingle, 3, 2, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 3, trv.Horizon())
	for _, rv := range trv.Ranges {
		assert.Equal(t, 2, rv.Dimensions())
	}
}

func TestForestRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
