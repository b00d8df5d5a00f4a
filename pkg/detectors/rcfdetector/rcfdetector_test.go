package rcfdetector

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/rcforest/pkg/detectors"
)

func inlierBatch(n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	data := make([][]float64, n)
	for i := range data {
		data[i] = []float64{rng.NormFloat64() * 0.1, rng.NormFloat64() * 0.1, rng.NormFloat64() * 0.1}
	}
	return data
}

func TestDetectorFitThenPredictFlagsSpike(t *testing.T) {
	d := New(
		WithTrees(20),
		WithSampleSize(64),
		WithContamination(0.05),
		WithSeed(7),
	)

	require.NoError(t, d.Fit(inlierBatch(300, 1)))

	rest := inlierBatch(20, 2)
	rest = append(rest, []float64{50, 50, 50})
	scores, err := d.Predict(rest)
	require.NoError(t, err)
	require.Len(t, scores, 21)
	assert.Greater(t, scores[len(scores)-1], d.Threshold())
}

func TestDetectorPredictOneRejectsUntrained(t *testing.T) {
	d := New()
	_, err := d.PredictOne([]float64{1, 2, 3})
	require.Error(t, err)
}

func TestDetectorPredictOneRejectsDimensionMismatch(t *testing.T) {
	d := New(WithTrees(10), WithSampleSize(32))
	require.NoError(t, d.Fit(inlierBatch(50, 3)))
	_, err := d.PredictOne([]float64{1, 2})
	require.Error(t, err)
}

func TestDetectorSaveLoadRoundTripAgreesOnNextScore(t *testing.T) {
	d := New(WithTrees(15), WithSampleSize(48), WithSeed(9))
	require.NoError(t, d.Fit(inlierBatch(150, 4)))

	blob, err := d.Save()
	require.NoError(t, err)

	restored := New()
	require.NoError(t, restored.Load(blob))

	probe := []float64{0, 0, 0}
	scoreA, err := d.PredictOne(probe)
	require.NoError(t, err)
	scoreB, err := restored.PredictOne(probe)
	require.NoError(t, err)
	assert.InDelta(t, scoreA, scoreB, 1e-9)
}

func TestDetectorPredictStreamEmitsScores(t *testing.T) {
	d := New(WithTrees(10), WithSampleSize(32), WithSeed(5))
	require.NoError(t, d.Fit(inlierBatch(100, 6)))

	input := make(chan []float64, 5)
	output := make(chan detectors.Score, 5)
	for _, v := range inlierBatch(5, 7) {
		input <- v
	}
	close(input)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := d.PredictStream(ctx, input, output)
	require.NoError(t, err)
	close(output)

	count := 0
	for range output {
		count++
	}
	assert.Equal(t, 5, count)
}

func TestDetectorFitRejectsEmptyData(t *testing.T) {
	d := New()
	err := d.Fit(nil)
	require.Error(t, err)
}

var _ detectors.Detector = (*Detector)(nil)
