package tree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/rcforest/pkg/rcf/point"
)

func newTestTree(t *testing.T, dims, sampleSize int, seed int64) (*Tree, *point.PointStore) {
	t.Helper()
	ps, err := point.New(point.Config{
		BaseDimension: dims,
		ShingleSize:   1,
		Capacity:      sampleSize * 4,
		Precision:     0,
		Mode:          point.ExternalShingle,
	})
	require.NoError(t, err)

	tr, err := New(Config{
		Dimensions:          dims,
		SampleSize:          sampleSize,
		BoundingBoxFraction: 0.3,
		Seed:                seed,
	}, ps, sampleSize*4)
	require.NoError(t, err)
	return tr, ps
}

func TestTreeInsertGrowsMassAndSize(t *testing.T) {
	tr, ps := newTestTree(t, 2, 64, 1)
	rng := rand.New(rand.NewSource(99))

	for i := 0; i < 50; i++ {
		v := []float64{rng.Float64() * 10, rng.Float64() * 10}
		idx, err := ps.Add(v)
		require.NoError(t, err)
		require.NoError(t, tr.Insert(idx))
	}
	assert.Equal(t, 50, tr.Size())
	assert.Equal(t, 50, tr.MassOfRoot())
}

func TestTreeInsertCoalescesDuplicates(t *testing.T) {
	tr, ps := newTestTree(t, 2, 64, 2)

	v := []float64{1, 2}
	idx1, err := ps.Add(v)
	require.NoError(t, err)
	require.NoError(t, tr.Insert(idx1))

	idx2, err := ps.Add(append([]float64(nil), v...))
	require.NoError(t, err)
	require.NoError(t, tr.Insert(idx2))

	assert.Equal(t, 2, tr.Size())   // two distinct pointIndices tracked
	assert.Equal(t, 2, tr.MassOfRoot()) // but coalesced into one leaf of mass 2
	assert.True(t, tr.IsLeaf(tr.root))
}

// IsLeaf is a tiny test-only accessor to avoid reaching into the node
// package directly from the test.
func (t *Tree) IsLeaf(nodeIndex int) bool { return t.nodes.IsLeaf(nodeIndex) }

func TestTreeDeleteRemovesPointAndCollapsesParent(t *testing.T) {
	tr, ps := newTestTree(t, 2, 64, 3)
	rng := rand.New(rand.NewSource(5))

	var indices []int
	for i := 0; i < 20; i++ {
		v := []float64{rng.Float64() * 10, rng.Float64() * 10}
		idx, err := ps.Add(v)
		require.NoError(t, err)
		require.NoError(t, tr.Insert(idx))
		indices = append(indices, idx)
	}
	require.Equal(t, 20, tr.MassOfRoot())

	for _, idx := range indices[:10] {
		require.NoError(t, tr.Delete(idx))
	}
	assert.Equal(t, 10, tr.Size())
	assert.Equal(t, 10, tr.MassOfRoot())

	for _, idx := range indices[10:] {
		require.NoError(t, tr.Delete(idx))
	}
	assert.Equal(t, 0, tr.Size())
	assert.True(t, tr.IsEmpty())
}

func TestTreeDeleteUnknownPointErrors(t *testing.T) {
	tr, _ := newTestTree(t, 2, 8, 4)
	err := tr.Delete(123)
	require.Error(t, err)
}

func TestTreeAnomalyScoreHigherForOutlier(t *testing.T) {
	tr, ps := newTestTree(t, 2, 128, 6)
	rng := rand.New(rand.NewSource(6))

	for i := 0; i < 128; i++ {
		v := []float64{rng.NormFloat64(), rng.NormFloat64()}
		idx, err := ps.Add(v)
		require.NoError(t, err)
		require.NoError(t, tr.Insert(idx))
	}

	inlier, err := tr.AnomalyScore([]float64{0, 0})
	require.NoError(t, err)
	outlier, err := tr.AnomalyScore([]float64{500, 500})
	require.NoError(t, err)

	assert.Greater(t, outlier, inlier)
}

func TestTreeAttributionSumsToScore(t *testing.T) {
	tr, ps := newTestTree(t, 3, 64, 7)
	rng := rand.New(rand.NewSource(8))
	for i := 0; i < 64; i++ {
		v := []float64{rng.Float64(), rng.Float64(), rng.Float64()}
		idx, err := ps.Add(v)
		require.NoError(t, err)
		require.NoError(t, tr.Insert(idx))
	}

	probe := []float64{20, -5, 0.5}
	score, err := tr.AnomalyScore(probe)
	require.NoError(t, err)
	divec, err := tr.Attribution(probe)
	require.NoError(t, err)

	assert.InDelta(t, score, divec.Sum(), 1e-9)
}

func TestTreeImputeMissingValuesFillsFromLikelyLeaf(t *testing.T) {
	tr, ps := newTestTree(t, 2, 32, 9)
	pts := [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	for _, p := range pts {
		idx, err := ps.Add(p)
		require.NoError(t, err)
		require.NoError(t, tr.Insert(idx))
	}

	filled, err := tr.ImputeMissingValues([]float64{0.1, 0}, []int{1})
	require.NoError(t, err)
	assert.Equal(t, 0.1, filled[0])
	// filled[1] must be one of the observed values for dimension 1
	assert.Contains(t, []float64{0, 1}, filled[1])
}

func TestTreeExtrapolateFromShingleProducesHorizonBlocks(t *testing.T) {
	tr, ps := newTestTree(t, 6, 32, 10)
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 32; i++ {
		v := make([]float64, 6)
		for d := range v {
			v[d] = rng.Float64()
		}
		idx, err := ps.Add(v)
		require.NoError(t, err)
		require.NoError(t, tr.Insert(idx))
	}

	shingle := make([]float64, 6)
	for i := range shingle {
		shingle[i] = rng.Float64()
	}
	out, err := tr.ExtrapolateFromShingle(shingle, 2, 2, 0.5)
	require.NoError(t, err)
	assert.Len(t, out, 4)
}

func TestTreeRejectsInvalidConfig(t *testing.T) {
	ps, err := point.New(point.Config{BaseDimension: 1, ShingleSize: 1, Capacity: 4})
	require.NoError(t, err)
	_, err = New(Config{Dimensions: 0, SampleSize: 8}, ps, 16)
	require.Error(t, err)
}
