package point

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/rcforest/pkg/rcf/errs"
	"github.com/hed1ad/rcforest/pkg/rcf/types"
)

func TestIndexManagerTakeRelease(t *testing.T) {
	m := NewIndexManager(3)
	a, err := m.Take()
	require.NoError(t, err)
	b, err := m.Take()
	require.NoError(t, err)
	c, err := m.Take()
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1, 2}, []int{a, b, c})

	_, err = m.Take()
	require.Error(t, err)
	kind, ok := errs.Of(err)
	require.True(t, ok)
	assert.Equal(t, errs.Capacity, kind)

	require.NoError(t, m.Release(b))
	d, err := m.Take()
	require.NoError(t, err)
	assert.Equal(t, b, d)
}

func TestIndexManagerDoubleFree(t *testing.T) {
	m := NewIndexManager(2)
	i, err := m.Take()
	require.NoError(t, err)
	require.NoError(t, m.Release(i))

	err = m.Release(i)
	require.Error(t, err)
	kind, _ := errs.Of(err)
	assert.Equal(t, errs.IllegalState, kind)
}

func TestIndexManagerCheckValid(t *testing.T) {
	m := NewIndexManager(2)
	err := m.CheckValid(0)
	require.Error(t, err)

	i, err := m.Take()
	require.NoError(t, err)
	require.NoError(t, m.CheckValid(i))

	err = m.CheckValid(5)
	require.Error(t, err)
}

func newExternalStore(t *testing.T, capacity int) *PointStore {
	t.Helper()
	ps, err := New(Config{
		BaseDimension: 3,
		ShingleSize:   1,
		Capacity:      capacity,
		Precision:     types.Double,
		Mode:          ExternalShingle,
	})
	require.NoError(t, err)
	return ps
}

func TestPointStoreAddGetRoundTrip(t *testing.T) {
	ps := newExternalStore(t, 4)
	v := []float64{1, 2, 3}
	idx, err := ps.Add(v)
	require.NoError(t, err)

	got, err := ps.Get(idx)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestPointStoreDimensionMismatch(t *testing.T) {
	ps := newExternalStore(t, 4)
	_, err := ps.Add([]float64{1, 2})
	require.Error(t, err)
	kind, _ := errs.Of(err)
	assert.Equal(t, errs.DimensionMismatch, kind)
}

func TestPointStoreCapacity(t *testing.T) {
	ps := newExternalStore(t, 1)
	_, err := ps.Add([]float64{1, 2, 3})
	require.NoError(t, err)

	_, err = ps.Add([]float64{4, 5, 6})
	require.Error(t, err)
	kind, _ := errs.Of(err)
	assert.Equal(t, errs.Capacity, kind)
}

func TestPointStoreRefCounting(t *testing.T) {
	ps := newExternalStore(t, 2)
	idx, err := ps.Add([]float64{1, 2, 3})
	require.NoError(t, err)

	n, err := ps.IncrementRefCount(idx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = ps.DecrementRefCount(idx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = ps.DecrementRefCount(idx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// index released, Get must now fail
	_, err = ps.Get(idx)
	require.Error(t, err)
}

func TestPointStorePointEquals(t *testing.T) {
	ps := newExternalStore(t, 2)
	idx, err := ps.Add([]float64{1, 2, 3})
	require.NoError(t, err)

	eq, err := ps.PointEquals(idx, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.True(t, eq)

	eq, err = ps.PointEquals(idx, []float64{1, 2, 3.5})
	require.NoError(t, err)
	assert.False(t, eq)

	_, err = ps.PointEquals(idx, []float64{1, 2})
	require.Error(t, err)
}

func TestPointStoreInternalSliding(t *testing.T) {
	ps, err := New(Config{
		BaseDimension: 1,
		ShingleSize:   3,
		Capacity:      10,
		Precision:     types.Double,
		Mode:          InternalSliding,
	})
	require.NoError(t, err)

	var lastIdx int
	for v := 1.0; v <= 5; v++ {
		lastIdx, err = ps.Add([]float64{v})
		require.NoError(t, err)
	}
	got, err := ps.Get(lastIdx)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4, 5}, got)
}

// TestPointStoreInternalRotatingCanonicalOrder is the structural
// equivalent of spec scenario S6: shingleSize=10, inject 95 scalars,
// Get(index_for_t=95) must equal the canonical window [86..95].
func TestPointStoreInternalRotatingCanonicalOrder(t *testing.T) {
	ps, err := New(Config{
		BaseDimension: 1,
		ShingleSize:   10,
		Capacity:      100,
		Precision:     types.Double,
		Mode:          InternalRotating,
	})
	require.NoError(t, err)

	var lastIdx int
	for v := 1.0; v <= 95; v++ {
		lastIdx, err = ps.Add([]float64{v})
		require.NoError(t, err)
	}

	got, err := ps.Get(lastIdx)
	require.NoError(t, err)

	want := make([]float64, 10)
	for i := 0; i < 10; i++ {
		want[i] = float64(86 + i)
	}
	assert.Equal(t, want, got)
}

func TestPointStoreTransformToShingledPointIsPreview(t *testing.T) {
	ps, err := New(Config{
		BaseDimension: 1,
		ShingleSize:   3,
		Capacity:      10,
		Precision:     types.Double,
		Mode:          InternalSliding,
	})
	require.NoError(t, err)

	_, err = ps.Add([]float64{1})
	require.NoError(t, err)
	_, err = ps.Add([]float64{2})
	require.NoError(t, err)

	preview, err := ps.TransformToShingledPoint([]float64{3})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, preview)

	// committing separately must reproduce the preview exactly
	idx, err := ps.Add([]float64{3})
	require.NoError(t, err)
	got, err := ps.Get(idx)
	require.NoError(t, err)
	assert.Equal(t, preview, got)
}

func TestPointStoreSinglePrecisionQuantization(t *testing.T) {
	ps, err := New(Config{
		BaseDimension: 1,
		ShingleSize:   1,
		Capacity:      2,
		Precision:     types.Single,
	})
	require.NoError(t, err)

	idx, err := ps.Add([]float64{1.0 / 3.0})
	require.NoError(t, err)
	got, err := ps.Get(idx)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, got[0], 1e-6)
	assert.NotEqual(t, 1.0/3.0, got[0])
}

func TestPointStoreStateRoundTrip(t *testing.T) {
	ps := newExternalStore(t, 4)
	idx, err := ps.Add([]float64{1, 2, 3})
	require.NoError(t, err)

	snap := ps.State()
	restored := FromState(snap)

	got, err := restored.Get(idx)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)
}
