package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplerFillsBeforeEvicting(t *testing.T) {
	s, err := New(Config{Capacity: 3, Lambda: 0, Seed: 1})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		accepted, evicted := s.Accept(i, int64(i))
		assert.True(t, accepted)
		assert.Equal(t, Null, evicted)
	}
	assert.True(t, s.Full())
	assert.Equal(t, 3, s.Size())
}

func TestSamplerHeapPropertyHoldsAfterManyInserts(t *testing.T) {
	s, err := New(Config{Capacity: 50, Lambda: 1e-3, Seed: 7})
	require.NoError(t, err)

	for i := 0; i < 5000; i++ {
		s.Accept(i, int64(i))
		require.True(t, s.ValidateHeap())
	}
	assert.LessOrEqual(t, s.Size(), 50)
}

func TestSamplerEvictedPointClearedOnNextInsert(t *testing.T) {
	s, err := New(Config{Capacity: 2, Lambda: 1, Seed: 3})
	require.NoError(t, err)

	s.Accept(0, 0)
	s.Accept(1, 1)

	// drive many more insertions; whenever an eviction happens, the
	// evicted slot must reflect only the *most recent* Accept call.
	sawEviction := false
	for i := 2; i < 200; i++ {
		accepted, evicted := s.Accept(i, int64(i))
		if accepted && evicted != Null {
			sawEviction = true
			got, ok := s.EvictedPoint()
			require.True(t, ok)
			assert.Equal(t, evicted, got)
		}
	}
	assert.True(t, sawEviction, "expected at least one eviction over 200 increasing-time insertions")
}

func TestSamplerStateRoundTrip(t *testing.T) {
	s, err := New(Config{Capacity: 10, Lambda: 1e-3, Seed: 11, TrackSequenceIndices: true})
	require.NoError(t, err)
	for i := 0; i < 30; i++ {
		s.Accept(i, int64(i))
	}

	snap := s.State()
	restored, err := FromState(snap, true)
	require.NoError(t, err)

	assert.Equal(t, s.WeightArray(), restored.WeightArray())
	assert.Equal(t, s.PointIndexArray(), restored.PointIndexArray())
	assert.Equal(t, s.SequenceIndexArray(), restored.SequenceIndexArray())
}

func TestSamplerFromStateRejectsInvalidHeap(t *testing.T) {
	bad := State{
		Config:          Config{Capacity: 3, Lambda: 0},
		Weights:         []float64{1, 5, 2}, // child index 1 (5) > root (1): violates max-heap
		PointIndices:    []int{0, 1, 2},
		SequenceIndices: []int64{0, 1, 2},
		InsertionSeqs:   []int64{0, 1, 2},
		NextSeq:         3,
	}
	_, err := FromState(bad, true)
	require.Error(t, err)
}

func TestSamplerFromStateSkipsValidationWhenDisabled(t *testing.T) {
	bad := State{
		Config:          Config{Capacity: 3, Lambda: 0},
		Weights:         []float64{1, 5, 2},
		PointIndices:    []int{0, 1, 2},
		SequenceIndices: []int64{0, 1, 2},
		InsertionSeqs:   []int64{0, 1, 2},
		NextSeq:         3,
	}
	restored, err := FromState(bad, false)
	require.NoError(t, err)
	assert.False(t, restored.ValidateHeap())
}

func TestSamplerRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Capacity: 0})
	require.Error(t, err)

	_, err = New(Config{Capacity: 1, Lambda: -1})
	require.Error(t, err)
}
