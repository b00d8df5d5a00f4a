package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviationZeroDiscountMatchesPlainMeanVariance(t *testing.T) {
	d, err := New(0)
	require.NoError(t, err)
	xs := []float64{1, 2, 3, 4, 5}
	for _, x := range xs {
		d.Update(x)
	}
	assert.InDelta(t, 3.0, d.Mean(), 1e-9)
	// population variance of 1..5 is 2.0
	assert.InDelta(t, 2.0, d.Variance(), 1e-9)
}

func TestDeviationHighDiscountTracksRecent(t *testing.T) {
	d, err := New(0.9)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		d.Update(0)
	}
	for i := 0; i < 50; i++ {
		d.Update(100)
	}
	assert.Greater(t, d.Mean(), 90.0)
}

func TestDeviationStdDevNonNegative(t *testing.T) {
	d, err := New(0.1)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		d.Update(float64(i))
	}
	assert.False(t, math.IsNaN(d.StdDev()))
	assert.GreaterOrEqual(t, d.StdDev(), 0.0)
}

func TestDeviationStateRoundTripIsBitExact(t *testing.T) {
	d, err := New(0.05)
	require.NoError(t, err)
	for i := 0; i < 37; i++ {
		d.Update(float64(i%7) * 1.3)
	}
	snap := d.State()
	restored := FromState(snap)

	assert.Equal(t, d.Mean(), restored.Mean())
	assert.Equal(t, d.Variance(), restored.Variance())
	assert.Equal(t, d.Count(), restored.Count())

	// continuing to update both from the same point must stay identical.
	d.Update(42)
	restored.Update(42)
	assert.Equal(t, d.Mean(), restored.Mean())
	assert.Equal(t, d.Variance(), restored.Variance())
}

func TestDeviationRejectsInvalidDiscount(t *testing.T) {
	_, err := New(-0.1)
	require.Error(t, err)
	_, err = New(1.1)
	require.Error(t, err)
}
