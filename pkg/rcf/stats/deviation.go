// Package stats implements the streaming mean/variance estimator with
// exponential time-decay described in spec 3 (Deviation), used by
// Preprocessor and PredictorCorrector for per-dimension thresholds.
package stats

import (
	"math"

	"github.com/hed1ad/rcforest/pkg/rcf/errs"
)

// Deviation is a streaming mean/variance estimator with exponential
// time-decay factor discount ∈ [0,1]. It is deterministic and
// restartable from (mean, varianceAccumulator, count, discount).
type Deviation struct {
	discount          float64
	mean              float64
	varianceAccum     float64 // weighted sum of squared deviations
	weight            float64 // total accumulated decayed weight
	count             int64
}

// New validates discount and returns a zeroed Deviation.
func New(discount float64) (*Deviation, error) {
	if discount < 0 || discount > 1 {
		return nil, errs.New(errs.InvalidConfiguration, "stats.New", "discount must be in [0,1]")
	}
	return &Deviation{discount: discount}, nil
}

// Update folds a new observation in, decaying the prior accumulators by
// (1-discount) first (discount=0 degenerates to a plain running mean and
// variance; discount=1 tracks only the latest observation).
func (d *Deviation) Update(x float64) {
	d.count++
	keep := 1 - d.discount
	d.weight = d.weight*keep + 1
	delta := x - d.mean
	if d.weight > 0 {
		d.mean += delta / d.weight
	}
	delta2 := x - d.mean
	d.varianceAccum = d.varianceAccum*keep + delta*delta2
}

// Mean returns the current decayed mean.
func (d *Deviation) Mean() float64 { return d.mean }

// Count returns the number of observations folded in (undecayed).
func (d *Deviation) Count() int64 { return d.count }

// Variance returns the current decayed variance estimate.
func (d *Deviation) Variance() float64 {
	if d.weight <= 0 {
		return 0
	}
	v := d.varianceAccum / d.weight
	if v < 0 {
		return 0
	}
	return v
}

// StdDev returns sqrt(Variance()).
func (d *Deviation) StdDev() float64 { return math.Sqrt(d.Variance()) }

// State is the pure (toState,fromState) snapshot required by spec 6.
type State struct {
	Discount      float64
	Mean          float64
	VarianceAccum float64
	Weight        float64
	Count         int64
}

// State returns a pure snapshot of d.
func (d *Deviation) State() State {
	return State{
		Discount:      d.discount,
		Mean:          d.mean,
		VarianceAccum: d.varianceAccum,
		Weight:        d.weight,
		Count:         d.count,
	}
}

// FromState reconstructs a Deviation bit-exactly from a prior State()
// snapshot (spec 3: "deterministic and restartable from (mean,
// varianceAccumulator, count, discount)").
func FromState(s State) *Deviation {
	return &Deviation{
		discount:      s.Discount,
		mean:          s.Mean,
		varianceAccum: s.VarianceAccum,
		weight:        s.Weight,
		count:         s.Count,
	}
}
