package predictor

import (
	"math"

	"github.com/hed1ad/rcforest/pkg/rcf/errs"
	"github.com/hed1ad/rcforest/pkg/rcf/stats"
)

// ThresholderConfig configures a BasicThresholder (spec 4.8.1).
type ThresholderConfig struct {
	ZFactor                  float64
	UpperZFactor             float64
	LowerThreshold           float64
	UpperThreshold           float64
	InitialThreshold         float64
	IntermediateTermFraction float64
	MinimumSamples           int64
	PrimaryDiscount          float64
	SecondaryDiscount        float64
	// HorizonRatio blends the long-horizon primary Deviation's stddev
	// with the short-horizon secondary Deviation's stddev: 0 uses only
	// primary, 1 uses only secondary.
	HorizonRatio float64
}

// DefaultThresholderConfig mirrors the defaults spec 4.8.1 describes.
func DefaultThresholderConfig() ThresholderConfig {
	return ThresholderConfig{
		ZFactor:                  2.5,
		UpperZFactor:             5.0,
		LowerThreshold:           1.0,
		UpperThreshold:           math.Inf(1),
		InitialThreshold:         1.5,
		IntermediateTermFraction: 0.5,
		MinimumSamples:           256,
		PrimaryDiscount:          1e-5,
		SecondaryDiscount:        1e-3,
		HorizonRatio:             0.3,
	}
}

// BasicThresholder is the spec 4.8.1 component: it maintains primary and
// secondary score Deviations and converts a raw score into a grade in
// [0,1] plus the threshold that produced it.
type BasicThresholder struct {
	cfg       ThresholderConfig
	primary   *stats.Deviation
	secondary *stats.Deviation
}

// NewThresholder validates cfg and allocates a BasicThresholder.
func NewThresholder(cfg ThresholderConfig) (*BasicThresholder, error) {
	if cfg.UpperZFactor <= cfg.ZFactor {
		return nil, errs.New(errs.InvalidConfiguration, "predictor.NewThresholder", "upperZFactor must exceed zFactor")
	}
	primary, err := stats.New(cfg.PrimaryDiscount)
	if err != nil {
		return nil, err
	}
	secondary, err := stats.New(cfg.SecondaryDiscount)
	if err != nil {
		return nil, err
	}
	return &BasicThresholder{cfg: cfg, primary: primary, secondary: secondary}, nil
}

// Update folds a newly observed score into both Deviations.
func (b *BasicThresholder) Update(score float64) {
	b.primary.Update(score)
	b.secondary.Update(score)
}

func (b *BasicThresholder) mu() float64 {
	return (1-b.cfg.HorizonRatio)*b.primary.Mean() + b.cfg.HorizonRatio*b.secondary.Mean()
}

func (b *BasicThresholder) sigma() float64 {
	sd := (1-b.cfg.HorizonRatio)*b.primary.StdDev() + b.cfg.HorizonRatio*b.secondary.StdDev()
	if sd <= 0 {
		return 1
	}
	return sd
}

// GetAnomalyGrade converts score into (grade, threshold) per spec 4.8.1:
// below minimum samples it linearly ramps from initialThreshold toward
// max(lowerThreshold, mu+factor*sigma), the blend weight growing with the
// sample count up to intermediateTermFraction; once warm, scores below threshold
// grade 0 and scores above scale linearly up to 1 at upperZFactor.
func (b *BasicThresholder) GetAnomalyGrade(score, factor float64) (grade, threshold float64) {
	mu, sigma := b.mu(), b.sigma()
	target := math.Max(b.cfg.LowerThreshold, mu+factor*sigma)
	if target > b.cfg.UpperThreshold {
		target = b.cfg.UpperThreshold
	}

	if b.primary.Count() < b.cfg.MinimumSamples {
		frac := b.cfg.IntermediateTermFraction * float64(b.primary.Count()) / float64(b.cfg.MinimumSamples)
		threshold = b.cfg.InitialThreshold*(1-frac) + target*frac
	} else {
		threshold = target
	}

	if score < threshold {
		return 0, threshold
	}

	tFactor := (score - mu) / sigma
	if tFactor > b.cfg.UpperZFactor {
		tFactor = b.cfg.UpperZFactor
	}
	if tFactor <= factor {
		return 0, threshold
	}
	grade = (tFactor - factor) / (b.cfg.UpperZFactor - factor)
	if grade > 1 {
		grade = 1
	}
	if grade < 0 {
		grade = 0
	}
	return grade, threshold
}

// State is the pure (toState,fromState) snapshot required by spec 6.
type ThresholderState struct {
	Config    ThresholderConfig
	Primary   stats.State
	Secondary stats.State
}

// State returns a pure snapshot of b.
func (b *BasicThresholder) State() ThresholderState {
	return ThresholderState{Config: b.cfg, Primary: b.primary.State(), Secondary: b.secondary.State()}
}

// ThresholderFromState reconstructs a BasicThresholder from a prior
// State() snapshot.
func ThresholderFromState(s ThresholderState) *BasicThresholder {
	return &BasicThresholder{
		cfg:       s.Config,
		primary:   stats.FromState(s.Primary),
		secondary: stats.FromState(s.Secondary),
	}
}
