package preprocess

import "github.com/hed1ad/rcforest/pkg/rcf/stats"

// State is the pure (toState,fromState) snapshot required by spec 6.
type State struct {
	Config        Config
	Shingle       []float64
	ShingleWarm   int
	Deviations    []stats.State
	MovingAvg     [][]float64
	MAPos         []int
	LastRawInput  []float64
	LastTimestamp int64
	HaveLast      bool
	Observations  int
}

// State returns a pure snapshot of p.
func (p *Preprocessor) State() State {
	devs := make([]stats.State, len(p.deviations))
	for i, d := range p.deviations {
		devs[i] = d.State()
	}
	movingAvg := make([][]float64, len(p.movingAvg))
	for i, row := range p.movingAvg {
		movingAvg[i] = append([]float64(nil), row...)
	}
	return State{
		Config:        p.cfg,
		Shingle:       append([]float64(nil), p.shingle...),
		ShingleWarm:   p.shingleWarm,
		Deviations:    devs,
		MovingAvg:     movingAvg,
		MAPos:         append([]int(nil), p.maPos...),
		LastRawInput:  append([]float64(nil), p.lastRawInput...),
		LastTimestamp: p.lastTimestamp,
		HaveLast:      p.haveLast,
		Observations:  p.observations,
	}
}

// FromState reconstructs a Preprocessor from a prior State() snapshot.
func FromState(s State) *Preprocessor {
	devs := make([]*stats.Deviation, len(s.Deviations))
	for i, ds := range s.Deviations {
		devs[i] = stats.FromState(ds)
	}
	frameDim := len(devs)
	return &Preprocessor{
		cfg:           s.Config,
		frameDim:      frameDim,
		dimensions:    frameDim * s.Config.ShingleSize,
		shingle:       append([]float64(nil), s.Shingle...),
		shingleWarm:   s.ShingleWarm,
		deviations:    devs,
		movingAvg:     s.MovingAvg,
		maPos:         s.MAPos,
		lastRawInput:  append([]float64(nil), s.LastRawInput...),
		lastTimestamp: s.LastTimestamp,
		haveLast:      s.HaveLast,
		observations:  s.Observations,
	}
}
