package predictor

import "github.com/hed1ad/rcforest/pkg/rcf/stats"

// State is the pure (toState,fromState) snapshot required by spec 6. The
// last-accepted descriptor is intentionally not part of the snapshot: it
// only affects past-correction and drift bookkeeping for the handful of
// tuples immediately following a restore, never the scored point itself.
type State struct {
	Config           Config
	Thresholder      ThresholderState
	ActualDeviation  []stats.State
	LastAnomalyScore float64
	RunLength        int64
}

// State returns a pure snapshot of pc.
func (pc *PredictorCorrector) State() State {
	devs := make([]stats.State, len(pc.actualDeviation))
	for i, d := range pc.actualDeviation {
		devs[i] = d.State()
	}
	return State{
		Config:           pc.cfg,
		Thresholder:      pc.thresholder.State(),
		ActualDeviation:  devs,
		LastAnomalyScore: pc.lastAnomalyScore,
		RunLength:        pc.runLength,
	}
}

// FromState reconstructs a PredictorCorrector from a prior State()
// snapshot.
func FromState(s State) *PredictorCorrector {
	devs := make([]*stats.Deviation, len(s.ActualDeviation))
	for i, ds := range s.ActualDeviation {
		devs[i] = stats.FromState(ds)
	}
	return &PredictorCorrector{
		cfg:              s.Config,
		thresholder:      ThresholderFromState(s.Thresholder),
		actualDeviation:  devs,
		lastAnomalyScore: s.LastAnomalyScore,
		runLength:        s.RunLength,
	}
}
