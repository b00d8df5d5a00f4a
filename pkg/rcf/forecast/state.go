package forecast

import "github.com/hed1ad/rcforest/pkg/rcf/types"

// State is the pure (toState,fromState) snapshot required by spec 6.
type State struct {
	Config        Config
	Actuals       [][]float64
	Forecasts     [][]*types.RangeVector
	ErrorMean     [][]float64
	ErrorRMSEPos  [][]float64
	ErrorRMSENeg  [][]float64
	IntervalHits  [][]float64
	IntervalTotal [][]float64
	Adders        [][]float64
	Multipliers   [][]float64
	ErrorP10      [][]float64
	ErrorP50      [][]float64
	ErrorP90      [][]float64
	SequenceIndex int64
}

// State returns a snapshot of h. Its slices share their backing arrays
// with h, so later Observe and StoreForecast calls on h show through in
// it; FromState likewise shares s's slices with the restored handler.
func (h *ErrorHandler) State() State {
	return State{
		Config:        h.cfg,
		Actuals:       h.actuals,
		Forecasts:     h.forecasts,
		ErrorMean:     h.errorMean,
		ErrorRMSEPos:  h.errorRMSEPos,
		ErrorRMSENeg:  h.errorRMSENeg,
		IntervalHits:  h.intervalHits,
		IntervalTotal: h.intervalTotal,
		Adders:        h.adders,
		Multipliers:   h.multipliers,
		ErrorP10:      h.errorP10,
		ErrorP50:      h.errorP50,
		ErrorP90:      h.errorP90,
		SequenceIndex: h.sequenceIndex,
	}
}

// FromState reconstructs an ErrorHandler from a prior State() snapshot.
func FromState(s State) *ErrorHandler {
	return &ErrorHandler{
		cfg:           s.Config,
		ringSize:      s.Config.ErrorHorizon + s.Config.ForecastHorizon,
		actuals:       s.Actuals,
		forecasts:     s.Forecasts,
		errorMean:     s.ErrorMean,
		errorRMSEPos:  s.ErrorRMSEPos,
		errorRMSENeg:  s.ErrorRMSENeg,
		intervalHits:  s.IntervalHits,
		intervalTotal: s.IntervalTotal,
		adders:        s.Adders,
		multipliers:   s.Multipliers,
		errorP10:      s.ErrorP10,
		errorP50:      s.ErrorP50,
		errorP90:      s.ErrorP90,
		sequenceIndex: s.SequenceIndex,
	}
}
