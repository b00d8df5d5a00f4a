package rcf

import (
	"github.com/hed1ad/rcforest/pkg/rcf/forecast"
	"github.com/hed1ad/rcforest/pkg/rcf/forest"
	"github.com/hed1ad/rcforest/pkg/rcf/predictor"
	"github.com/hed1ad/rcforest/pkg/rcf/preprocess"
	"github.com/hed1ad/rcforest/pkg/rcf/types"
)

// State is the pure (toState,fromState) snapshot required by spec 6,
// composed from each wired component's own State().
type State struct {
	Config        Config
	Forest        forest.State
	Preprocess    preprocess.State
	Predictor     predictor.State
	Forecast      *forecast.State
	TotalUpdates  int64
	SequenceIndex int64
	LastAccepted  *types.ComputeDescriptor
}

// State returns a pure snapshot of c.
func (c *Core) State() State {
	var fc *forecast.State
	if c.errorHandler != nil {
		s := c.errorHandler.State()
		fc = &s
	}
	return State{
		Config:        c.cfg,
		Forest:        c.forest.State(),
		Preprocess:    c.preprocessor.State(),
		Predictor:     c.predictor.State(),
		Forecast:      fc,
		TotalUpdates:  c.totalUpdates,
		SequenceIndex: c.sequenceIndex,
		LastAccepted:  c.lastAccepted,
	}
}

// FromState reconstructs a Core from a prior State() snapshot.
func FromState(s State, validateHeap bool) (*Core, error) {
	f, err := forest.FromState(s.Forest, validateHeap)
	if err != nil {
		return nil, err
	}
	c := &Core{
		cfg:           s.Config,
		forest:        f,
		preprocessor:  preprocess.FromState(s.Preprocess),
		predictor:     predictor.FromState(s.Predictor),
		totalUpdates:  s.TotalUpdates,
		sequenceIndex: s.SequenceIndex,
		lastAccepted:  s.LastAccepted,
	}
	if s.Forecast != nil {
		c.errorHandler = forecast.FromState(*s.Forecast)
	}
	return c, nil
}
