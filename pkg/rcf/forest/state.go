package forest

import (
	"golang.org/x/sync/semaphore"

	"github.com/hed1ad/rcforest/pkg/rcf/point"
	"github.com/hed1ad/rcforest/pkg/rcf/rcflog"
	"github.com/hed1ad/rcforest/pkg/rcf/sampler"
	"github.com/hed1ad/rcforest/pkg/rcf/tree"
)

// State is the pure (toState,fromState) snapshot required by spec 6,
// composed from each owned component's own State().
type State struct {
	Config        Config
	Points        point.State
	Trees         []tree.State
	Samplers      []sampler.State
	SequenceIndex int64
	Dedup         map[string]int
}

// State returns a pure snapshot of f.
func (f *Forest) State() State {
	trees := make([]tree.State, len(f.trees))
	for i, tr := range f.trees {
		trees[i] = tr.State()
	}
	samps := make([]sampler.State, len(f.samps))
	for i, sm := range f.samps {
		samps[i] = sm.State()
	}
	dedup := make(map[string]int, len(f.dedup))
	for k, v := range f.dedup {
		dedup[k] = v
	}
	// the logger is not part of the snapshot; FromState installs a no-op one
	cfg := f.cfg
	cfg.Logger = nil
	return State{
		Config:        cfg,
		Points:        f.points.State(),
		Trees:         trees,
		Samplers:      samps,
		SequenceIndex: f.sequenceIndex,
		Dedup:         dedup,
	}
}

// FromState reconstructs a Forest from a prior State() snapshot. When
// validateHeap is true, any sampler whose restored heap violates the
// max-heap property causes restoration to fail (spec 4.4).
func FromState(s State, validateHeap bool) (*Forest, error) {
	cfg := s.Config
	if cfg.Logger == nil {
		cfg.Logger = rcflog.Nop()
	}
	ps := point.FromState(s.Points)

	trees := make([]*tree.Tree, len(s.Trees))
	for i, ts := range s.Trees {
		trees[i] = tree.FromState(ts, ps)
	}
	samps := make([]*sampler.Sampler, len(s.Samplers))
	for i, ss := range s.Samplers {
		sm, err := sampler.FromState(ss, validateHeap)
		if err != nil {
			return nil, err
		}
		samps[i] = sm
	}

	dedup := make(map[string]int, len(s.Dedup))
	dedupByIdx := make(map[int]string, len(s.Dedup))
	for k, v := range s.Dedup {
		dedup[k] = v
		dedupByIdx[v] = k
	}

	weight := cfg.ParallelismCap
	if weight <= 0 {
		weight = int64(len(trees))
	}
	return &Forest{
		cfg:           cfg,
		points:        ps,
		trees:         trees,
		samps:         samps,
		sem:           semaphore.NewWeighted(weight),
		log:           cfg.Logger,
		sequenceIndex: s.SequenceIndex,
		dedup:         dedup,
		dedupByIdx:    dedupByIdx,
	}, nil
}
