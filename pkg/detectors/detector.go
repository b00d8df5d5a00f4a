// Package detectors defines the shape a streaming anomaly detector presents
// to cmd/rcfcli and its own tests, independent of the forest pipeline that
// backs it (pkg/detectors/rcfdetector wraps pkg/rcf.Core behind it).
package detectors

import "context"

// Detector is implemented by rcfdetector.Detector (an RCF forest wrapped
// with contamination-driven thresholding); it is kept algorithm-agnostic
// so cmd/rcfcli and tests can depend on the interface rather than the
// concrete forest type.
type Detector interface {
	// Fit streams historical rows through the forest in order, building
	// the shingle/sampler state and, when Contamination > 0, calibrating
	// Threshold from the resulting grade distribution.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(data [][]float64) error

	// Predict returns one AnomalyGrade per row, grading each row and then
	// folding it into the forest, so later rows are graded against earlier ones.
	// Grades are normalized to [0, 1] where higher values indicate anomalies.
	Predict(data [][]float64) ([]float64, error)

	// PredictOne grades a single row and then folds it into the forest.
	PredictOne(sample []float64) (float64, error)

	// Save gob-encodes the forest/preprocessor/predictor state and
	// detector configuration into a single portable snapshot.
	Save() ([]byte, error)

	// Load replaces the current forest/preprocessor/predictor state with
	// a snapshot produced by Save.
	Load(data []byte) error
}

// StreamDetector extends Detector with a channel-driven interface that
// grades and folds each tuple into the forest in sequence order, the
// shape cmd/rcfcli's live pcap capture needs.
type StreamDetector interface {
	Detector

	// PredictStream grades each input tuple in receive order and folds
	// it into the forest before emitting its Score, closing output once
	// input is drained or ctx is canceled.
	PredictStream(ctx context.Context, input <-chan []float64, output chan<- Score) error
}

// Score is one tuple's graded result, as emitted by PredictStream.
type Score struct {
	// Value is the anomaly grade in [0, 1].
	Value float64
	// IsAnomaly indicates if the grade exceeds the detector's threshold.
	IsAnomaly bool
	// Features contains the original input tuple.
	Features []float64
	// Metadata carries auxiliary fields such as the tuple's sequence index.
	Metadata map[string]any
}

// Config holds the subset of rcfdetector's tuning knobs that are generic
// across any Detector implementation (forest sizing lives in rcfdetector's
// own Option set).
type Config struct {
	// Contamination is the expected proportion of anomalies in training data.
	Contamination float64
	// Threshold is the score threshold for classifying anomalies.
	Threshold float64
	// RandomSeed for reproducibility.
	RandomSeed int64
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		Contamination: 0.1,
		Threshold:     0.5,
		RandomSeed:    42,
	}
}
