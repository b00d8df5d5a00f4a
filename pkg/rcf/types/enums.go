// Package types holds the configuration enums, vector types, and
// per-tuple descriptors shared across every rcf component, so that
// point/node/sampler/tree/forest/preprocess/predictor/forecast can refer
// to one vocabulary without importing each other.
package types

// Precision selects the floating-point width points are stored at.
// Forest determinism across precisions is only guaranteed to within
// quantization noise (spec 4.6).
type Precision int

const (
	Double Precision = iota
	Single
)

func (p Precision) String() string {
	if p == Single {
		return "SINGLE"
	}
	return "DOUBLE"
}

// ForestMode selects how the preprocessor shapes raw input into the
// shingled vector the forest scores (spec 4.7).
type ForestMode int

const (
	Standard ForestMode = iota
	TimeAugmented
	StreamingImpute
)

func (m ForestMode) String() string {
	switch m {
	case TimeAugmented:
		return "TIME_AUGMENTED"
	case StreamingImpute:
		return "STREAMING_IMPUTE"
	default:
		return "STANDARD"
	}
}

// TransformMethod selects the per-dimension streaming transform applied
// before shingling (spec 4.7).
type TransformMethod int

const (
	TransformNone TransformMethod = iota
	TransformWeighted
	TransformDifference
	TransformNormalize
	TransformNormalizeDifference
	TransformSubtractMA
)

func (t TransformMethod) String() string {
	switch t {
	case TransformWeighted:
		return "WEIGHTED"
	case TransformDifference:
		return "DIFFERENCE"
	case TransformNormalize:
		return "NORMALIZE"
	case TransformNormalizeDifference:
		return "NORMALIZE_DIFFERENCE"
	case TransformSubtractMA:
		return "SUBTRACT_MA"
	default:
		return "NONE"
	}
}

// ImputationMethod selects how STREAMING_IMPUTE fills the missing
// dimensions of an observed frame (spec 4.7). Only causal methods are
// supported: NEXT and LINEAR in the original taxonomy require a future
// observation that a single-pass stream has not received yet, so they
// are not offered here (see DESIGN.md).
type ImputationMethod int

const (
	ImputeZero ImputationMethod = iota
	ImputePrevious
	ImputeFixedValues
	ImputeRCF
)

func (m ImputationMethod) String() string {
	switch m {
	case ImputePrevious:
		return "PREVIOUS"
	case ImputeFixedValues:
		return "FIXED_VALUES"
	case ImputeRCF:
		return "RCF"
	default:
		return "ZERO"
	}
}

// ScoringStrategy selects the per-tree score functional the
// PredictorCorrector consumes (spec 4.8).
type ScoringStrategy int

const (
	ExpectedInverseDepth ScoringStrategy = iota
	Distance
	MultiMode
	MultiModeRecall
)

func (s ScoringStrategy) String() string {
	switch s {
	case Distance:
		return "DISTANCE"
	case MultiMode:
		return "MULTI_MODE"
	case MultiModeRecall:
		return "MULTI_MODE_RECALL"
	default:
		return "EXPECTED_INVERSE_DEPTH"
	}
}

// Calibration selects the forecast-interval calibration policy applied by
// the ErrorHandler (spec 4.9).
type Calibration int

const (
	CalibrationNone Calibration = iota
	CalibrationMinimal
	CalibrationSimple
)

func (c Calibration) String() string {
	switch c {
	case CalibrationMinimal:
		return "MINIMAL"
	case CalibrationSimple:
		return "SIMPLE"
	default:
		return "NONE"
	}
}

// CorrectionMode records why the PredictorCorrector suppressed or
// accepted a grade (spec 4.8, 6).
type CorrectionMode int

const (
	CorrectionNone CorrectionMode = iota
	CorrectionNoise
	CorrectionAnomalyInShingle
	CorrectionForecast
	CorrectionConditionalForecast
	CorrectionDataDrift
	CorrectionAlertOnce
	CorrectionMultiMode
)

func (c CorrectionMode) String() string {
	switch c {
	case CorrectionNoise:
		return "NOISE"
	case CorrectionAnomalyInShingle:
		return "ANOMALY_IN_SHINGLE"
	case CorrectionForecast:
		return "FORECAST"
	case CorrectionConditionalForecast:
		return "CONDITIONAL_FORECAST"
	case CorrectionDataDrift:
		return "DATA_DRIFT"
	case CorrectionAlertOnce:
		return "ALERT_ONCE"
	case CorrectionMultiMode:
		return "MULTI_MODE"
	default:
		return "NONE"
	}
}

// NumberOfExpectedValues is the default cardinality of
// AnomalyDescriptor.ExpectedValuesList (spec 9 open question: "currently
// 1" but an extension point). Elevated to configuration rather than a
// process-wide constant; this is only the default.
const NumberOfExpectedValues = 1
