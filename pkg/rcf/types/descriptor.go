package types

// ComputeDescriptor is the mutable per-tuple record threaded through
// Preprocessor -> Forest -> PredictorCorrector within a single Process
// call (spec 3, "RCFComputeDescriptor"). It is created per process() call
// and, once the tuple has a shingled point, kept as the last-accepted
// descriptor until a later tuple replaces it.
type ComputeDescriptor struct {
	// Provenance.
	TotalUpdates      int64
	InternalTimeStamp int64
	InputTimestamp    int64
	SequenceIndex     int64

	// Raw and shingled views of this tuple.
	CurrentInput   []float64
	MissingIndices []int
	RCFPoint       []float64 // the shingled, transformed point scored by the forest

	// Forest outputs.
	RCFScore          float64
	Attribution       *DiVector
	PointNeighborhood []float64 // nearest-neighbor distances, when computed

	// PredictorCorrector outputs.
	AnomalyGrade       float64
	Threshold          float64
	InHighScoreRegion  bool
	RelativeIndex      int
	ExpectedRCFPoint   []float64
	ExpectedValuesList [][]float64
	LikelihoodOfValues []float64
	StartOfAnomaly     bool
	CorrectionMode      CorrectionMode

	// Forecast outputs, populated only when extrapolation is requested.
	TimedForecast            *TimedRangeVector
	ObservedErrorDistribution *RangeVector
	ErrorRMSE                 *DiVector
	ErrorMean                 []float32
	IntervalPrecision         []float32
}

// AnomalyDescriptor is the externally visible result of Process (spec 6).
type AnomalyDescriptor struct {
	RCFScore           float64
	AnomalyGrade       float64
	Threshold          float64
	Attribution        *DiVector
	RelativeIndex      int32
	ExpectedValuesList [][]float64
	LikelihoodOfValues []float64
	StartOfAnomaly     bool
	InHighScoreRegion  bool
	CorrectionMode     CorrectionMode

	TotalUpdates      int64
	InternalTimeStamp int64
	InputTimestamp    int64
	CurrentValues     []float64
	RCFPoint          []float64
	ExpectedRCFPoint  []float64
}

// ForecastDescriptor extends AnomalyDescriptor with forecast fields
// (spec 6).
type ForecastDescriptor struct {
	AnomalyDescriptor

	TimedForecast             TimedRangeVector
	ObservedErrorDistribution RangeVector
	ErrorRMSE                 DiVector
	ErrorMean                 []float32
	IntervalPrecision         []float32
}

// ToAnomalyDescriptor projects a ComputeDescriptor down to the public
// AnomalyDescriptor shape returned from Process.
func (c *ComputeDescriptor) ToAnomalyDescriptor() *AnomalyDescriptor {
	return &AnomalyDescriptor{
		RCFScore:           c.RCFScore,
		AnomalyGrade:       c.AnomalyGrade,
		Threshold:          c.Threshold,
		Attribution:        c.Attribution,
		RelativeIndex:      int32(c.RelativeIndex),
		ExpectedValuesList: c.ExpectedValuesList,
		LikelihoodOfValues: c.LikelihoodOfValues,
		StartOfAnomaly:     c.StartOfAnomaly,
		InHighScoreRegion:  c.InHighScoreRegion,
		CorrectionMode:     c.CorrectionMode,
		TotalUpdates:       c.TotalUpdates,
		InternalTimeStamp:  c.InternalTimeStamp,
		InputTimestamp:     c.InputTimestamp,
		CurrentValues:      c.CurrentInput,
		RCFPoint:           c.RCFPoint,
		ExpectedRCFPoint:   c.ExpectedRCFPoint,
	}
}

// ToForecastDescriptor projects a ComputeDescriptor down to the public
// ForecastDescriptor shape returned from Extrapolate.
func (c *ComputeDescriptor) ToForecastDescriptor() *ForecastDescriptor {
	fd := &ForecastDescriptor{AnomalyDescriptor: *c.ToAnomalyDescriptor()}
	if c.TimedForecast != nil {
		fd.TimedForecast = *c.TimedForecast
	}
	if c.ObservedErrorDistribution != nil {
		fd.ObservedErrorDistribution = *c.ObservedErrorDistribution
	}
	if c.ErrorRMSE != nil {
		fd.ErrorRMSE = *c.ErrorRMSE
	}
	fd.ErrorMean = c.ErrorMean
	fd.IntervalPrecision = c.IntervalPrecision
	return fd
}
