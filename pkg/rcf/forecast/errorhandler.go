// Package forecast implements the ErrorHandler of spec 4.9: streaming
// calibration of forecast ranges from the errors those forecasts
// actually made, once the corresponding actuals arrive.
package forecast

import (
	"math"
	"sort"

	"github.com/hed1ad/rcforest/pkg/rcf/errs"
	"github.com/hed1ad/rcforest/pkg/rcf/types"
)

// Config configures an ErrorHandler.
type Config struct {
	Dimensions int
	// ErrorHorizon (E) is how many past (forecast,actual) pairs feed the
	// recomputed statistics at each lead time.
	ErrorHorizon int
	// ForecastHorizon (H) is the number of lead times tracked; the ring
	// buffers are sized E+H.
	ForecastHorizon int
	Calibration     types.Calibration
	// Interpolate toggles the interpolated-quantile contract; when false
	// quantile() falls back to the lower order statistic.
	Interpolate bool
}

// ErrorHandler is the spec 4.9 component.
type ErrorHandler struct {
	cfg      Config
	ringSize int

	actuals   [][]float64           // ring[pos], length Dimensions
	forecasts [][]*types.RangeVector // forecasts[lead][pos]

	errorMean     [][]float64 // [lead][dim]
	errorRMSEPos  [][]float64
	errorRMSENeg  [][]float64
	intervalHits  [][]float64
	intervalTotal [][]float64
	adders        [][]float64
	multipliers   [][]float64
	errorP10      [][]float64
	errorP50      [][]float64
	errorP90      [][]float64

	sequenceIndex int64
}

// New validates cfg and allocates an ErrorHandler.
func New(cfg Config) (*ErrorHandler, error) {
	if cfg.Dimensions <= 0 || cfg.ErrorHorizon <= 0 || cfg.ForecastHorizon <= 0 {
		return nil, errs.New(errs.InvalidConfiguration, "forecast.New", "dimensions, errorHorizon, and forecastHorizon must be positive")
	}
	h := &ErrorHandler{
		cfg:      cfg,
		ringSize: cfg.ErrorHorizon + cfg.ForecastHorizon,
	}
	h.actuals = make([][]float64, h.ringSize)
	h.forecasts = make([][]*types.RangeVector, cfg.ForecastHorizon)
	for i := range h.forecasts {
		h.forecasts[i] = make([]*types.RangeVector, h.ringSize)
	}
	h.errorMean = zero2D(cfg.ForecastHorizon, cfg.Dimensions)
	h.errorRMSEPos = zero2D(cfg.ForecastHorizon, cfg.Dimensions)
	h.errorRMSENeg = zero2D(cfg.ForecastHorizon, cfg.Dimensions)
	h.intervalHits = zero2D(cfg.ForecastHorizon, cfg.Dimensions)
	h.intervalTotal = zero2D(cfg.ForecastHorizon, cfg.Dimensions)
	h.adders = zero2D(cfg.ForecastHorizon, cfg.Dimensions)
	h.multipliers = onesLike(zero2D(cfg.ForecastHorizon, cfg.Dimensions))
	h.errorP10 = zero2D(cfg.ForecastHorizon, cfg.Dimensions)
	h.errorP50 = zero2D(cfg.ForecastHorizon, cfg.Dimensions)
	h.errorP90 = zero2D(cfg.ForecastHorizon, cfg.Dimensions)
	return h, nil
}

func zero2D(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	return out
}

func onesLike(ref [][]float64) [][]float64 {
	out := zero2D(len(ref), len(ref[0]))
	for i := range out {
		for j := range out[i] {
			out[i][j] = 1
		}
	}
	return out
}

func (h *ErrorHandler) ringPos(idx int64) int {
	m := int64(h.ringSize)
	r := idx % m
	if r < 0 {
		r += m
	}
	return int(r)
}

// Observe records the actual observed at sequenceIndex-1 (the previous
// tuple's target, spec step 1) and recomputes every lead time's error
// statistics (spec step 2).
func (h *ErrorHandler) Observe(sequenceIndex int64, actual []float64) error {
	if len(actual) != h.cfg.Dimensions {
		return errs.New(errs.DimensionMismatch, "forecast.Observe", "actual length must equal configured dimensions")
	}
	if sequenceIndex >= 1 {
		h.actuals[h.ringPos(sequenceIndex-1)] = append([]float64(nil), actual...)
	}
	h.sequenceIndex = sequenceIndex
	h.recompute(sequenceIndex)
	return nil
}

func (h *ErrorHandler) recompute(sequenceIndex int64) {
	for lead := 0; lead < h.cfg.ForecastHorizon; lead++ {
		n := sequenceIndex - int64(lead)
		if n > int64(h.cfg.ErrorHorizon) {
			n = int64(h.cfg.ErrorHorizon)
		}
		if n <= 0 {
			continue
		}
		for d := 0; d < h.cfg.Dimensions; d++ {
			h.recomputeOne(lead, d, sequenceIndex, n)
		}
	}
}

func (h *ErrorHandler) recomputeOne(lead, dim int, sequenceIndex, n int64) {
	var errorsList []float64
	var halfWidths []float64
	var hits, total float64
	for j := int64(0); j < n; j++ {
		targetIdx := sequenceIndex - 1 - j
		actualVec := h.actuals[h.ringPos(targetIdx)]
		forecastRV := h.forecasts[lead][h.ringPos(targetIdx)]
		if actualVec == nil || forecastRV == nil {
			continue
		}
		errVal := forecastRV.Values[dim] - actualVec[dim]
		errorsList = append(errorsList, errVal)
		halfWidths = append(halfWidths, (forecastRV.Upper[dim]-forecastRV.Lower[dim])/2)
		total++
		if actualVec[dim] >= forecastRV.Lower[dim] && actualVec[dim] <= forecastRV.Upper[dim] {
			hits++
		}
	}
	if len(errorsList) == 0 {
		return
	}
	sort.Float64s(errorsList)

	var mean, posSq, negSq float64
	var posN, negN int
	for _, e := range errorsList {
		mean += e
		if e >= 0 {
			posSq += e * e
			posN++
		} else {
			negSq += e * e
			negN++
		}
	}
	mean /= float64(len(errorsList))
	rmsePos, rmseNeg := 0.0, 0.0
	if posN > 0 {
		rmsePos = math.Sqrt(posSq / float64(posN))
	}
	if negN > 0 {
		rmseNeg = math.Sqrt(negSq / float64(negN))
	}

	h.errorMean[lead][dim] = mean
	h.errorRMSEPos[lead][dim] = rmsePos
	h.errorRMSENeg[lead][dim] = rmseNeg
	if total > 0 {
		h.intervalHits[lead][dim] = hits
		h.intervalTotal[lead][dim] = total
	}
	h.errorP10[lead][dim] = quantile(errorsList, 0.10, h.cfg.Interpolate)
	h.errorP50[lead][dim] = quantile(errorsList, 0.50, h.cfg.Interpolate)
	h.errorP90[lead][dim] = quantile(errorsList, 0.90, h.cfg.Interpolate)
	// the quantile's infinite sentinels (too few errors) shift nothing
	h.adders[lead][dim] = 0
	if !math.IsInf(h.errorP50[lead][dim], 0) {
		h.adders[lead][dim] = h.errorP50[lead][dim]
	}

	avgHalfWidth := average(halfWidths)
	if avgHalfWidth > 0 {
		m := (rmsePos + rmseNeg) / 2 / avgHalfWidth
		if m < 1 {
			m = 1
		}
		h.multipliers[lead][dim] = m
	} else {
		h.multipliers[lead][dim] = 1
	}
}

// CalibrateNewForecast applies the configured policy to a freshly
// produced forecast (spec step 3); it does not mutate the ErrorHandler.
func (h *ErrorHandler) CalibrateNewForecast(forecast *types.TimedRangeVector) *types.TimedRangeVector {
	out := &types.TimedRangeVector{Timestamps: append([]int64(nil), forecast.Timestamps...)}
	for lead, rv := range forecast.Ranges {
		out.Ranges = append(out.Ranges, h.calibrateOne(lead, rv))
	}
	return out
}

func (h *ErrorHandler) calibrateOne(lead int, rv *types.RangeVector) *types.RangeVector {
	out := rv.Copy()
	if lead >= h.cfg.ForecastHorizon || h.cfg.Calibration == types.CalibrationNone {
		return out
	}
	for d := range out.Values {
		mult := h.multipliers[lead][d]
		add := h.adders[lead][d]
		upperGap := (out.Upper[d] - out.Values[d]) * mult
		lowerGap := (out.Values[d] - out.Lower[d]) * mult
		if h.cfg.Calibration == types.CalibrationSimple {
			// errors are tracked as forecast-actual, so the actual is
			// approximately value-add; correct toward it.
			out.Values[d] -= add
		}
		out.Upper[d] = out.Values[d] + upperGap
		out.Lower[d] = out.Values[d] - lowerGap
	}
	return out
}

// StoreForecast records the (post-calibration) forecast so future
// Observe calls can compare it against the actuals it eventually targets
// (spec step 4).
func (h *ErrorHandler) StoreForecast(sequenceIndex int64, calibrated *types.TimedRangeVector) error {
	if len(calibrated.Ranges) > h.cfg.ForecastHorizon {
		return errs.New(errs.DimensionMismatch, "forecast.StoreForecast", "forecast horizon exceeds configured ForecastHorizon")
	}
	for lead, rv := range calibrated.Ranges {
		h.forecasts[lead][h.ringPos(sequenceIndex+int64(lead))] = rv.Copy()
	}
	return nil
}

// ObservedErrorDistribution returns the lead-0 per-dimension (p10,p50,p90)
// error distribution as a RangeVector (Lower=p10, Values=p50, Upper=p90).
func (h *ErrorHandler) ObservedErrorDistribution() *types.RangeVector {
	out := types.NewRangeVector(h.cfg.Dimensions)
	copy(out.Lower, h.errorP10[0])
	copy(out.Values, h.errorP50[0])
	copy(out.Upper, h.errorP90[0])
	return out
}

// ErrorRMSE returns the lead-0 per-dimension RMSE split positive/negative
// as a DiVector (High=positive-side RMSE, Low=negative-side RMSE).
func (h *ErrorHandler) ErrorRMSE() *types.DiVector {
	out := types.NewDiVector(h.cfg.Dimensions)
	copy(out.High, h.errorRMSEPos[0])
	copy(out.Low, h.errorRMSENeg[0])
	return out
}

// ErrorMean returns the lead-0 per-dimension mean error.
func (h *ErrorHandler) ErrorMean() []float32 {
	return toFloat32(h.errorMean[0])
}

// IntervalPrecision returns, per dimension at lead 0, the empirical
// fraction of recent actuals that fell within the stored forecast's
// [lower,upper] (spec 8 property 9).
func (h *ErrorHandler) IntervalPrecision() []float32 {
	out := make([]float32, h.cfg.Dimensions)
	for d := 0; d < h.cfg.Dimensions; d++ {
		if h.intervalTotal[0][d] > 0 {
			out[d] = float32(h.intervalHits[0][d] / h.intervalTotal[0][d])
		}
	}
	return out
}

func toFloat32(xs []float64) []float32 {
	out := make([]float32, len(xs))
	for i, x := range xs {
		out[i] = float32(x)
	}
	return out
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// quantile implements the spec 4.9 interpolated-quantile contract: for
// fractional rank r = p*n, the value is a[floor(r)-1] +
// (r-floor(r))*(a[floor(r)]-a[floor(r)-1]) with indices into the
// 0-indexed sorted slice, linear fallback a[floor(r)-1] when interpolate
// is false. For r<1 there are not enough samples to bound the quantile:
// p<=0.5 (a lower-tail quantile) returns -Inf, otherwise +Inf.
func quantile(sorted []float64, p float64, interpolate bool) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	r := p * float64(n)
	if r < 1 {
		if p <= 0.5 {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	fr := math.Floor(r)
	lo := int(fr) - 1
	hi := int(fr)
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	if lo > n-1 {
		lo = n - 1
	}
	if !interpolate {
		return sorted[lo]
	}
	frac := r - fr
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
