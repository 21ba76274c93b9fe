package indicators

// Cross is the MACD/signal crossover classification.
type Cross string

const (
	CrossGolden Cross = "golden"
	CrossDeath  Cross = "death"
	CrossNone   Cross = "none"
)

// MACDResult is the last-bar snapshot of a MACD computation.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
	Cross     Cross
	// HistogramGrowing is true when the histogram magnitude grew from the
	// prior bar and the MACD line is above zero, used by the TA evaluator's
	// "histogram growing with macd_line>0" adjustment.
	HistogramGrowing bool
}

// MACD computes (fast EMA - slow EMA), its signal-line EMA, and the
// resulting histogram, plus the golden/death cross at the last bar
// (sign of macd-signal at t vs t-1). Defaults: fast=12, slow=26, signal=9.
func MACD(bars []Bar, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow {
		return MACDResult{}, ErrInsufficientData
	}
	fastEMA, err := EMA(bars, fast)
	if err != nil {
		return MACDResult{}, err
	}
	slowEMA, err := EMA(bars, slow)
	if err != nil {
		return MACDResult{}, err
	}

	macdLine := make([]float64, len(bars))
	for i := range macdLine {
		if IsNaN(fastEMA[i]) || IsNaN(slowEMA[i]) {
			macdLine[i] = nan()
			continue
		}
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}

	// Build a dense macd-only series starting where both EMAs are defined,
	// then EMA-smooth it for the signal line.
	start := slow - 1
	if start >= len(macdLine) {
		return MACDResult{}, ErrInsufficientData
	}
	dense := macdLine[start:]
	if len(dense) < signal {
		return MACDResult{}, ErrInsufficientData
	}

	signalDense := emaOfSeries(dense, signal)

	lastIdx := len(dense) - 1
	lastMACD := dense[lastIdx]
	lastSignal := signalDense[lastIdx]
	lastHist := lastMACD - lastSignal

	result := MACDResult{
		MACD:      lastMACD,
		Signal:    lastSignal,
		Histogram: lastHist,
		Cross:     CrossNone,
	}

	if lastIdx >= 1 && !IsNaN(signalDense[lastIdx-1]) {
		prevDiff := dense[lastIdx-1] - signalDense[lastIdx-1]
		currDiff := lastMACD - lastSignal
		if prevDiff <= 0 && currDiff > 0 {
			result.Cross = CrossGolden
		} else if prevDiff >= 0 && currDiff < 0 {
			result.Cross = CrossDeath
		}

		if lastIdx >= 2 && !IsNaN(signalDense[lastIdx-2]) {
			prevHist := dense[lastIdx-1] - signalDense[lastIdx-1]
			result.HistogramGrowing = abs(currDiff) > abs(prevHist) && lastMACD > 0
		}
	}

	return result, nil
}

// emaOfSeries EMA-smooths a plain float64 series, seeding with an SMA of
// the first `period` values. Leading entries before the seed are NaN.
func emaOfSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = nan()
	}
	if len(values) < period {
		return out
	}

	k := 2.0 / (float64(period) + 1.0)
	var seed float64
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)
	out[period-1] = seed

	prev := seed
	for i := period; i < len(values); i++ {
		prev = values[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
