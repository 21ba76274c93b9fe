package indicators

import "math"

// BollingerResult is the last-bar snapshot of a Bollinger Bands
// computation.
type BollingerResult struct {
	Mid       float64
	Upper     float64
	Lower     float64
	PercentB  float64
	Squeeze   bool
}

// Bollinger computes the mid/upper/lower bands, %B, and squeeze flag.
// Squeeze is true when the current bandwidth is below the 20-bar rolling
// minimum bandwidth within a 5% tolerance. Defaults: period=20, k=2.
func Bollinger(bars []Bar, period int, k float64) (BollingerResult, error) {
	if period <= 1 {
		return BollingerResult{}, ErrInsufficientData
	}
	// Need enough history to also compute a 20-bar rolling minimum
	// bandwidth for the squeeze test.
	minNeeded := period + 20
	if len(bars) < minNeeded {
		minNeeded = period
	}
	if len(bars) < minNeeded {
		return BollingerResult{}, ErrInsufficientData
	}

	bandwidthAt := func(end int) (mid, upper, lower, bandwidth float64) {
		window := bars[end-period+1 : end+1]
		var sum float64
		for _, b := range window {
			sum += b.Close
		}
		mean := sum / float64(period)

		var variance float64
		for _, b := range window {
			d := b.Close - mean
			variance += d * d
		}
		variance /= float64(period)
		sd := math.Sqrt(variance)

		upper = mean + k*sd
		lower = mean - k*sd
		if mean == 0 {
			bandwidth = 0
		} else {
			bandwidth = (upper - lower) / mean
		}
		return mean, upper, lower, bandwidth
	}

	lastIdx := len(bars) - 1
	mid, upper, lower, bandwidth := bandwidthAt(lastIdx)

	var percentB float64
	if upper != lower {
		percentB = (bars[lastIdx].Close - lower) / (upper - lower)
	}

	minBandwidth := bandwidth
	rollStart := lastIdx - 20 + 1
	if rollStart < period-1 {
		rollStart = period - 1
	}
	for i := rollStart; i <= lastIdx; i++ {
		_, _, _, bw := bandwidthAt(i)
		if bw < minBandwidth {
			minBandwidth = bw
		}
	}

	squeeze := false
	if minBandwidth > 0 {
		squeeze = bandwidth <= minBandwidth*1.05
	}

	return BollingerResult{
		Mid:      mid,
		Upper:    upper,
		Lower:    lower,
		PercentB: percentB,
		Squeeze:  squeeze,
	}, nil
}
