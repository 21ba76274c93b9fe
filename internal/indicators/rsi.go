package indicators

// RSI computes the Relative Strength Index using Wilder smoothing,
// returning the last value in [0,100]. Default period is 14 per spec.md
// §4.1.
func RSI(bars []Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInsufficientData
	}
	if len(bars) < period+1 {
		return 0, ErrInsufficientData
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := bars[i].Close - bars[i-1].Close
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss += -delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(bars); i++ {
		delta := bars[i].Close - bars[i-1].Close
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}

// StochRSI computes the Stochastic RSI, normalizing RSI over the last
// `period` bars and smoothing with simple %K/%D windows of k and d bars.
// Returns (k, d).
func StochRSI(bars []Bar, period, k, d int) (float64, float64, error) {
	if period <= 0 || k <= 0 || d <= 0 {
		return 0, 0, ErrInsufficientData
	}
	// Need period+1 bars per RSI value, plus period extra RSI values to
	// normalize over, plus k-1 and d-1 smoothing bars.
	need := period + period + k + d
	if len(bars) < need {
		return 0, 0, ErrInsufficientData
	}

	rsiSeries := make([]float64, 0, len(bars))
	for i := period; i < len(bars); i++ {
		v, err := RSI(bars[:i+1], period)
		if err != nil {
			return 0, 0, err
		}
		rsiSeries = append(rsiSeries, v)
	}
	if len(rsiSeries) < period {
		return 0, 0, ErrInsufficientData
	}

	stoch := make([]float64, 0, len(rsiSeries))
	for i := period - 1; i < len(rsiSeries); i++ {
		window := rsiSeries[i-period+1 : i+1]
		lo, hi := window[0], window[0]
		for _, v := range window {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi == lo {
			stoch = append(stoch, 0)
			continue
		}
		stoch = append(stoch, (rsiSeries[i]-lo)/(hi-lo)*100)
	}

	kSeries, err := sma(stoch, k)
	if err != nil {
		return 0, 0, err
	}
	dSeries, err := sma(kSeries, d)
	if err != nil {
		return 0, 0, err
	}

	return kSeries[len(kSeries)-1], dSeries[len(dSeries)-1], nil
}

func sma(values []float64, period int) ([]float64, error) {
	if len(values) < period {
		return nil, ErrInsufficientData
	}
	out := make([]float64, 0, len(values)-period+1)
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out, nil
}
