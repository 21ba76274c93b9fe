package indicators

// ATR computes the Average True Range using Wilder smoothing. Default
// period is 14 per spec.md §4.1.
func ATR(bars []Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInsufficientData
	}
	if len(bars) < period+1 {
		return 0, ErrInsufficientData
	}

	trueRange := func(i int) float64 {
		highLow := bars[i].High - bars[i].Low
		highClose := abs(bars[i].High - bars[i-1].Close)
		lowClose := abs(bars[i].Low - bars[i-1].Close)
		tr := highLow
		if highClose > tr {
			tr = highClose
		}
		if lowClose > tr {
			tr = lowClose
		}
		return tr
	}

	var atr float64
	for i := 1; i <= period; i++ {
		atr += trueRange(i)
	}
	atr /= float64(period)

	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + trueRange(i)) / float64(period)
	}

	return atr, nil
}
