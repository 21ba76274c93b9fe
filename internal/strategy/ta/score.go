package ta

import (
	"fmt"

	"cryptostrategist/internal/indicators"
	"cryptostrategist/internal/models"
	"cryptostrategist/internal/strategy"
)

// scoreTimeframe computes the [0,100] per-timeframe score from spec.md
// §4.5.1's additive adjustment table, starting at 50.
func scoreTimeframe(bars []indicators.Bar, trace *strategy.Trace, tf models.Timeframe) (float64, indicators.Cross, error) {
	if len(bars) < 210 {
		return 0, indicators.CrossNone, fmt.Errorf("ta: %s: %w", tf, indicators.ErrInsufficientData)
	}

	score := 50.0
	lastClose := bars[len(bars)-1].Close

	ema9, _ := indicators.LastEMA(bars, 9)
	ema21, _ := indicators.LastEMA(bars, 21)
	ema50, _ := indicators.LastEMA(bars, 50)
	ema200, _ := indicators.LastEMA(bars, 200)

	bullishAligned := lastClose > ema9 && ema9 > ema21 && ema21 > ema50 && ema50 > ema200
	bearishAligned := lastClose < ema9 && ema9 < ema21 && ema21 < ema50 && ema50 < ema200
	switch {
	case bullishAligned:
		score += 15
	case bearishAligned:
		score -= 15
	default:
		score += partialEMAAlignment(lastClose, ema9, ema21, ema50, ema200)
	}

	rsi, err := indicators.RSI(bars, 14)
	if err == nil {
		switch {
		case rsi < 30:
			score += 10
		case rsi > 70:
			score -= 10
		}
	}

	macdResult, err := indicators.MACD(bars, 12, 26, 9)
	cross := indicators.CrossNone
	if err == nil {
		cross = macdResult.Cross
		switch macdResult.Cross {
		case indicators.CrossGolden:
			score += 10
		case indicators.CrossDeath:
			score -= 10
		}
		if macdResult.HistogramGrowing && macdResult.MACD > 0 {
			score += 3
		}
	}

	boll, err := indicators.Bollinger(bars, 20, 2.0)
	if err == nil {
		switch {
		case boll.PercentB < 0:
			score += 6
		case boll.PercentB > 1:
			score -= 6
		case boll.Squeeze:
			if lastClose >= boll.Mid {
				score += 3
			} else {
				score -= 3
			}
		}
	}

	volume, err := indicators.Volume(bars)
	if err == nil {
		upClose := lastClose >= bars[len(bars)-2].Close
		switch volume.Class {
		case indicators.VolumeSurge:
			if upClose {
				score += 5
			} else {
				score -= 5
			}
		case indicators.VolumeDry:
			// no adjustment
		}
	}

	trendLabel, _, err := indicators.TrendStructure(bars)
	if err == nil {
		switch trendLabel {
		case indicators.TrendUp:
			score += 5
		case indicators.TrendDown:
			score -= 5
		}
	}

	patterns, err := indicators.CandlePatterns(bars)
	if err == nil {
		switch {
		case indicators.HasPattern(patterns, indicators.PatternBullishEngulfing) || indicators.HasPattern(patterns, indicators.PatternHammer):
			score += 4
		case indicators.HasPattern(patterns, indicators.PatternBearishEngulfing) || indicators.HasPattern(patterns, indicators.PatternShootingStar):
			score -= 4
		}
	}

	trace.Add(strategy.TraceStep{
		Kind:  models.TraceCompute,
		Label: fmt.Sprintf("indicators:%s", tf),
		Details: map[string]any{
			"ema9": ema9, "ema21": ema21, "ema50": ema50, "ema200": ema200,
			"macd_cross": cross,
		},
	})

	return clip(score, 0, 100), cross, nil
}

func partialEMAAlignment(lastClose, ema9, ema21, ema50, ema200 float64) float64 {
	levels := []float64{lastClose, ema9, ema21, ema50, ema200}
	aligned := 0
	for i := 0; i < len(levels)-1; i++ {
		if levels[i] > levels[i+1] {
			aligned++
		} else if levels[i] < levels[i+1] {
			aligned--
		}
	}
	return 15 * float64(aligned) / float64(len(levels)-1)
}
