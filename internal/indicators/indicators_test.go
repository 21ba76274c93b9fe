package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBars(closes []float64) []Bar {
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{
			OpenTime: int64(i),
			Open:     c,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   1000,
		}
	}
	return bars
}

func TestSMA(t *testing.T) {
	bars := makeBars([]float64{1, 2, 3, 4, 5})
	series, err := SMA(bars, 3)
	require.NoError(t, err)
	assert.True(t, IsNaN(series[0]))
	assert.True(t, IsNaN(series[1]))
	assert.InDelta(t, 2.0, series[2], 1e-9)
	assert.InDelta(t, 3.0, series[3], 1e-9)
	assert.InDelta(t, 4.0, series[4], 1e-9)
}

func TestSMAInsufficientData(t *testing.T) {
	_, err := SMA(makeBars([]float64{1, 2}), 5)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEMASeeds(t *testing.T) {
	bars := makeBars([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	last, err := LastEMA(bars, 3)
	require.NoError(t, err)
	assert.Greater(t, last, 8.0)
}

func TestRSIAllGains(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(i)
	}
	rsi, err := RSI(makeBars(closes), 14)
	require.NoError(t, err)
	assert.InDelta(t, 100, rsi, 1e-6)
}

func TestRSIAllLosses(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(20 - i)
	}
	rsi, err := RSI(makeBars(closes), 14)
	require.NoError(t, err)
	assert.InDelta(t, 0, rsi, 1e-6)
}

func TestRSIInsufficientData(t *testing.T) {
	_, err := RSI(makeBars([]float64{1, 2, 3}), 14)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestMACDGoldenCross(t *testing.T) {
	closes := make([]float64, 60)
	for i := 0; i < 40; i++ {
		closes[i] = 100 - float64(i)*0.5
	}
	for i := 40; i < 60; i++ {
		closes[i] = closes[39] + float64(i-39)*2
	}
	result, err := MACD(makeBars(closes), 12, 26, 9)
	require.NoError(t, err)
	assert.Contains(t, []Cross{CrossGolden, CrossNone}, result.Cross)
}

func TestBollingerBands(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	result, err := Bollinger(makeBars(closes), 20, 2)
	require.NoError(t, err)
	assert.InDelta(t, 100, result.Mid, 1e-6)
	assert.InDelta(t, 100, result.Upper, 1e-6)
	assert.InDelta(t, 100, result.Lower, 1e-6)
}

func TestATR(t *testing.T) {
	bars := makeBars([]float64{10, 11, 12, 11, 10, 11, 12, 13, 12, 11, 10, 11, 12, 13, 14})
	atr, err := ATR(bars, 14)
	require.NoError(t, err)
	assert.Greater(t, atr, 0.0)
}

func TestVolumeClassification(t *testing.T) {
	bars := makeBars(make([]float64, 21))
	for i := range bars {
		bars[i].Volume = 1000
	}
	bars[len(bars)-1].Volume = 3000
	profile, err := Volume(bars)
	require.NoError(t, err)
	assert.Equal(t, VolumeSurge, profile.Class)
	assert.Greater(t, profile.Ratio, 2.0)
}

func TestVolumeDry(t *testing.T) {
	bars := makeBars(make([]float64, 21))
	for i := range bars {
		bars[i].Volume = 1000
	}
	bars[len(bars)-1].Volume = 100
	profile, err := Volume(bars)
	require.NoError(t, err)
	assert.Equal(t, VolumeDry, profile.Class)
}

func TestTrendStructureUptrend(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		phase := i % 12
		wave := float64(phase) * 3
		if phase > 6 {
			wave = float64(12-phase) * 3
		}
		closes[i] = 100 + float64(i) + wave
	}
	label, swings, err := TrendStructure(makeBars(closes))
	require.NoError(t, err)
	assert.Equal(t, TrendUp, label)
	assert.NotEmpty(t, swings)
}

func TestTrendStructureInsufficientData(t *testing.T) {
	_, _, err := TrendStructure(makeBars(make([]float64, 10)))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestCandlePatternDoji(t *testing.T) {
	bars := []Bar{
		{Open: 100, High: 105, Low: 95, Close: 102, Volume: 1},
		{Open: 100, High: 110, Low: 90, Close: 100.5},
	}
	patterns, err := CandlePatterns(bars)
	require.NoError(t, err)
	assert.True(t, HasPattern(patterns, PatternDoji))
}

func TestCandlePatternBullishEngulfing(t *testing.T) {
	bars := []Bar{
		{Open: 100, High: 101, Low: 95, Close: 96},  // bearish
		{Open: 95, High: 106, Low: 94, Close: 105},  // bullish, engulfs prior body
	}
	patterns, err := CandlePatterns(bars)
	require.NoError(t, err)
	assert.True(t, HasPattern(patterns, PatternBullishEngulfing))
}

func TestCandlePatternHammer(t *testing.T) {
	bars := []Bar{
		{Open: 100, High: 101, Low: 80, Close: 99},
		{Open: 98, High: 99, Low: 80, Close: 98.5},
	}
	patterns, err := CandlePatterns(bars)
	require.NoError(t, err)
	assert.True(t, HasPattern(patterns, PatternHammer))
}
