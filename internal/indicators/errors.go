// Package indicators is a pure numeric library over ordered price bars.
// Every function is stateless and holds no data across calls; short input
// fails with ErrInsufficientData rather than panicking or returning
// garbage, so callers can treat a too-short series as a neutral/absent
// contribution (spec.md §7) instead of a run failure.
package indicators

import "errors"

// ErrInsufficientData is returned when the input series is shorter than a
// function's minimum warm-up requirement.
var ErrInsufficientData = errors.New("indicators: insufficient data")

// Bar is the minimal OHLCV shape the indicator library consumes. Callers
// convert models.PriceBar values into Bars, so this package does not import
// models and stays dependency-free and independently testable.
type Bar struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}
