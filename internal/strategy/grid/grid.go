// Package grid implements the grid evaluator of spec.md §4.5.3: a
// log-spaced ladder of price levels between a lower and upper bound, with
// BUY/SELL emitted as price crosses levels and a per-strategy
// level_index persisted in Strategy.Parameters.
package grid

import (
	"encoding/json"
	"fmt"
	"math"

	"cryptostrategist/internal/marketdata"
	"cryptostrategist/internal/models"
	"cryptostrategist/internal/providers"
	"cryptostrategist/internal/strategy"
)

// Params are the grid evaluator's per-strategy parameters.
type Params struct {
	LowerPrice     float64 `json:"lower_price"`
	UpperPrice     float64 `json:"upper_price"`
	GridCount      int     `json:"grid_count"`
	CapitalPerGrid float64 `json:"capital_per_grid"`
	Symbol         string  `json:"symbol"`

	// Levels and LevelIndex are persisted state, computed on first
	// evaluation and mutated thereafter.
	Levels     []float64 `json:"levels,omitempty"`
	LevelIndex int       `json:"level_index,omitempty"`
	Initialized bool     `json:"initialized,omitempty"`
}

const reasonGridCrossDown = "grid_cross_down"
const reasonGridCrossUp = "grid_cross_up"
const reasonOutOfRange = "grid_out_of_range"

// Evaluator implements strategy.Evaluator for StrategyGrid.
type Evaluator struct{}

// New builds a grid.Evaluator.
func New() *Evaluator { return &Evaluator{} }

func (e *Evaluator) Evaluate(s *models.Strategy, mctx strategy.MarketContext) (strategy.Decision, strategy.Trace, error) {
	var trace strategy.Trace

	var params Params
	if len(s.Parameters) > 0 {
		if err := json.Unmarshal(s.Parameters, &params); err != nil {
			return strategy.Decision{}, trace, fmt.Errorf("grid: parse parameters: %w", err)
		}
	}
	if params.GridCount < 2 {
		return strategy.Decision{}, trace, fmt.Errorf("grid: grid_count must be >= 2")
	}

	result := mctx.Cache.Get(mctx.Ctx, marketdata.TickerKey(s.Symbol))
	trace.Add(strategy.TraceStep{
		Kind:    models.TraceFetch,
		Label:   "ticker_24h",
		Details: map[string]any{"state": result.State},
	})
	if !result.Ok() {
		return strategy.Decision{Action: models.ActionHold, Reason: "price_unavailable"}, trace, nil
	}
	price := priceFromTicker(result.Value)

	if !params.Initialized {
		params.Levels = computeLevels(params.LowerPrice, params.UpperPrice, params.GridCount)
		params.LevelIndex = closestLevelIndex(params.Levels, price)
		params.Initialized = true
	}

	trace.Add(strategy.TraceStep{
		Kind:  models.TraceCompute,
		Label: "grid_levels",
		Details: map[string]any{"level_index": params.LevelIndex, "price": price},
	})

	if price < params.LowerPrice || price > params.UpperPrice {
		decision := strategy.Decision{Action: models.ActionHold, Reason: reasonOutOfRange}
		raw, _ := json.Marshal(params)
		s.Parameters = raw
		s.Status = models.StrategyPaused
		return decision, trace, nil
	}

	currentIndex := closestLevelIndex(params.Levels, price)
	decision := strategy.Decision{Action: models.ActionHold, Reason: "no_cross"}

	switch {
	case currentIndex < params.LevelIndex:
		decision = strategy.Decision{
			Action:            models.ActionBuy,
			Conviction:         80,
			SuggestedNotional: params.CapitalPerGrid,
			Reason:            reasonGridCrossDown,
		}
		params.LevelIndex = currentIndex
	case currentIndex > params.LevelIndex:
		decision = strategy.Decision{
			Action:            models.ActionSell,
			Conviction:         80,
			SuggestedNotional: mctx.Account.PositionAmount * price, // dollar notional; scheduler converts to amount
			Reason:            reasonGridCrossUp,
		}
		params.LevelIndex = currentIndex
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return strategy.Decision{}, trace, fmt.Errorf("grid: marshal parameters: %w", err)
	}
	s.Parameters = raw

	trace.Add(strategy.TraceStep{
		Kind:  models.TraceScore,
		Label: "final",
		Details: map[string]any{"action": decision.Action, "level_index": params.LevelIndex},
	})

	return decision, trace, nil
}

// computeLevels builds grid_count+1 levels equally spaced in log-space
// between lower and upper.
func computeLevels(lower, upper float64, gridCount int) []float64 {
	logLower := math.Log(lower)
	logUpper := math.Log(upper)
	step := (logUpper - logLower) / float64(gridCount)

	levels := make([]float64, gridCount+1)
	for i := 0; i <= gridCount; i++ {
		levels[i] = math.Exp(logLower + step*float64(i))
	}
	return levels
}

func closestLevelIndex(levels []float64, price float64) int {
	closest := 0
	bestDist := math.Abs(levels[0] - price)
	for i, lvl := range levels {
		d := math.Abs(lvl - price)
		if d < bestDist {
			bestDist = d
			closest = i
		}
	}
	return closest
}

func priceFromTicker(v any) float64 {
	if t, ok := v.(providers.Ticker24h); ok {
		return t.LastPrice
	}
	if f, ok := v.(float64); ok {
		return f
	}
	return 0
}
