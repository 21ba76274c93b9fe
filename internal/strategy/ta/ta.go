// Package ta implements the technical-indicator evaluator of spec.md
// §4.5.1: a multi-timeframe, rule-based score aggregated into a single
// BUY/SELL/HOLD decision with an ATR-derived stop/target.
package ta

import (
	"encoding/json"
	"fmt"

	"cryptostrategist/internal/indicators"
	"cryptostrategist/internal/models"
	"cryptostrategist/internal/strategy"
)

// Params are the technical-indicator evaluator's per-strategy parameters,
// unmarshaled from Strategy.Parameters.
type Params struct {
	Timeframes    []models.Timeframe `json:"timeframes"`
	BuyThreshold  float64            `json:"buy_threshold"`
	SellThreshold float64            `json:"sell_threshold"`
	AtrStopMult   float64            `json:"atr_stop_mult"`
	AtrTargetMult float64            `json:"atr_target_mult"`
	KlinesLimit   int                `json:"klines_limit"`
	BaseSizePct   float64            `json:"base_size_pct"`
}

// DefaultParams matches spec.md §4.5.1's stated defaults.
func DefaultParams() Params {
	return Params{
		Timeframes:    []models.Timeframe{models.Timeframe15m, models.Timeframe1h, models.Timeframe4h},
		BuyThreshold:  65,
		SellThreshold: 35,
		AtrStopMult:   2.0,
		AtrTargetMult: 3.0,
		KlinesLimit:   300,
		BaseSizePct:   0.10,
	}
}

var weights3 = map[models.Timeframe]float64{
	models.Timeframe15m: 0.15,
	models.Timeframe1h:  0.35,
	models.Timeframe4h:  0.50,
}

var weights4 = map[models.Timeframe]float64{
	models.Timeframe15m: 0.10,
	models.Timeframe1h:  0.20,
	models.Timeframe4h:  0.30,
	models.Timeframe1d:  0.40,
}

// Grade is the evaluator's qualitative confidence label.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
)

// Evaluator implements strategy.Evaluator for StrategyTA.
type Evaluator struct{}

// New builds a ta.Evaluator.
func New() *Evaluator { return &Evaluator{} }

// timeframeScore is the per-timeframe intermediate result.
type timeframeScore struct {
	timeframe models.Timeframe
	score     float64
	bars      []indicators.Bar
	macdCross indicators.Cross
}

func (e *Evaluator) Evaluate(s *models.Strategy, mctx strategy.MarketContext) (strategy.Decision, strategy.Trace, error) {
	params := DefaultParams()
	if len(s.Parameters) > 0 {
		if err := json.Unmarshal(s.Parameters, &params); err != nil {
			return strategy.Decision{}, strategy.Trace{}, fmt.Errorf("ta: parse parameters: %w", err)
		}
	}

	var trace strategy.Trace
	scores := make([]timeframeScore, 0, len(params.Timeframes))

	for _, tf := range params.Timeframes {
		res, err := mctx.Klines.Get(mctx.Ctx, s.Symbol, tf)
		trace.Add(strategy.TraceStep{
			Kind:  models.TraceFetch,
			Label: fmt.Sprintf("klines:%s", tf),
			Details: map[string]any{"symbol": s.Symbol, "timeframe": tf, "bar_count": len(res.Bars)},
		})
		if err != nil {
			return strategy.Decision{}, trace, fmt.Errorf("ta: fetch klines %s: %w", tf, err)
		}

		bars := toIndicatorBars(res.Bars)
		if len(bars) > params.KlinesLimit {
			bars = bars[len(bars)-params.KlinesLimit:]
		}

		score, cross, err := scoreTimeframe(bars, &trace, tf)
		if err != nil {
			trace.Add(strategy.TraceStep{Kind: models.TraceScore, Label: string(tf), Details: map[string]any{"error": err.Error()}})
			continue
		}
		scores = append(scores, timeframeScore{timeframe: tf, score: score, bars: bars, macdCross: cross})
		trace.Add(strategy.TraceStep{Kind: models.TraceScore, Label: string(tf), Details: map[string]any{"score": score}})
	}

	if len(scores) == 0 {
		return strategy.Decision{Action: models.ActionHold, Reason: "insufficient_data"}, trace, nil
	}

	weights := weightsFor(len(scores))
	aggregated := aggregate(scores, weights)
	aggregated = applyConflictClamp(scores, weights, aggregated)

	grade := gradeOf(scores, aggregated)

	decision := decide(params, aggregated, grade, scores, mctx.Account.Equity)
	trace.Add(strategy.TraceStep{Kind: models.TraceScore, Label: "final", Details: map[string]any{
		"aggregated_score": aggregated, "grade": grade, "action": decision.Action,
	}})

	return decision, trace, nil
}

func weightsFor(n int) map[models.Timeframe]float64 {
	if n >= 4 {
		return weights4
	}
	return weights3
}

func aggregate(scores []timeframeScore, weights map[models.Timeframe]float64) float64 {
	var sum, totalWeight float64
	for _, s := range scores {
		w, ok := weights[s.timeframe]
		if !ok {
			w = 1.0 / float64(len(scores))
		}
		sum += s.score * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 50
	}
	return sum / totalWeight
}

// applyConflictClamp implements spec.md §4.5.1's conflict rule: if the
// longest selected timeframe disagrees strongly with a shorter one, clamp
// the aggregate into the HOLD band.
func applyConflictClamp(scores []timeframeScore, weights map[models.Timeframe]float64, aggregated float64) float64 {
	longest := longestTimeframe(scores)
	if longest == nil {
		return aggregated
	}
	if longest.score > 40 {
		return aggregated
	}
	for _, s := range scores {
		if s.timeframe == longest.timeframe {
			continue
		}
		if s.score >= 60 {
			return clipScore(aggregated, 40, 60)
		}
	}
	return aggregated
}

func clipScore(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var timeframeRank = map[models.Timeframe]int{
	models.Timeframe15m: 1,
	models.Timeframe1h:  2,
	models.Timeframe4h:  3,
	models.Timeframe1d:  4,
}

func longestTimeframe(scores []timeframeScore) *timeframeScore {
	var longest *timeframeScore
	for i := range scores {
		if longest == nil || timeframeRank[scores[i].timeframe] > timeframeRank[longest.timeframe] {
			longest = &scores[i]
		}
	}
	return longest
}

func primaryTimeframe(scores []timeframeScore) *timeframeScore {
	for i := range scores {
		if scores[i].timeframe == models.Timeframe4h {
			return &scores[i]
		}
	}
	for i := range scores {
		if scores[i].timeframe == models.Timeframe1h {
			return &scores[i]
		}
	}
	return &scores[0]
}

func gradeOf(scores []timeframeScore, aggregated float64) Grade {
	extremeCount := 0
	alignedCount := 0
	aggregatedUp := aggregated >= 50
	primaryCross := primaryTimeframe(scores).macdCross

	for _, s := range scores {
		if s.score >= 70 || s.score <= 30 {
			extremeCount++
		}
		up := s.score >= 50
		if up == aggregatedUp {
			alignedCount++
		}
	}

	if float64(extremeCount) >= (2.0/3.0)*float64(len(scores)) && (aggregated >= 78 || aggregated <= 22) {
		return GradeA
	}
	if float64(alignedCount) >= float64(len(scores))/2 || primaryCross != indicators.CrossNone {
		return GradeB
	}
	return GradeC
}

func decide(params Params, aggregated float64, grade Grade, scores []timeframeScore, equity float64) strategy.Decision {
	action := models.ActionHold
	switch {
	case aggregated >= params.BuyThreshold:
		action = models.ActionBuy
	case aggregated <= params.SellThreshold:
		action = models.ActionSell
	}

	primary := primaryTimeframe(scores)
	atr, atrErr := indicators.ATR(primary.bars, 14)
	lastClose := primary.bars[len(primary.bars)-1].Close

	var stopLoss, takeProfit *float64
	if atrErr == nil {
		switch action {
		case models.ActionBuy:
			sl := lastClose - atr*params.AtrStopMult
			tp := lastClose + atr*params.AtrTargetMult
			stopLoss, takeProfit = &sl, &tp
		case models.ActionSell:
			sl := lastClose + atr*params.AtrStopMult
			tp := lastClose - atr*params.AtrTargetMult
			stopLoss, takeProfit = &sl, &tp
		}
	}

	sizeFraction := clip((abs(aggregated-50)-15)/35, 0, 1) * params.BaseSizePct

	return strategy.Decision{
		Action:            action,
		Conviction:         aggregated,
		SuggestedNotional: sizeFraction * equity, // dollar notional; scheduler converts to amount for SELLs
		StopLoss:          stopLoss,
		TakeProfit:        takeProfit,
		Reason:            fmt.Sprintf("ta_grade_%s", grade),
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toIndicatorBars(bars []models.PriceBar) []indicators.Bar {
	out := make([]indicators.Bar, len(bars))
	for i, b := range bars {
		out[i] = indicators.Bar{
			OpenTime: b.OpenTime.UnixMilli(),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			Volume:   b.Volume,
		}
	}
	return out
}
