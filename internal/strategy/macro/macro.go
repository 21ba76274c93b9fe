// Package macro implements the macro-trend evaluator of spec.md §4.5.2: a
// weighted table of macroeconomic/on-chain/sentiment indicators scored on
// a {-2..+2} scale and normalized into a single conviction.
package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cryptostrategist/internal/marketdata"
	"cryptostrategist/internal/models"
	"cryptostrategist/internal/providers"
	"cryptostrategist/internal/strategy"
)

// Params are the macro evaluator's per-strategy parameters.
type Params struct {
	Symbol     string `json:"symbol"`
	LLMEnabled bool   `json:"llm_enabled"`
}

// AdvisoryClient is the optional LLM enrichment contract. Failures are
// non-fatal (spec.md §4.5.2).
type AdvisoryClient interface {
	Summarize(ctx context.Context, scored ScoredTable, snapshot string) (string, error)
}

// ScoredTable is the per-indicator {-2..+2} score record the advisory
// client receives and the trace records.
type ScoredTable struct {
	FedRate           int `json:"fed_rate"`
	Treasury10Y       int `json:"treasury_10y"`
	DXY               int `json:"dxy"`
	M2GrowthYoY       int `json:"m2_growth_yoy"`
	FearGreed         int `json:"fear_greed"`
	StablecoinSupply  int `json:"stablecoin_supply"`
	ETFFlow           int `json:"etf_flow"`
	AHR999            int `json:"ahr999"`
	MVRVRatio         int `json:"mvrv_ratio"`
	Miners            int `json:"miners"`
	MstrMnav          int `json:"mstr_mnav"`
}

// weightedSum applies spec.md §4.5.2's per-group weights: liquidity/rates
// and sentiment/flows at 1, on-chain at 2, mining/institutional at 1.
func (t ScoredTable) weightedSum() int {
	return t.FedRate + t.Treasury10Y + t.DXY + t.M2GrowthYoY +
		t.FearGreed + t.StablecoinSupply + t.ETFFlow +
		2*t.AHR999 + 2*t.MVRVRatio +
		t.Miners + t.MstrMnav
}

// Evaluator implements strategy.Evaluator for StrategyMacro.
type Evaluator struct {
	Advisory AdvisoryClient // nil disables the LLM enrichment path

	mu               sync.Mutex
	lastStablecoinSupplyB map[uint]float64
}

// New builds a macro.Evaluator. advisory may be nil.
func New(advisory AdvisoryClient) *Evaluator {
	return &Evaluator{Advisory: advisory, lastStablecoinSupplyB: make(map[uint]float64)}
}

// stablecoinTrendScore compares the latest reading against the last one
// this evaluator instance observed for the strategy (spec.md §4.5.2's
// "90-day lag if available"): the cache only ever holds the current
// value, so "available" means "we've seen a prior reading in this
// process's lifetime". The first observation scores flat.
func (e *Evaluator) stablecoinTrendScore(strategyID uint, supplyB float64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev, ok := e.lastStablecoinSupplyB[strategyID]
	e.lastStablecoinSupplyB[strategyID] = supplyB
	if !ok {
		return 0
	}
	switch {
	case supplyB > prev*1.001:
		return 1
	case supplyB < prev*0.999:
		return -1
	default:
		return 0
	}
}

func (e *Evaluator) Evaluate(s *models.Strategy, mctx strategy.MarketContext) (strategy.Decision, strategy.Trace, error) {
	var params Params
	if len(s.Parameters) > 0 {
		if err := json.Unmarshal(s.Parameters, &params); err != nil {
			return strategy.Decision{}, strategy.Trace{}, fmt.Errorf("macro: parse parameters: %w", err)
		}
	}
	if params.Symbol == "" {
		params.Symbol = s.Symbol
	}

	var trace strategy.Trace
	table := ScoredTable{}

	fred := mctx.Cache.Get(mctx.Ctx, marketdata.SingletonKey(marketdata.SourceMacroFred, ""))
	trace.Add(fetchStep("macro_fred", fred))
	if fred.Ok() {
		if m, ok := fred.Value.(providers.MacroIndicators); ok {
			table.FedRate = scoreFedRate(m.FedRate)
			table.Treasury10Y = scoreTreasury10Y(m.Treasury10Y)
			table.DXY = scoreDXY(m.DXY)
			table.M2GrowthYoY = scoreM2Growth(m.M2GrowthYoY)
		}
	}
	trace.Add(scoreStep("macro_fred", table.FedRate+table.Treasury10Y+table.DXY+table.M2GrowthYoY))

	fearGreed := mctx.Cache.Get(mctx.Ctx, marketdata.SingletonKey(marketdata.SourceFearGreed, ""))
	trace.Add(fetchStep("fear_greed", fearGreed))
	if fearGreed.Ok() {
		if fg, ok := fearGreed.Value.(providers.FearGreed); ok {
			table.FearGreed = scoreFearGreed(fg.Value)
		}
	}
	trace.Add(scoreStep("fear_greed", table.FearGreed))

	stablecoin := mctx.Cache.Get(mctx.Ctx, marketdata.SingletonKey(marketdata.SourceStablecoinSupply, ""))
	trace.Add(fetchStep("stablecoin_supply", stablecoin))
	if stablecoin.Ok() {
		if supplyB, ok := stablecoin.Value.(float64); ok {
			table.StablecoinSupply = e.stablecoinTrendScore(s.ID, supplyB)
		}
	}
	trace.Add(scoreStep("stablecoin_supply", table.StablecoinSupply))

	etfFlows := mctx.Cache.Get(mctx.Ctx, marketdata.SingletonKey(marketdata.SourceEtfFlows, ""))
	trace.Add(fetchStep("etf_flows", etfFlows))
	if etfFlows.Ok() {
		if f, ok := etfFlows.Value.(providers.ETFFlows); ok {
			table.ETFFlow = scoreETFFlow(f.BTC) // BTC strategies weight at full; ETH/SOL strategies scale below.
			if params.Symbol == "ETH" {
				table.ETFFlow = scoreETFFlow(f.ETH * 4)
			} else if params.Symbol == "SOL" {
				table.ETFFlow = scoreETFFlow(f.SOL * 10)
			}
		}
	}
	trace.Add(scoreStep("etf_flows", table.ETFFlow))

	onchain := mctx.Cache.Get(mctx.Ctx, marketdata.SingletonKey(marketdata.SourceOnchainBTC, ""))
	trace.Add(fetchStep("onchain_btc", onchain))
	if onchain.Ok() {
		if o, ok := onchain.Value.(providers.OnchainBTC); ok {
			table.AHR999 = scoreAHR999(o.AHR999)
			table.MVRVRatio = scoreMVRV(o.MVRVRatio)
		}
	}
	trace.Add(scoreStep("onchain_btc", table.AHR999+table.MVRVRatio))

	miners := mctx.Cache.Get(mctx.Ctx, marketdata.SingletonKey(marketdata.SourceMiners, ""))
	trace.Add(fetchStep("miners", miners))
	if miners.Ok() {
		if m, ok := miners.Value.(providers.Miners); ok && m.Total > 0 {
			table.Miners = scoreMinerProfitability(float64(m.Profitable) / float64(m.Total))
		}
	}
	trace.Add(scoreStep("miners", table.Miners))

	mstrMnav := mctx.Cache.Get(mctx.Ctx, marketdata.SingletonKey(marketdata.SourceMstrMnav, ""))
	trace.Add(fetchStep("mstr_mnav", mstrMnav))
	if mstrMnav.Ok() {
		if ratio, ok := mstrMnav.Value.(float64); ok {
			table.MstrMnav = scoreMstrMnav(ratio)
		}
	}
	trace.Add(scoreStep("mstr_mnav", table.MstrMnav))

	raw := table.weightedSum()
	conviction := clip((float64(raw)+16)/31*100, 0, 100)

	action := models.ActionHold
	switch {
	case conviction >= 70:
		action = models.ActionBuy
	case conviction <= 30:
		action = models.ActionSell
	}

	reason := "macro_score"
	if params.LLMEnabled && e.Advisory != nil {
		llmCtx, cancel := context.WithTimeout(mctx.Ctx, 15*time.Second)
		summary, err := e.Advisory.Summarize(llmCtx, table, fmt.Sprintf("symbol=%s conviction=%.1f", params.Symbol, conviction))
		cancel()
		if err == nil && summary != "" {
			reason = reason + ": " + summary
			trace.Add(strategy.TraceStep{Kind: models.TraceLLM, Label: "advisory", Details: map[string]any{"summary": summary}})
		} else if err != nil {
			trace.Add(strategy.TraceStep{Kind: models.TraceLLM, Label: "advisory", Details: map[string]any{"error": err.Error()}})
		}
	}

	notionalFraction := clip(abs(conviction-50)/50, 0, 1) * 0.20

	trace.Add(strategy.TraceStep{Kind: models.TraceScore, Label: "final", Details: map[string]any{
		"raw": raw, "conviction": conviction, "action": action,
	}})

	return strategy.Decision{
		Action:            action,
		Conviction:         conviction,
		SuggestedNotional: notionalFraction * mctx.Account.Equity, // dollar notional; scheduler converts to amount for SELLs
		Reason:            reason,
	}, trace, nil
}

func fetchStep(label string, r marketdata.Result) strategy.TraceStep {
	return strategy.TraceStep{Kind: models.TraceFetch, Label: label, Details: map[string]any{"state": r.State}}
}

func scoreStep(label string, score int) strategy.TraceStep {
	return strategy.TraceStep{Kind: models.TraceScore, Label: label, Details: map[string]any{"score": score}}
}

func scoreFedRate(v float64) int {
	switch {
	case v < 3.5:
		return 1
	case v > 5.0:
		return -1
	default:
		return 0
	}
}

func scoreTreasury10Y(v float64) int {
	switch {
	case v < 3.5:
		return 1
	case v > 4.5:
		return -1
	default:
		return 0
	}
}

func scoreDXY(v float64) int {
	switch {
	case v < 100:
		return 1
	case v > 110:
		return -2
	case v > 107:
		return -1
	default:
		return 0
	}
}

func scoreM2Growth(v float64) int {
	switch {
	case v > 5:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func scoreFearGreed(v int) int {
	switch {
	case v <= 25:
		return 1
	case v >= 80:
		return -1
	default:
		return 0
	}
}

func scoreETFFlow(usd float64) int {
	switch {
	case usd > 200_000_000:
		return 1
	case usd < -200_000_000:
		return -1
	default:
		return 0
	}
}

func scoreAHR999(v float64) int {
	switch {
	case v < 0.45:
		return 1
	case v > 1.2:
		return -1
	default:
		return 0
	}
}

func scoreMVRV(v float64) int {
	switch {
	case v < 1.0:
		return 1
	case v > 3.7:
		return -1
	default:
		return 0
	}
}

func scoreMinerProfitability(ratio float64) int {
	switch {
	case ratio > 0.70:
		return 1
	case ratio < 0.40:
		return -1
	default:
		return 0
	}
}

func scoreMstrMnav(v float64) int {
	switch {
	case v < 1.5:
		return 1
	case v > 4.0:
		return -1
	default:
		return 0
	}
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

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
