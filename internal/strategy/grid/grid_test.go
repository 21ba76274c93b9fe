package grid

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cryptostrategist/internal/marketdata"
	"cryptostrategist/internal/models"
	"cryptostrategist/internal/providers"
	"cryptostrategist/internal/strategy"
)

type stubTickerFetcher struct{ price float64 }

func (s *stubTickerFetcher) Fetch(ctx context.Context, param string) (any, error) {
	return providers.Ticker24h{Symbol: param, LastPrice: s.price}, nil
}

func newCacheWithTicker(price float64) *marketdata.Cache {
	cache := marketdata.New(map[marketdata.Source]time.Duration{marketdata.SourceTicker24h: time.Minute}, time.Second, zap.NewNop())
	cache.Register(marketdata.SourceTicker24h, &stubTickerFetcher{price: price})
	return cache
}

func TestComputeLevelsLogSpaced(t *testing.T) {
	levels := computeLevels(10000, 40000, 4)
	require.Len(t, levels, 5)
	assert.InDelta(t, 10000, levels[0], 0.01)
	assert.InDelta(t, 40000, levels[4], 0.01)
	for i := 0; i < len(levels)-1; i++ {
		assert.Less(t, levels[i], levels[i+1])
	}
}

func TestClosestLevelIndex(t *testing.T) {
	levels := []float64{10000, 20000, 30000, 40000}
	assert.Equal(t, 1, closestLevelIndex(levels, 19000))
	assert.Equal(t, 0, closestLevelIndex(levels, 10500))
}

func TestEvaluateBuysOnDownwardCross(t *testing.T) {
	params := Params{
		LowerPrice: 10000, UpperPrice: 40000, GridCount: 4, CapitalPerGrid: 100,
		Levels: computeLevels(10000, 40000, 4), LevelIndex: 2, Initialized: true,
	}
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	s := &models.Strategy{Symbol: "BTCUSDT", Parameters: raw}

	cache := newCacheWithTicker(14000)
	mctx := strategy.MarketContext{Ctx: context.Background(), Cache: cache}
	ev := New()
	decision, _, err := ev.Evaluate(s, mctx)
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, decision.Action)
	assert.Equal(t, reasonGridCrossDown, decision.Reason)

	var updated Params
	require.NoError(t, json.Unmarshal(s.Parameters, &updated))
	assert.Equal(t, closestLevelIndex(params.Levels, 14000), updated.LevelIndex)
}

func TestEvaluateSellsOnUpwardCross(t *testing.T) {
	params := Params{
		LowerPrice: 10000, UpperPrice: 40000, GridCount: 4, CapitalPerGrid: 100,
		Levels: computeLevels(10000, 40000, 4), LevelIndex: 0, Initialized: true,
	}
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	s := &models.Strategy{Symbol: "BTCUSDT", Parameters: raw}

	cache := newCacheWithTicker(35000)
	mctx := strategy.MarketContext{Ctx: context.Background(), Cache: cache, Account: strategy.AccountView{PositionAmount: 0.5}}
	ev := New()
	decision, _, err := ev.Evaluate(s, mctx)
	require.NoError(t, err)
	assert.Equal(t, models.ActionSell, decision.Action)
	assert.Equal(t, reasonGridCrossUp, decision.Reason)
}

func TestEvaluateHoldsOnNoCross(t *testing.T) {
	levels := computeLevels(10000, 40000, 4)
	idx := closestLevelIndex(levels, 20500)
	params := Params{
		LowerPrice: 10000, UpperPrice: 40000, GridCount: 4, CapitalPerGrid: 100,
		Levels: levels, LevelIndex: idx, Initialized: true,
	}
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	s := &models.Strategy{Symbol: "BTCUSDT", Parameters: raw}

	cache := newCacheWithTicker(20500)
	mctx := strategy.MarketContext{Ctx: context.Background(), Cache: cache}
	ev := New()
	decision, _, err := ev.Evaluate(s, mctx)
	require.NoError(t, err)
	assert.Equal(t, models.ActionHold, decision.Action)
}

func TestEvaluatePausesOutOfRange(t *testing.T) {
	params := Params{
		LowerPrice: 10000, UpperPrice: 40000, GridCount: 4, CapitalPerGrid: 100,
		Levels: computeLevels(10000, 40000, 4), LevelIndex: 2, Initialized: true,
	}
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	s := &models.Strategy{Symbol: "BTCUSDT", Status: models.StrategyActive, Parameters: raw}

	cache := newCacheWithTicker(50000)
	mctx := strategy.MarketContext{Ctx: context.Background(), Cache: cache}
	ev := New()
	decision, _, err := ev.Evaluate(s, mctx)
	require.NoError(t, err)
	assert.Equal(t, models.ActionHold, decision.Action)
	assert.Equal(t, reasonOutOfRange, decision.Reason)
	assert.Equal(t, models.StrategyPaused, s.Status)
}
