package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptostrategist/internal/models"
)

type fakeBreaker struct {
	active bool
	reason string
	calls  int
}

func (f *fakeBreaker) SetCircuitBreaker(active bool, reason string) error {
	f.active = active
	f.reason = reason
	f.calls++
	return nil
}

func defaultThresholds() Thresholds {
	return Thresholds{
		MaxTradeNotionalPct:  0.05,
		MaxSymbolExposurePct: 0.25,
		SoftDrawdownPct:      0.10,
		HardDrawdownPct:      0.20,
	}
}

func TestEvaluateAcceptsOrdinaryOrder(t *testing.T) {
	breaker := &fakeBreaker{}
	f := New(defaultThresholds(), breaker)

	verdict, err := f.Evaluate(
		Order{Symbol: "BTCUSDT", Side: models.SideBuy, Notional: 400},
		AccountState{Equity: 10000, EquityHighWaterMark: 10000},
	)
	require.NoError(t, err)
	assert.True(t, verdict.Accepted)
}

func TestEvaluateVetoesWhenCircuitBreakerActive(t *testing.T) {
	f := New(defaultThresholds(), &fakeBreaker{})
	verdict, err := f.Evaluate(
		Order{Symbol: "BTCUSDT", Side: models.SideBuy, Notional: 100},
		AccountState{Equity: 10000, EquityHighWaterMark: 10000, CircuitBreakerActive: true},
	)
	require.NoError(t, err)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonCircuitBreaker, verdict.Reason)
}

func TestEvaluateVetoesTradeCap(t *testing.T) {
	f := New(defaultThresholds(), &fakeBreaker{})
	verdict, err := f.Evaluate(
		Order{Symbol: "BTCUSDT", Side: models.SideBuy, Notional: 600},
		AccountState{Equity: 10000, EquityHighWaterMark: 10000},
	)
	require.NoError(t, err)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonTradeCap, verdict.Reason)
}

func TestEvaluateVetoesExposureCapOnBuyOnly(t *testing.T) {
	f := New(defaultThresholds(), &fakeBreaker{})

	verdict, err := f.Evaluate(
		Order{Symbol: "BTCUSDT", Side: models.SideBuy, Notional: 400},
		AccountState{Equity: 10000, EquityHighWaterMark: 10000, SymbolPositionValue: 2400},
	)
	require.NoError(t, err)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonExposureCap, verdict.Reason)

	verdict, err = f.Evaluate(
		Order{Symbol: "BTCUSDT", Side: models.SideSell, Notional: 400},
		AccountState{Equity: 10000, EquityHighWaterMark: 10000, SymbolPositionValue: 2400},
	)
	require.NoError(t, err)
	assert.True(t, verdict.Accepted)
}

func TestEvaluateHardDrawdownSetsBreakerAndVetoes(t *testing.T) {
	breaker := &fakeBreaker{}
	f := New(defaultThresholds(), breaker)

	verdict, err := f.Evaluate(
		Order{Symbol: "BTCUSDT", Side: models.SideBuy, Notional: 100},
		AccountState{Equity: 7900, EquityHighWaterMark: 10000},
	)
	require.NoError(t, err)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonDrawdownHard, verdict.Reason)
	assert.True(t, breaker.active)
	assert.Equal(t, "drawdown_hard", breaker.reason)
}

func TestEvaluateSoftDrawdownVetoesBuyButAllowsSell(t *testing.T) {
	f := New(defaultThresholds(), &fakeBreaker{})

	verdict, err := f.Evaluate(
		Order{Symbol: "BTCUSDT", Side: models.SideBuy, Notional: 100},
		AccountState{Equity: 8900, EquityHighWaterMark: 10000},
	)
	require.NoError(t, err)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, ReasonDrawdownSoft, verdict.Reason)

	verdict, err = f.Evaluate(
		Order{Symbol: "BTCUSDT", Side: models.SideSell, Notional: 100},
		AccountState{Equity: 8900, EquityHighWaterMark: 10000},
	)
	require.NoError(t, err)
	assert.True(t, verdict.Accepted)
}

func TestClearCircuitBreakerCallsBreakerSetter(t *testing.T) {
	breaker := &fakeBreaker{active: true, reason: "drawdown_hard"}
	f := New(defaultThresholds(), breaker)

	require.NoError(t, f.ClearCircuitBreaker())
	assert.False(t, breaker.active)
	assert.Equal(t, 1, breaker.calls)
}
