// Package risk implements the stateless order filter of spec.md §4.4: five
// ordered checks that gate every order before it reaches the broker.
package risk

import (
	"fmt"
	"sync"

	"cryptostrategist/internal/models"
)

// VetoReason enumerates why an order was rejected.
type VetoReason string

const (
	ReasonCircuitBreaker VetoReason = "circuit_breaker"
	ReasonTradeCap       VetoReason = "trade_cap"
	ReasonExposureCap    VetoReason = "exposure_cap"
	ReasonDrawdownHard   VetoReason = "drawdown_hard"
	ReasonDrawdownSoft   VetoReason = "drawdown_soft"
)

// Verdict is the filter's output: either Accept or a vetoed Reason.
type Verdict struct {
	Accepted bool
	Reason   VetoReason
}

func accept() Verdict               { return Verdict{Accepted: true} }
func veto(reason VetoReason) Verdict { return Verdict{Accepted: false, Reason: reason} }

// Order is the minimal shape the filter needs to evaluate a proposed trade.
type Order struct {
	Symbol  string
	Side    models.Side
	Notional float64 // always expressed in quote currency, even for SELLs.
}

// AccountState is the account/position view the filter checks against.
type AccountState struct {
	Equity              float64
	EquityHighWaterMark float64
	CircuitBreakerActive bool
	// SymbolPositionValue is the current mark-to-market value of any
	// existing position in Order.Symbol (0 if none held).
	SymbolPositionValue float64
}

// Thresholds holds the filter's configurable limits, all fractions of
// equity (e.g. 0.05 for 5%).
type Thresholds struct {
	MaxTradeNotionalPct  float64
	MaxSymbolExposurePct float64
	SoftDrawdownPct      float64
	HardDrawdownPct      float64
}

// BreakerSetter persists a circuit breaker activation as a side effect of
// check 4. The broker does not own this write (spec.md §4.3); the filter
// does, through whatever store adapter the caller wires in.
type BreakerSetter interface {
	SetCircuitBreaker(active bool, reason string) error
}

// Filter evaluates orders against Thresholds. It holds no trade-local
// state; CircuitBreakerActive is read from the AccountState passed to each
// Evaluate call. Its mutex serializes Evaluate and ClearCircuitBreaker, so
// the breaker is never set and cleared concurrently.
type Filter struct {
	mu         sync.Mutex
	thresholds Thresholds
	breaker    BreakerSetter
}

// New builds a Filter.
func New(thresholds Thresholds, breaker BreakerSetter) *Filter {
	return &Filter{thresholds: thresholds, breaker: breaker}
}

// Evaluate runs the five ordered checks of spec.md §4.4 and returns the
// first veto encountered, or Accept if none fire.
func (f *Filter) Evaluate(order Order, account AccountState) (Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if account.CircuitBreakerActive {
		return veto(ReasonCircuitBreaker), nil
	}

	maxTradeNotional := account.Equity * f.thresholds.MaxTradeNotionalPct
	if order.Notional > maxTradeNotional {
		return veto(ReasonTradeCap), nil
	}

	if order.Side == models.SideBuy {
		projectedValue := account.SymbolPositionValue + order.Notional
		maxExposure := account.Equity * f.thresholds.MaxSymbolExposurePct
		if projectedValue > maxExposure {
			return veto(ReasonExposureCap), nil
		}
	}

	var drawdown float64
	if account.EquityHighWaterMark > 0 {
		drawdown = 1 - account.Equity/account.EquityHighWaterMark
	}

	if drawdown >= f.thresholds.HardDrawdownPct {
		if err := f.breaker.SetCircuitBreaker(true, string(ReasonDrawdownHard)); err != nil {
			return Verdict{}, fmt.Errorf("risk: set circuit breaker: %w", err)
		}
		return veto(ReasonDrawdownHard), nil
	}

	if drawdown >= f.thresholds.SoftDrawdownPct && order.Side == models.SideBuy {
		return veto(ReasonDrawdownSoft), nil
	}

	return accept(), nil
}

// ClearCircuitBreaker is callable only from the admin surface (spec.md
// §4.4: "cleared only by an explicit admin action").
func (f *Filter) ClearCircuitBreaker() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.breaker.SetCircuitBreaker(false, "")
}
