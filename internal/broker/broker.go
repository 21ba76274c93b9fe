// Package broker owns the virtual paper-trading account: cash, positions
// keyed by symbol, and an append-only trade ledger (spec.md §4.3).
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"cryptostrategist/internal/models"
)

// ErrInsufficientCash is returned when a BUY's cost exceeds available cash.
var ErrInsufficientCash = errors.New("broker: insufficient cash")

// ErrInsufficientHolding is returned when a SELL's amount exceeds the held
// position.
var ErrInsufficientHolding = errors.New("broker: insufficient holding")

// ErrNoPrice is returned when the broker cannot resolve a last price for a
// symbol it needs to price an order.
var ErrNoPrice = errors.New("broker: no price available")

// Store is the subset of database.Store the broker needs.
type Store interface {
	DB() *gorm.DB
	Write(fn func(tx *gorm.DB) error) error
}

// PriceLookup resolves the latest traded price for a symbol, backed by the
// market data cache's ticker_24h source. ok is false when no price has ever
// been observed for the symbol.
type PriceLookup interface {
	LastPrice(ctx context.Context, symbol string) (price float64, ok bool)
}

// Order is the broker's execute() input.
type Order struct {
	Symbol       string
	Side         models.Side
	NotionalOrAmount float64 // BUY: quote-currency notional. SELL: base-asset amount.
	Reason       string
	StrategyID   uint
}

// Snapshot is the broker's point-in-time account view.
type Snapshot struct {
	Cash      float64
	Positions []models.Position
	Equity    float64
}

// Broker serializes all account mutations under the store's single writer
// lock (spec.md §4.3, §5): no operation holds that lock across a network
// call, so Execute resolves every price it needs before taking the lock.
type Broker struct {
	store     Store
	prices    PriceLookup
	feeBps    float64
	slipBps   float64
}

// New builds a Broker. feeBps/slipBps are the configured default fee and
// slippage, expressed in basis points.
func New(store Store, prices PriceLookup, feeBps, slipBps float64) *Broker {
	return &Broker{store: store, prices: prices, feeBps: feeBps, slipBps: slipBps}
}

// Snapshot returns {cash, positions, equity}. Positions without a resolvable
// last price contribute amount*average_cost to equity, per spec.md §4.3.
func (b *Broker) Snapshot(ctx context.Context) (Snapshot, error) {
	var account models.Account
	if err := b.store.DB().First(&account).Error; err != nil {
		return Snapshot{}, fmt.Errorf("broker: load account: %w", err)
	}

	var positions []models.Position
	if err := b.store.DB().Find(&positions).Error; err != nil {
		return Snapshot{}, fmt.Errorf("broker: load positions: %w", err)
	}

	equity := account.Cash
	for _, p := range positions {
		if price, ok := b.prices.LastPrice(ctx, p.Symbol); ok {
			equity += p.Amount * price
		} else {
			equity += p.Amount * p.AverageCost
		}
	}

	return Snapshot{Cash: account.Cash, Positions: positions, Equity: equity}, nil
}

// Execute prices and applies order, appending a Trade to the ledger and
// mutating cash/position atomically under the writer lock.
func (b *Broker) Execute(ctx context.Context, order Order) (models.Trade, error) {
	lastPrice, ok := b.prices.LastPrice(ctx, order.Symbol)
	if !ok {
		return models.Trade{}, fmt.Errorf("%w: %s", ErrNoPrice, order.Symbol)
	}

	execPrice := executionPrice(lastPrice, order.Side, b.feeBps, b.slipBps)

	var held []models.Position
	if err := b.store.DB().Find(&held).Error; err != nil {
		return models.Trade{}, fmt.Errorf("broker: load positions: %w", err)
	}
	marks := make(map[string]float64, len(held))
	for _, p := range held {
		if p.Symbol == order.Symbol {
			continue
		}
		if price, ok := b.prices.LastPrice(ctx, p.Symbol); ok {
			marks[p.Symbol] = price
		}
	}

	var trade models.Trade
	err := b.store.Write(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.First(&account).Error; err != nil {
			return fmt.Errorf("load account: %w", err)
		}

		var position models.Position
		hasPosition := true
		if err := tx.Where("symbol = ?", order.Symbol).First(&position).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("load position: %w", err)
			}
			hasPosition = false
			position = models.Position{Symbol: order.Symbol}
		}

		var amount float64
		var fee float64
		now := time.Now().UTC()

		switch order.Side {
		case models.SideBuy:
			notional := order.NotionalOrAmount
			amount = notional / execPrice
			fee = notional * (b.feeBps / 10000)
			if notional+fee > account.Cash {
				return ErrInsufficientCash
			}
			account.Cash -= notional + fee

			totalCost := position.Amount*position.AverageCost + amount*execPrice
			newAmount := position.Amount + amount
			position.AverageCost = totalCost / newAmount
			position.Amount = newAmount
			if !hasPosition {
				position.OpenedAt = now
			}
			position.LastUpdatedAt = now

		case models.SideSell:
			amount = order.NotionalOrAmount
			if !hasPosition || amount > position.Amount {
				return ErrInsufficientHolding
			}
			value := amount * execPrice
			fee = value * (b.feeBps / 10000)
			account.Cash += value - fee

			position.Amount -= amount
			position.LastUpdatedAt = now
			// average_cost preserved unchanged on SELL (spec.md §3).

		default:
			return fmt.Errorf("unknown order side %q", order.Side)
		}

		trade = models.Trade{
			StrategyID: order.StrategyID,
			Symbol:     order.Symbol,
			Side:       order.Side,
			Price:      execPrice,
			Amount:     amount,
			Value:      amount * execPrice,
			Fee:        fee,
			Reason:     order.Reason,
			ExecutedAt: now,
		}
		if err := tx.Create(&trade).Error; err != nil {
			return fmt.Errorf("append trade: %w", err)
		}

		if position.Amount == 0 {
			if hasPosition {
				if err := tx.Where("symbol = ?", order.Symbol).Delete(&models.Position{}).Error; err != nil {
					return fmt.Errorf("delete closed position: %w", err)
				}
			}
		} else if hasPosition {
			if err := tx.Model(&models.Position{}).Where("symbol = ?", order.Symbol).Updates(map[string]any{
				"amount":          position.Amount,
				"average_cost":    position.AverageCost,
				"last_updated_at": position.LastUpdatedAt,
			}).Error; err != nil {
				return fmt.Errorf("update position: %w", err)
			}
		} else {
			if err := tx.Create(&position).Error; err != nil {
				return fmt.Errorf("create position: %w", err)
			}
		}

		equity := account.Cash
		var positions []models.Position
		if err := tx.Find(&positions).Error; err != nil {
			return fmt.Errorf("load positions for equity: %w", err)
		}
		for _, p := range positions {
			if p.Symbol == order.Symbol {
				equity += position.Amount * execPrice
				continue
			}
			if price, ok := marks[p.Symbol]; ok {
				equity += p.Amount * price
			} else {
				equity += p.Amount * p.AverageCost
			}
		}
		if equity > account.EquityHighWaterMark {
			account.EquityHighWaterMark = equity
		}

		if err := tx.Save(&account).Error; err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Trade{}, err
	}
	return trade, nil
}

// CloseAll sells a symbol's entire held amount.
func (b *Broker) CloseAll(ctx context.Context, symbol string, strategyID uint, reason string) (models.Trade, error) {
	var position models.Position
	if err := b.store.DB().Where("symbol = ?", symbol).First(&position).Error; err != nil {
		return models.Trade{}, fmt.Errorf("broker: close_all: load position: %w", err)
	}
	return b.Execute(ctx, Order{
		Symbol:           symbol,
		Side:             models.SideSell,
		NotionalOrAmount: position.Amount,
		Reason:           reason,
		StrategyID:       strategyID,
	})
}

// executionPrice applies the configured fee+slippage spread to the last
// price: buys pay up, sells receive down, symmetric around last_price.
func executionPrice(lastPrice float64, side models.Side, feeBps, slipBps float64) float64 {
	spread := (feeBps + slipBps) / 10000
	if side == models.SideBuy {
		return lastPrice * (1 + spread)
	}
	return lastPrice * (1 - spread)
}
