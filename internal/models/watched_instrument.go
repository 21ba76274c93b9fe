package models

import "time"

// WatchedInstrument marks a symbol the cache should keep warm.
type WatchedInstrument struct {
	Symbol      string    `gorm:"primarykey" json:"symbol"`
	DisplayName string    `json:"display_name"`
	AddedAt     time.Time `json:"added_at"`
}

func (WatchedInstrument) TableName() string { return "watched_instruments" }

// PriceBar is one OHLCV candle. Uniqueness is (Symbol, Timeframe, OpenTime).
type PriceBar struct {
	Symbol    string    `gorm:"primarykey;uniqueIndex:idx_bar" json:"symbol"`
	Timeframe Timeframe `gorm:"primarykey;uniqueIndex:idx_bar" json:"timeframe"`
	OpenTime  time.Time `gorm:"primarykey;uniqueIndex:idx_bar" json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

func (PriceBar) TableName() string { return "price_bars" }

// Account is the singleton paper-trading account.
type Account struct {
	ID                    uint    `gorm:"primarykey" json:"-"`
	Cash                  float64 `gorm:"not null" json:"cash"`
	EquityHighWaterMark   float64 `gorm:"not null" json:"equity_high_water_mark"`
	CircuitBreakerActive  bool    `gorm:"not null" json:"circuit_breaker_active"`
	CircuitBreakerReason  string  `json:"circuit_breaker_reason,omitempty"`
}

func (Account) TableName() string { return "account" }
