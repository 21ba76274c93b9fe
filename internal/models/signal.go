package models

import "time"

// Signal is an append-only record of every decision an evaluator produced,
// whether or not it resulted in a trade (HOLD and vetoed orders still log
// a signal).
type Signal struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	StrategyID    uint      `gorm:"index;not null" json:"strategy_id"`
	Symbol        string    `gorm:"index;not null" json:"symbol"`
	Action        Action    `gorm:"not null" json:"action"`
	Conviction    float64   `gorm:"not null" json:"conviction"`
	PriceAtSignal float64   `json:"price_at_signal"`
	Reason        string    `json:"reason"`
	RawAnalysis   []byte    `gorm:"type:blob" json:"-"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

func (Signal) TableName() string { return "signals" }
