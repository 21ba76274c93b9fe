package models

import "time"

// Trade is an append-only ledger row produced by the paper broker. Never
// updated or deleted once written.
type Trade struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	StrategyID uint      `gorm:"index;not null" json:"strategy_id"`
	Symbol     string    `gorm:"index;not null" json:"symbol"`
	Side       Side      `gorm:"not null" json:"side"`
	Price      float64   `gorm:"not null" json:"price"`
	Amount     float64   `gorm:"not null" json:"amount"`
	Value      float64   `gorm:"not null" json:"value"`
	Fee        float64   `gorm:"not null" json:"fee"`
	Reason     string    `json:"reason"`
	ExecutedAt time.Time `gorm:"index" json:"executed_at"`
}

func (Trade) TableName() string { return "trades" }
