package models

import "time"

// Position is the broker's holding in a symbol. One row per symbol; a
// position whose Amount drops to zero is deleted rather than persisted
// with a zero amount (spec invariant).
type Position struct {
	Symbol        string    `gorm:"primarykey" json:"symbol"`
	Amount        float64   `gorm:"not null" json:"amount"`
	AverageCost   float64   `gorm:"not null" json:"average_cost"`
	OpenedAt      time.Time `json:"opened_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

func (Position) TableName() string { return "positions" }
