package models

import "time"

// Strategy is a named, symbol-bound trading strategy definition. Created
// and mutated by the admin surface; its Status, Parameters and LastRunAt
// are the only fields the scheduler writes.
type Strategy struct {
	ID               uint           `gorm:"primarykey" json:"id"`
	Name             string         `gorm:"uniqueIndex;not null" json:"name"`
	Kind             StrategyKind   `gorm:"column:type;not null" json:"type"`
	Symbol           string         `gorm:"not null" json:"symbol"`
	Status           StrategyStatus `gorm:"not null;default:ACTIVE" json:"status"`
	ScheduleInterval int            `gorm:"not null" json:"schedule_interval"`
	Parameters       []byte         `gorm:"type:blob" json:"-"`
	LastRunAt        *time.Time     `json:"last_run_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	RunLogs []RunLog `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Signals []Signal `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Strategy) TableName() string { return "strategies" }
