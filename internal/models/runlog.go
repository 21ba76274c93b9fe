package models

import "time"

// RunLog is an append-only record of one scheduler tick for a strategy.
// Within a single strategy, RunLogs are totally ordered by StartedAt
// because the scheduler serializes ticks per strategy.
type RunLog struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	StrategyID uint       `gorm:"index;not null" json:"strategy_id"`
	StartedAt  time.Time  `gorm:"index;not null" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Outcome    RunOutcome `gorm:"not null" json:"outcome"`
	Reason     string     `json:"reason,omitempty"`

	Steps []TraceStep `gorm:"constraint:OnDelete:CASCADE" json:"steps,omitempty"`
}

func (RunLog) TableName() string { return "run_logs" }

// TraceStep is one ordered step in a RunLog's execution trace. Indices are
// dense and 1-based within their RunLog.
type TraceStep struct {
	ID          uint          `gorm:"primarykey" json:"id"`
	RunLogID    uint          `gorm:"uniqueIndex:idx_run_step;not null" json:"run_log_id"`
	StepIndex   int           `gorm:"uniqueIndex:idx_run_step;not null" json:"step_index"`
	Kind        TraceKind     `gorm:"column:kind;not null" json:"kind"`
	Label       string        `json:"label"`
	InputDigest string        `json:"input_digest,omitempty"`
	OutputDigest string       `json:"output_digest,omitempty"`
	Details     []byte        `gorm:"type:blob" json:"-"`
	Duration    time.Duration `json:"duration"`
}

func (TraceStep) TableName() string { return "trace_steps" }
