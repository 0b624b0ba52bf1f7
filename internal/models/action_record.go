package models

import (
	"time"
)

// ActionRecord stores one decision taken (or suppressed) by the engine so it
// can be audited and surfaced in the dashboard.
type ActionRecord struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UUID        string    `json:"uuid" gorm:"uniqueIndex"`
	SourceID    string    `json:"source_id" gorm:"index"`
	Action      string    `json:"action"` // block, blocked_already, failed, dry_run_skip, none
	Reason      string    `json:"reason"`
	Score       float64   `json:"score"`
	WindowIndex int64     `json:"window_index"`
	Hits        int       `json:"hits"` // suspicious windows within the sliding window at decision time
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}
