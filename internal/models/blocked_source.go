package models

import (
	"time"
)

// BlockedSource is a row per source the engine currently believes is
// blocked. The firewall remains the source of truth; this registry exists
// for the dashboard and for operators deciding what to unblock.
type BlockedSource struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SourceID  string    `json:"source_id" gorm:"uniqueIndex"`
	Score     float64   `json:"score"` // score that triggered the block
	Hits      int       `json:"hits"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
	CreatedAt time.Time `json:"created_at"`
}
