package entity

import (
	"time"

	"gorm.io/datatypes"
)

// ScanArchive is the Postgres row written once per terminal job. It outlives
// the Redis records, which expire; it is never read back by the pipeline.
type ScanArchive struct {
	JobID       string         `json:"job_id" gorm:"primaryKey"`
	Status      string         `json:"status" gorm:"not null;index"`
	RequestID   string         `json:"request_id" gorm:"index"`
	ImageURL    string         `json:"image_url"`
	ItemCount   int            `json:"item_count"`
	Items       datatypes.JSON `json:"items" gorm:"type:jsonb"`
	Error       string         `json:"error" gorm:"type:text"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt time.Time      `json:"completed_at" gorm:"index"`
}
