package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AttemptStatus string

const (
	AttemptProcessing AttemptStatus = "PROCESSING"
	AttemptSuccess    AttemptStatus = "SUCCESS"
	AttemptFailed     AttemptStatus = "FAILED"
)

// UploadAttempt tracks one bulk ingestion. Status moves from PROCESSING to
// exactly one of SUCCESS or FAILED; CompletedAt is set on that transition.
type UploadAttempt struct {
	ID           uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       *uuid.UUID    `gorm:"type:uuid;index;column:user_id" json:"user_id,omitempty"`
	Filename     string        `gorm:"not null;column:filename" json:"filename"`
	RecordsCount int           `gorm:"not null;default:0;column:records_count" json:"records_count"`
	Status       AttemptStatus `gorm:"not null;column:status" json:"status"`
	ErrorMessage *string       `gorm:"column:error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time     `gorm:"not null" json:"created_at"`
	CompletedAt  *time.Time    `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (UploadAttempt) TableName() string { return "upload_attempt" }

func (a *UploadAttempt) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
