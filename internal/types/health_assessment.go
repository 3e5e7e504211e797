package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type HealthAssessment struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index;column:user_id" json:"user_id"`
	HealthRecordID  uuid.UUID      `gorm:"type:uuid;not null;index;column:health_record_id" json:"health_record_id"`
	RiskScore       float64        `gorm:"not null;column:risk_score" json:"risk_score"`
	RiskLevel       string         `gorm:"not null;column:risk_level" json:"risk_level"`
	Recommendations datatypes.JSON `gorm:"not null;column:recommendations" json:"recommendations"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (HealthAssessment) TableName() string { return "health_assessment" }

func (a *HealthAssessment) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
