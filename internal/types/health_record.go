package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RecordSource tells apart bulk-imported dataset rows from records a user
// entered by hand. Only DATASET rows feed classifier training.
type RecordSource string

const (
	SourceDataset   RecordSource = "DATASET"
	SourceUserEntry RecordSource = "USER_ENTRY"
)

type HealthRecord struct {
	ID               uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Pregnancies      int          `gorm:"not null;column:pregnancies" json:"pregnancies"`
	Glucose          int          `gorm:"not null;column:glucose" json:"glucose"`
	BloodPressure    int          `gorm:"not null;column:blood_pressure" json:"blood_pressure"`
	SkinThickness    int          `gorm:"not null;column:skin_thickness" json:"skin_thickness"`
	Insulin          int          `gorm:"not null;column:insulin" json:"insulin"`
	BMI              float64      `gorm:"not null;column:bmi" json:"bmi"`
	DiabetesPedigree float64      `gorm:"not null;column:diabetes_pedigree" json:"diabetes_pedigree"`
	Age              int          `gorm:"not null;column:age" json:"age"`
	Outcome          *bool        `gorm:"column:outcome" json:"outcome"`
	Source           RecordSource `gorm:"not null;column:source;index" json:"source"`

	UserID             *uuid.UUID `gorm:"type:uuid;index;column:user_id" json:"user_id,omitempty"`
	UploadAttemptID    *uuid.UUID `gorm:"type:uuid;index;column:upload_attempt_id" json:"upload_attempt_id,omitempty"`
	HealthAssessmentID *uuid.UUID `gorm:"type:uuid;column:health_assessment_id" json:"health_assessment_id,omitempty"`

	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt *time.Time `gorm:"column:updated_at" json:"updated_at,omitempty"`
}

func (HealthRecord) TableName() string { return "health_record" }

func (r *HealthRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Positive reports whether the record carries a positive outcome. Records
// whose outcome is still unassessed count as negative.
func (r *HealthRecord) Positive() bool {
	return r.Outcome != nil && *r.Outcome
}
