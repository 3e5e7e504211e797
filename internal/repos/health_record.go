package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/types"
)

// RecordFilter holds the optional query-string filters for record listings.
// Nil means "not filtered on".
type RecordFilter struct {
	MinAge     *int
	MaxAge     *int
	MinBMI     *float64
	MaxBMI     *float64
	MinGlucose *float64
	MaxGlucose *float64
	Outcome    *bool
	Limit      int
	Offset     int
}

// AgeDecadeRow is one row of the SQL decade rollup; Decade is the inclusive
// lower bound (30 covers ages 30-39).
type AgeDecadeRow struct {
	Decade       int
	Count        int
	DiabetesRate float64
}

type BMICategoryRow struct {
	Category     string
	Count        int
	DiabetesRate float64
}

type HealthRecordRepo interface {
	Create(ctx context.Context, tx *gorm.DB, records []*types.HealthRecord) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.HealthRecord, error)
	List(ctx context.Context, tx *gorm.DB, filter RecordFilter) ([]*types.HealthRecord, int64, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.HealthRecord, error)
	ListBySource(ctx context.Context, tx *gorm.DB, source types.RecordSource) ([]*types.HealthRecord, error)
	ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) ([]*types.HealthRecord, error)
	AttachAssessment(ctx context.Context, tx *gorm.DB, recordID, assessmentID uuid.UUID) error
	AggregateAgeDecades(ctx context.Context, tx *gorm.DB) ([]AgeDecadeRow, error)
	AggregateBMICategories(ctx context.Context, tx *gorm.DB) ([]BMICategoryRow, error)
}

type healthRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHealthRecordRepo(db *gorm.DB, baseLog *logger.Logger) HealthRecordRepo {
	return &healthRecordRepo{db: db, log: baseLog.With("repo", "HealthRecordRepo")}
}

func (r *healthRecordRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *healthRecordRepo) Create(ctx context.Context, tx *gorm.DB, records []*types.HealthRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(&records).Error
}

func (r *healthRecordRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.HealthRecord, error) {
	var record types.HealthRecord
	err := r.conn(tx).WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *healthRecordRepo) List(ctx context.Context, tx *gorm.DB, filter RecordFilter) ([]*types.HealthRecord, int64, error) {
	query := r.conn(tx).WithContext(ctx).Model(&types.HealthRecord{})

	if filter.MinAge != nil {
		query = query.Where("age >= ?", *filter.MinAge)
	}
	if filter.MaxAge != nil {
		query = query.Where("age <= ?", *filter.MaxAge)
	}
	if filter.MinBMI != nil {
		query = query.Where("bmi >= ?", *filter.MinBMI)
	}
	if filter.MaxBMI != nil {
		query = query.Where("bmi <= ?", *filter.MaxBMI)
	}
	if filter.MinGlucose != nil {
		query = query.Where("glucose >= ?", *filter.MinGlucose)
	}
	if filter.MaxGlucose != nil {
		query = query.Where("glucose <= ?", *filter.MaxGlucose)
	}
	if filter.Outcome != nil {
		query = query.Where("outcome = ?", *filter.Outcome)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []*types.HealthRecord
	if err := query.Order("created_at").Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *healthRecordRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.HealthRecord, error) {
	var records []*types.HealthRecord
	if err := r.conn(tx).WithContext(ctx).Order("created_at").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *healthRecordRepo) ListBySource(ctx context.Context, tx *gorm.DB, source types.RecordSource) ([]*types.HealthRecord, error) {
	var records []*types.HealthRecord
	if err := r.conn(tx).WithContext(ctx).
		Where("source = ?", source).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *healthRecordRepo) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) ([]*types.HealthRecord, error) {
	var records []*types.HealthRecord
	if err := r.conn(tx).WithContext(ctx).
		Where("upload_attempt_id = ?", attemptID).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *healthRecordRepo) AttachAssessment(ctx context.Context, tx *gorm.DB, recordID, assessmentID uuid.UUID) error {
	now := time.Now()
	return r.conn(tx).WithContext(ctx).
		Model(&types.HealthRecord{}).
		Where("id = ? AND health_assessment_id IS NULL", recordID).
		Updates(map[string]any{
			"health_assessment_id": assessmentID,
			"updated_at":           now,
		}).Error
}

// AggregateAgeDecades groups records by (age / 10) * 10 in SQL. Integer
// division truncates on both Postgres and SQLite, so the rollup matches the
// in-memory floor(age/10)*10 bucketing exactly.
func (r *healthRecordRepo) AggregateAgeDecades(ctx context.Context, tx *gorm.DB) ([]AgeDecadeRow, error) {
	var rows []AgeDecadeRow
	err := r.conn(tx).WithContext(ctx).
		Model(&types.HealthRecord{}).
		Select("(age / 10) * 10 AS decade, COUNT(id) AS count, AVG(CASE WHEN outcome THEN 100.0 ELSE 0.0 END) AS diabetes_rate").
		Group("(age / 10) * 10").
		Order("decade").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *healthRecordRepo) AggregateBMICategories(ctx context.Context, tx *gorm.DB) ([]BMICategoryRow, error) {
	caseExpr := "CASE WHEN bmi < 18.5 THEN 'Underweight' WHEN bmi < 25 THEN 'Normal' WHEN bmi < 30 THEN 'Overweight' ELSE 'Obese' END"
	var rows []BMICategoryRow
	err := r.conn(tx).WithContext(ctx).
		Model(&types.HealthRecord{}).
		Select(caseExpr + " AS category, COUNT(id) AS count, AVG(CASE WHEN outcome THEN 100.0 ELSE 0.0 END) AS diabetes_rate").
		Group(caseExpr).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
