package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/types"
)

type HealthAssessmentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, assessment *types.HealthAssessment) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.HealthAssessment, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.HealthAssessment, error)
}

type healthAssessmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHealthAssessmentRepo(db *gorm.DB, baseLog *logger.Logger) HealthAssessmentRepo {
	return &healthAssessmentRepo{db: db, log: baseLog.With("repo", "HealthAssessmentRepo")}
}

func (r *healthAssessmentRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *healthAssessmentRepo) Create(ctx context.Context, tx *gorm.DB, assessment *types.HealthAssessment) error {
	return r.conn(tx).WithContext(ctx).Create(assessment).Error
}

func (r *healthAssessmentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.HealthAssessment, error) {
	var assessment types.HealthAssessment
	err := r.conn(tx).WithContext(ctx).First(&assessment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &assessment, nil
}

func (r *healthAssessmentRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.HealthAssessment, error) {
	var assessments []*types.HealthAssessment
	if err := r.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&assessments).Error; err != nil {
		return nil, err
	}
	return assessments, nil
}
