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

type UploadAttemptRepo interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *types.UploadAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.UploadAttempt, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.UploadAttempt, error)
	MarkSuccess(ctx context.Context, tx *gorm.DB, id uuid.UUID, recordsCount int) error
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, errorMessage string) error
}

type uploadAttemptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUploadAttemptRepo(db *gorm.DB, baseLog *logger.Logger) UploadAttemptRepo {
	return &uploadAttemptRepo{db: db, log: baseLog.With("repo", "UploadAttemptRepo")}
}

func (r *uploadAttemptRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *uploadAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *types.UploadAttempt) error {
	return r.conn(tx).WithContext(ctx).Create(attempt).Error
}

func (r *uploadAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.UploadAttempt, error) {
	var attempt types.UploadAttempt
	err := r.conn(tx).WithContext(ctx).First(&attempt, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *uploadAttemptRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.UploadAttempt, error) {
	var attempts []*types.UploadAttempt
	if err := r.conn(tx).WithContext(ctx).
		Order("created_at DESC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

// MarkSuccess and MarkFailed guard the status column so an attempt can only
// leave PROCESSING once; a second terminal write is a silent no-op.
func (r *uploadAttemptRepo) MarkSuccess(ctx context.Context, tx *gorm.DB, id uuid.UUID, recordsCount int) error {
	now := time.Now()
	return r.conn(tx).WithContext(ctx).
		Model(&types.UploadAttempt{}).
		Where("id = ? AND status = ?", id, types.AttemptProcessing).
		Updates(map[string]any{
			"status":        types.AttemptSuccess,
			"records_count": recordsCount,
			"completed_at":  now,
		}).Error
}

func (r *uploadAttemptRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, errorMessage string) error {
	now := time.Now()
	return r.conn(tx).WithContext(ctx).
		Model(&types.UploadAttempt{}).
		Where("id = ? AND status = ?", id, types.AttemptProcessing).
		Updates(map[string]any{
			"status":        types.AttemptFailed,
			"error_message": errorMessage,
			"completed_at":  now,
		}).Error
}
