package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/glyhealth/diabetes-insights-backend/internal/apperr"
	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/repos"
	"github.com/glyhealth/diabetes-insights-backend/internal/types"
)

// AssessmentResult is a persisted assessment together with the parsed
// recommendation payload.
type AssessmentResult struct {
	Assessment      *types.HealthAssessment `json:"assessment"`
	Recommendations RecommendationTriple    `json:"recommendations"`
}

// HealthService produces individual risk assessments: it scores one record
// with the fitted classifier, asks the gateway for guidance, and persists the
// result linked to both the user and the record.
type HealthService struct {
	log            *logger.Logger
	userRepo       repos.UserRepo
	recordRepo     repos.HealthRecordRepo
	assessmentRepo repos.HealthAssessmentRepo
	scorer         *RiskScorer
	recommender    *RecommendationService
	notifier       *NotificationService
}

func NewHealthService(
	log *logger.Logger,
	userRepo repos.UserRepo,
	recordRepo repos.HealthRecordRepo,
	assessmentRepo repos.HealthAssessmentRepo,
	scorer *RiskScorer,
	recommender *RecommendationService,
	notifier *NotificationService,
) *HealthService {
	return &HealthService{
		log:            log.With("service", "HealthService"),
		userRepo:       userRepo,
		recordRepo:     recordRepo,
		assessmentRepo: assessmentRepo,
		scorer:         scorer,
		recommender:    recommender,
		notifier:       notifier,
	}
}

// Assess scores one record for one user. The classifier is fitted lazily on
// the first assessment after startup; later calls reuse the fitted model.
func (s *HealthService) Assess(ctx context.Context, userID, recordID uuid.UUID) (*AssessmentResult, error) {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}

	record, err := s.recordRepo.GetByID(ctx, nil, recordID)
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if record == nil {
		return nil, apperr.NotFound("health record not found")
	}

	if !s.scorer.Fitted() {
		if err := s.fit(ctx); err != nil {
			return nil, err
		}
	}

	score, err := s.scorer.Score(record)
	if err != nil {
		return nil, apperr.Training("risk scoring failed", err)
	}
	level := RiskLevelForScore(score)

	triple := s.recommender.Recommend(ctx, StatsSummary{
		TotalRecords:  1,
		PositiveCases: boolToInt(record.Positive()),
		PositiveRate:  float64(boolToInt(record.Positive())) * 100,
		AvgGlucose:    float64(record.Glucose),
		AvgBMI:        record.BMI,
		AvgAge:        float64(record.Age),
	})

	payload, err := json.Marshal(triple)
	if err != nil {
		return nil, fmt.Errorf("marshal recommendations: %w", err)
	}

	assessment := &types.HealthAssessment{
		UserID:          userID,
		HealthRecordID:  recordID,
		RiskScore:       score,
		RiskLevel:       level,
		Recommendations: datatypes.JSON(payload),
	}
	if err := s.assessmentRepo.Create(ctx, nil, assessment); err != nil {
		return nil, fmt.Errorf("create assessment: %w", err)
	}
	if err := s.recordRepo.AttachAssessment(ctx, nil, recordID, assessment.ID); err != nil {
		s.log.Warn("Failed to link assessment to record",
			"record_id", recordID, "assessment_id", assessment.ID, "error", err)
	}

	s.log.Info("Assessment created",
		"user_id", userID.String(),
		"assessment_id", assessment.ID,
		"risk_level", level,
	)

	if s.notifier != nil {
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			s.notifier.NotifyAssessment(nctx, user, assessment, triple)
		}()
	}

	return &AssessmentResult{Assessment: assessment, Recommendations: triple}, nil
}

// AssessInBackground runs Assess detached from the triggering request, for
// flows where the caller should not wait (manual record entry). Failures are
// logged only.
func (s *HealthService) AssessInBackground(userID, recordID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.Assess(ctx, userID, recordID); err != nil {
			s.log.Error("Background assessment failed",
				"user_id", userID.String(), "record_id", recordID, "error", err)
		}
	}()
}

// fit trains on the DATASET portion of the snapshot.
func (s *HealthService) fit(ctx context.Context) error {
	records, err := s.recordRepo.ListBySource(ctx, nil, types.SourceDataset)
	if err != nil {
		return fmt.Errorf("load training records: %w", err)
	}
	if err := s.scorer.Fit(records); err != nil {
		return apperr.Training("risk model could not be trained", err)
	}
	return nil
}

func (s *HealthService) GetAssessment(ctx context.Context, id uuid.UUID) (*types.HealthAssessment, error) {
	assessment, err := s.assessmentRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if assessment == nil {
		return nil, apperr.NotFound("health assessment not found")
	}
	return assessment, nil
}

func (s *HealthService) ListUserAssessments(ctx context.Context, userID uuid.UUID) ([]*types.HealthAssessment, error) {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}
	return s.assessmentRepo.ListByUser(ctx, nil, userID)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
