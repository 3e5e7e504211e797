package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/repos"
	"github.com/glyhealth/diabetes-insights-backend/internal/types"
)

// analysisAttemptLabel is stored in the attempt's filename column to tell
// analysis runs apart from CSV uploads in the attempt history.
const analysisAttemptLabel = "snapshot-analysis"

// AnalysisResult is the full dataset-wide analysis payload.
type AnalysisResult struct {
	KPIs            KPIs                 `json:"kpis"`
	Outliers        map[string][]Outlier `json:"outliers"`
	Insights        InsightsResult       `json:"insights"`
	Recommendations RecommendationTriple `json:"recommendations"`
}

// AnalysisService orchestrates one analysis pass: a single record snapshot is
// read, statistics and insights are computed concurrently over it, and the
// recommendation gateway interprets the aggregates.
type AnalysisService struct {
	log         *logger.Logger
	recordRepo  repos.HealthRecordRepo
	attemptRepo repos.UploadAttemptRepo
	stats       *StatsService
	insights    *InsightsService
	recommender *RecommendationService
	notifier    *NotificationService
}

func NewAnalysisService(
	log *logger.Logger,
	recordRepo repos.HealthRecordRepo,
	attemptRepo repos.UploadAttemptRepo,
	stats *StatsService,
	insights *InsightsService,
	recommender *RecommendationService,
	notifier *NotificationService,
) *AnalysisService {
	return &AnalysisService{
		log:         log.With("service", "AnalysisService"),
		recordRepo:  recordRepo,
		attemptRepo: attemptRepo,
		stats:       stats,
		insights:    insights,
		recommender: recommender,
		notifier:    notifier,
	}
}

// Run analyzes the current record snapshot, tracked through the same
// PROCESSING/SUCCESS/FAILED lifecycle as uploads. An empty snapshot is not
// an error: every aggregate is zero-valued and the provider is not called.
func (s *AnalysisService) Run(ctx context.Context) (*AnalysisResult, error) {
	attempt := &types.UploadAttempt{Filename: analysisAttemptLabel, Status: types.AttemptProcessing}
	if err := s.attemptRepo.Create(ctx, nil, attempt); err != nil {
		return nil, fmt.Errorf("create analysis attempt: %w", err)
	}

	result, err := s.analyze(ctx)
	if err != nil {
		if markErr := s.attemptRepo.MarkFailed(ctx, nil, attempt.ID, err.Error()); markErr != nil {
			s.log.Error("Failed to mark analysis attempt failed", "attempt_id", attempt.ID, "error", markErr)
		}
		return nil, err
	}
	if markErr := s.attemptRepo.MarkSuccess(ctx, nil, attempt.ID, result.KPIs.TotalRecords); markErr != nil {
		s.log.Error("Failed to mark analysis attempt successful", "attempt_id", attempt.ID, "error", markErr)
	}
	return result, nil
}

func (s *AnalysisService) analyze(ctx context.Context) (*AnalysisResult, error) {
	records, err := s.recordRepo.ListAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	result := &AnalysisResult{}
	if len(records) == 0 {
		result.Outliers = map[string][]Outlier{"glucose": {}, "bmi": {}, "age": {}}
		result.Insights = InsightsResult{
			AgeGroups:     []AgeGroup{},
			BMICategories: []BMICategory{},
			AgeRisk:       []string{},
			BMIRisk:       []string{},
		}
		result.Recommendations = EmptySnapshotTriple()
		return result, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		result.KPIs = s.stats.CalculateKPIs(records)
		result.Outliers = s.stats.DetectOutliers(records)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		result.Insights = s.insights.BuildInsights(records)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Recommendations = s.recommender.Recommend(ctx, StatsSummary{
		TotalRecords:  result.KPIs.TotalRecords,
		PositiveCases: result.KPIs.PositiveCases,
		PositiveRate:  result.KPIs.PositiveRate,
		AvgGlucose:    result.KPIs.AverageGlucose,
		AvgBMI:        result.KPIs.AverageBMI,
		AvgAge:        result.KPIs.AverageAge,
	})
	return result, nil
}

// RunAfterUpload re-analyzes the snapshot in the background after a bulk
// ingestion and notifies the configured channel. It returns immediately; the
// triggering request does not wait.
func (s *AnalysisService) RunAfterUpload(attemptID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		result, err := s.Run(ctx)
		if err != nil {
			s.log.Error("Post-upload analysis failed", "attempt_id", attemptID, "error", err)
			return
		}
		s.log.Info("Post-upload analysis complete",
			"attempt_id", attemptID,
			"total_records", result.KPIs.TotalRecords,
		)
		if s.notifier != nil {
			s.notifier.NotifyAnalysisComplete(ctx, result.KPIs, result.Insights)
		}
	}()
}

// InsightsFromSQL serves the bucketed breakdowns from the SQL rollups instead
// of an in-memory pass, for callers that only need the histograms.
func (s *AnalysisService) InsightsFromSQL(ctx context.Context) (*InsightsResult, error) {
	rowsAge, err := s.recordRepo.AggregateAgeDecades(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("aggregate age decades: %w", err)
	}
	rowsBMI, err := s.recordRepo.AggregateBMICategories(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("aggregate bmi categories: %w", err)
	}

	result := &InsightsResult{
		AgeGroups:     make([]AgeGroup, 0, len(rowsAge)),
		BMICategories: make([]BMICategory, 0, len(rowsBMI)),
	}
	for _, row := range rowsAge {
		result.AgeGroups = append(result.AgeGroups, AgeGroup{
			AgeRange:     fmt.Sprintf("%d-%d", row.Decade, row.Decade+9),
			Count:        row.Count,
			DiabetesRate: Round2(row.DiabetesRate),
		})
	}
	for _, row := range rowsBMI {
		result.BMICategories = append(result.BMICategories, BMICategory{
			Category:     row.Category,
			Count:        row.Count,
			DiabetesRate: Round2(row.DiabetesRate),
		})
	}

	// Risk notes still come from the named ranges over the snapshot.
	records, err := s.recordRepo.ListAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	result.AgeRisk = s.insights.AgeRiskNotes(records)
	result.BMIRisk = s.insights.BMIRiskNotes(records)
	return result, nil
}
