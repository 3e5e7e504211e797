package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glyhealth/diabetes-insights-backend/internal/apperr"
	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/repos"
	"github.com/glyhealth/diabetes-insights-backend/internal/types"
)

// UploadResult is returned to the client after a successful bulk ingestion.
type UploadResult struct {
	Message         string    `json:"message"`
	RecordsUploaded int       `json:"records_uploaded"`
	AttemptID       uuid.UUID `json:"attempt_id"`
}

// NewRecordInput carries one manually entered record.
type NewRecordInput struct {
	Pregnancies      int        `json:"pregnancies"`
	Glucose          int        `json:"glucose" binding:"required"`
	BloodPressure    int        `json:"blood_pressure"`
	SkinThickness    int        `json:"skin_thickness"`
	Insulin          int        `json:"insulin"`
	BMI              float64    `json:"bmi" binding:"required"`
	DiabetesPedigree float64    `json:"diabetes_pedigree"`
	Age              int        `json:"age" binding:"required"`
	Outcome          *bool      `json:"outcome"`
	UserID           *uuid.UUID `json:"user_id"`
}

// DataService owns record ingestion: CSV bulk uploads with their attempt
// lifecycle, single-record creation, and record/attempt queries.
type DataService struct {
	log         *logger.Logger
	db          *gorm.DB
	recordRepo  repos.HealthRecordRepo
	attemptRepo repos.UploadAttemptRepo
	userRepo    repos.UserRepo
}

func NewDataService(log *logger.Logger, db *gorm.DB, recordRepo repos.HealthRecordRepo, attemptRepo repos.UploadAttemptRepo, userRepo repos.UserRepo) *DataService {
	return &DataService{
		log:         log.With("service", "DataService"),
		db:          db,
		recordRepo:  recordRepo,
		attemptRepo: attemptRepo,
		userRepo:    userRepo,
	}
}

// Column names expected in historical CSV exports. "Diabetes" is accepted as
// an alias for "Outcome"; matching is case-insensitive.
var csvColumns = map[string]string{
	"pregnancies":              "pregnancies",
	"glucose":                  "glucose",
	"bloodpressure":            "blood_pressure",
	"skinthickness":            "skin_thickness",
	"insulin":                  "insulin",
	"bmi":                      "bmi",
	"diabetespedigreefunction": "diabetes_pedigree",
	"age":                      "age",
	"outcome":                  "outcome",
	"diabetes":                 "outcome",
}

var requiredCSVColumns = []string{"glucose", "bmi", "age", "outcome"}

// UploadCSV runs one bulk ingestion. The attempt row is created first in
// PROCESSING, the rows are inserted in a single transaction, and the attempt
// is then moved to SUCCESS or FAILED. A failed parse inserts nothing.
func (s *DataService) UploadCSV(ctx context.Context, filename string, file io.Reader, userID *uuid.UUID) (*UploadResult, error) {
	attempt := &types.UploadAttempt{
		UserID:   userID,
		Filename: filename,
		Status:   types.AttemptProcessing,
	}
	if err := s.attemptRepo.Create(ctx, nil, attempt); err != nil {
		return nil, fmt.Errorf("create upload attempt: %w", err)
	}

	records, err := parseCSV(file)
	if err != nil {
		s.fail(ctx, attempt.ID, err)
		return nil, err
	}

	for _, r := range records {
		r.Source = types.SourceDataset
		r.UserID = userID
		attemptID := attempt.ID
		r.UploadAttemptID = &attemptID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.recordRepo.Create(ctx, tx, records)
	})
	if err != nil {
		s.fail(ctx, attempt.ID, err)
		return nil, fmt.Errorf("insert records: %w", err)
	}

	if err := s.attemptRepo.MarkSuccess(ctx, nil, attempt.ID, len(records)); err != nil {
		s.log.Error("Failed to mark attempt successful", "attempt_id", attempt.ID, "error", err)
	}
	s.log.Info("CSV upload complete", "attempt_id", attempt.ID, "records", len(records))

	return &UploadResult{
		Message:         "Upload successful",
		RecordsUploaded: len(records),
		AttemptID:       attempt.ID,
	}, nil
}

func (s *DataService) fail(ctx context.Context, attemptID uuid.UUID, cause error) {
	if err := s.attemptRepo.MarkFailed(ctx, nil, attemptID, cause.Error()); err != nil {
		s.log.Error("Failed to mark attempt failed", "attempt_id", attemptID, "error", err)
	}
}

func parseCSV(file io.Reader) ([]*types.HealthRecord, error) {
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, apperr.Validation("CSV file is empty")
	}
	if err != nil {
		return nil, apperr.Validationf("invalid CSV: %v", err)
	}

	// column name -> field index
	indexOf := map[string]int{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if field, ok := csvColumns[key]; ok {
			if _, dup := indexOf[field]; !dup {
				indexOf[field] = i
			}
		}
	}

	var missing []string
	for _, field := range requiredCSVColumns {
		if _, ok := indexOf[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validationf("CSV is missing required columns: %s", strings.Join(missing, ", "))
	}

	var records []*types.HealthRecord
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, apperr.Validationf("invalid CSV at line %d: %v", line, err)
		}

		record, err := rowToRecord(row, indexOf)
		if err != nil {
			return nil, apperr.Validationf("invalid CSV at line %d: %v", line, err)
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		return nil, apperr.Validation("CSV contains no data rows")
	}
	return records, nil
}

func rowToRecord(row []string, indexOf map[string]int) (*types.HealthRecord, error) {
	cell := func(field string) string {
		i, ok := indexOf[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	intField := func(field string, required bool) (int, error) {
		raw := cell(field)
		if raw == "" {
			if required {
				return 0, fmt.Errorf("missing value for %s", field)
			}
			return 0, nil
		}
		// Historical exports sometimes carry integer columns as "85.0".
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("bad value %q for %s", raw, field)
		}
		return int(f), nil
	}

	floatField := func(field string, required bool) (float64, error) {
		raw := cell(field)
		if raw == "" {
			if required {
				return 0, fmt.Errorf("missing value for %s", field)
			}
			return 0, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("bad value %q for %s", raw, field)
		}
		return f, nil
	}

	var record types.HealthRecord
	var err error
	if record.Pregnancies, err = intField("pregnancies", false); err != nil {
		return nil, err
	}
	if record.Glucose, err = intField("glucose", true); err != nil {
		return nil, err
	}
	if record.BloodPressure, err = intField("blood_pressure", false); err != nil {
		return nil, err
	}
	if record.SkinThickness, err = intField("skin_thickness", false); err != nil {
		return nil, err
	}
	if record.Insulin, err = intField("insulin", false); err != nil {
		return nil, err
	}
	if record.BMI, err = floatField("bmi", true); err != nil {
		return nil, err
	}
	if record.DiabetesPedigree, err = floatField("diabetes_pedigree", false); err != nil {
		return nil, err
	}
	if record.Age, err = intField("age", true); err != nil {
		return nil, err
	}

	outcomeRaw := cell("outcome")
	if outcomeRaw == "" {
		return nil, fmt.Errorf("missing value for outcome")
	}
	outcome, err := parseOutcome(outcomeRaw)
	if err != nil {
		return nil, err
	}
	record.Outcome = &outcome

	return &record, nil
}

func parseOutcome(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "1", "1.0", "true", "yes":
		return true, nil
	case "0", "0.0", "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("bad value %q for outcome", raw)
	}
}

// CreateRecord stores one manually entered record.
func (s *DataService) CreateRecord(ctx context.Context, input NewRecordInput) (*types.HealthRecord, error) {
	if input.Glucose <= 0 {
		return nil, apperr.Validation("glucose must be positive")
	}
	if input.BMI <= 0 {
		return nil, apperr.Validation("bmi must be positive")
	}
	if input.Age <= 0 {
		return nil, apperr.Validation("age must be positive")
	}
	if input.UserID != nil {
		user, err := s.userRepo.GetByID(ctx, nil, *input.UserID)
		if err != nil {
			return nil, fmt.Errorf("load user: %w", err)
		}
		if user == nil {
			return nil, apperr.NotFound("user not found")
		}
	}

	record := &types.HealthRecord{
		Pregnancies:      input.Pregnancies,
		Glucose:          input.Glucose,
		BloodPressure:    input.BloodPressure,
		SkinThickness:    input.SkinThickness,
		Insulin:          input.Insulin,
		BMI:              input.BMI,
		DiabetesPedigree: input.DiabetesPedigree,
		Age:              input.Age,
		Outcome:          input.Outcome,
		Source:           types.SourceUserEntry,
		UserID:           input.UserID,
	}
	if err := s.recordRepo.Create(ctx, nil, []*types.HealthRecord{record}); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	return record, nil
}

// ListRecords applies the optional filters and returns a page plus the
// unpaged total.
func (s *DataService) ListRecords(ctx context.Context, filter repos.RecordFilter) ([]*types.HealthRecord, int64, error) {
	return s.recordRepo.List(ctx, nil, filter)
}

func (s *DataService) GetRecord(ctx context.Context, id uuid.UUID) (*types.HealthRecord, error) {
	record, err := s.recordRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apperr.NotFound("health record not found")
	}
	return record, nil
}

func (s *DataService) ListAttempts(ctx context.Context) ([]*types.UploadAttempt, error) {
	return s.attemptRepo.List(ctx, nil)
}

func (s *DataService) GetAttempt(ctx context.Context, id uuid.UUID) (*types.UploadAttempt, error) {
	attempt, err := s.attemptRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, apperr.NotFound("upload attempt not found")
	}
	return attempt, nil
}

// ListAttemptRecords returns the records ingested by one attempt.
func (s *DataService) ListAttemptRecords(ctx context.Context, attemptID uuid.UUID) ([]*types.HealthRecord, error) {
	if _, err := s.GetAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	return s.recordRepo.ListByAttempt(ctx, nil, attemptID)
}
