package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/glyhealth/diabetes-insights-backend/internal/apperr"
	"github.com/glyhealth/diabetes-insights-backend/internal/repos"
	"github.com/glyhealth/diabetes-insights-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = gdb.AutoMigrate(
		&types.User{},
		&types.UploadAttempt{},
		&types.HealthRecord{},
		&types.HealthAssessment{},
	)
	if err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return gdb
}

func newTestDataService(t *testing.T) (*DataService, repos.HealthRecordRepo, repos.UploadAttemptRepo) {
	t.Helper()
	log := testLogger(t)
	gdb := newTestDB(t)
	recordRepo := repos.NewHealthRecordRepo(gdb, log)
	attemptRepo := repos.NewUploadAttemptRepo(gdb, log)
	userRepo := repos.NewUserRepo(gdb, log)
	return NewDataService(log, gdb, recordRepo, attemptRepo, userRepo), recordRepo, attemptRepo
}

const validCSV = `Pregnancies,Glucose,BloodPressure,SkinThickness,Insulin,BMI,DiabetesPedigreeFunction,Age,Outcome
6,148,72,35,0,33.6,0.627,50,1
1,85,66,29,0,26.6,0.351,31,0
`

func TestUploadCSVSuccess(t *testing.T) {
	svc, recordRepo, attemptRepo := newTestDataService(t)
	ctx := context.Background()

	result, err := svc.UploadCSV(ctx, "diabetes.csv", strings.NewReader(validCSV), nil)
	if err != nil {
		t.Fatalf("UploadCSV: %v", err)
	}
	if result.RecordsUploaded != 2 {
		t.Fatalf("records uploaded: want=2 got=%d", result.RecordsUploaded)
	}

	attempt, err := attemptRepo.GetByID(ctx, nil, result.AttemptID)
	if err != nil || attempt == nil {
		t.Fatalf("load attempt: attempt=%v err=%v", attempt, err)
	}
	if attempt.Status != types.AttemptSuccess {
		t.Fatalf("attempt status: want=%s got=%s", types.AttemptSuccess, attempt.Status)
	}
	if attempt.RecordsCount != 2 {
		t.Fatalf("attempt records count: want=2 got=%d", attempt.RecordsCount)
	}
	if attempt.CompletedAt == nil {
		t.Fatalf("attempt completed_at not set")
	}

	records, err := recordRepo.ListByAttempt(ctx, nil, result.AttemptID)
	if err != nil {
		t.Fatalf("ListByAttempt: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("stored records: want=2 got=%d", len(records))
	}
	for _, r := range records {
		if r.Source != types.SourceDataset {
			t.Fatalf("record source: want=%s got=%s", types.SourceDataset, r.Source)
		}
		if r.Outcome == nil {
			t.Fatalf("record outcome not set")
		}
	}
}

func TestUploadCSVAcceptsDiabetesAlias(t *testing.T) {
	svc, _, _ := newTestDataService(t)
	csv := "Glucose,BMI,Age,Diabetes\n120,28.1,42,1\n"

	result, err := svc.UploadCSV(context.Background(), "alias.csv", strings.NewReader(csv), nil)
	if err != nil {
		t.Fatalf("UploadCSV: %v", err)
	}
	if result.RecordsUploaded != 1 {
		t.Fatalf("records uploaded: want=1 got=%d", result.RecordsUploaded)
	}
}

func TestUploadCSVMissingRequiredColumn(t *testing.T) {
	svc, recordRepo, attemptRepo := newTestDataService(t)
	ctx := context.Background()
	csv := "Pregnancies,Glucose,BMI,Age\n6,148,33.6,50\n"

	_, err := svc.UploadCSV(ctx, "broken.csv", strings.NewReader(csv), nil)
	if !apperr.IsValidation(err) {
		t.Fatalf("missing column: want validation error got=%v", err)
	}
	if !strings.Contains(err.Error(), "outcome") {
		t.Fatalf("error should name the missing column: %v", err)
	}

	attempts, listErr := attemptRepo.List(ctx, nil)
	if listErr != nil {
		t.Fatalf("List attempts: %v", listErr)
	}
	if len(attempts) != 1 {
		t.Fatalf("attempt count: want=1 got=%d", len(attempts))
	}
	if attempts[0].Status != types.AttemptFailed {
		t.Fatalf("attempt status: want=%s got=%s", types.AttemptFailed, attempts[0].Status)
	}
	if attempts[0].ErrorMessage == nil || *attempts[0].ErrorMessage == "" {
		t.Fatalf("failed attempt missing error message")
	}

	records, _ := recordRepo.ListAll(ctx, nil)
	if len(records) != 0 {
		t.Fatalf("failed upload inserted records: %d", len(records))
	}
}

func TestUploadCSVBadRowInsertsNothing(t *testing.T) {
	svc, recordRepo, attemptRepo := newTestDataService(t)
	ctx := context.Background()
	csv := "Glucose,BMI,Age,Outcome\n120,28.1,42,1\nnot-a-number,30.0,50,0\n"

	_, err := svc.UploadCSV(ctx, "partial.csv", strings.NewReader(csv), nil)
	if !apperr.IsValidation(err) {
		t.Fatalf("bad row: want validation error got=%v", err)
	}

	records, _ := recordRepo.ListAll(ctx, nil)
	if len(records) != 0 {
		t.Fatalf("partial upload leaked records: %d", len(records))
	}
	attempts, _ := attemptRepo.List(ctx, nil)
	if len(attempts) != 1 || attempts[0].Status != types.AttemptFailed {
		t.Fatalf("attempt not failed after bad row")
	}
}

func TestUploadCSVEmptyFile(t *testing.T) {
	svc, _, _ := newTestDataService(t)
	if _, err := svc.UploadCSV(context.Background(), "empty.csv", strings.NewReader(""), nil); !apperr.IsValidation(err) {
		t.Fatalf("empty file: want validation error got=%v", err)
	}
}

func TestCreateRecordValidation(t *testing.T) {
	svc, _, _ := newTestDataService(t)
	_, err := svc.CreateRecord(context.Background(), NewRecordInput{Glucose: 0, BMI: 28, Age: 40})
	if !apperr.IsValidation(err) {
		t.Fatalf("zero glucose: want validation error got=%v", err)
	}
}

func TestCreateRecordStoresUserEntry(t *testing.T) {
	svc, recordRepo, _ := newTestDataService(t)
	ctx := context.Background()

	record, err := svc.CreateRecord(ctx, NewRecordInput{Glucose: 131, BMI: 29.4, Age: 44})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if record.Source != types.SourceUserEntry {
		t.Fatalf("source: want=%s got=%s", types.SourceUserEntry, record.Source)
	}
	if record.Outcome != nil {
		t.Fatalf("manual record should start without outcome")
	}

	stored, err := recordRepo.GetByID(ctx, nil, record.ID)
	if err != nil || stored == nil {
		t.Fatalf("stored record: record=%v err=%v", stored, err)
	}
}

func TestListRecordsFilters(t *testing.T) {
	svc, recordRepo, _ := newTestDataService(t)
	ctx := context.Background()

	seed := []*types.HealthRecord{
		makeRecord(148, 33.6, 50, true),
		makeRecord(85, 26.6, 31, false),
		makeRecord(183, 23.3, 32, true),
	}
	if err := recordRepo.Create(ctx, nil, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	minGlucose := 100.0
	records, total, err := svc.ListRecords(ctx, repos.RecordFilter{MinGlucose: &minGlucose})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if total != 2 || len(records) != 2 {
		t.Fatalf("filtered: want total=2 len=2 got total=%d len=%d", total, len(records))
	}

	outcome := true
	maxAge := 40
	records, total, err = svc.ListRecords(ctx, repos.RecordFilter{Outcome: &outcome, MaxAge: &maxAge})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if total != 1 || records[0].Glucose != 183 {
		t.Fatalf("combined filter: want the age-32 positive record, got total=%d", total)
	}

	// Pagination keeps the unpaged total.
	records, total, err = svc.ListRecords(ctx, repos.RecordFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if total != 3 || len(records) != 1 {
		t.Fatalf("paged: want total=3 len=1 got total=%d len=%d", total, len(records))
	}
}
