package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/glyhealth/diabetes-insights-backend/internal/handlers"
	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/repos"
	"github.com/glyhealth/diabetes-insights-backend/internal/server"
	"github.com/glyhealth/diabetes-insights-backend/internal/services"
	"github.com/glyhealth/diabetes-insights-backend/internal/types"
)

type fakeProvider struct {
	response string
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return f.response, nil
}

const providerResponse = `Risk Assessment:
Elevated positive rate across the snapshot.

Recommendations:
- Increase screening frequency

Preventive Measures:
- Promote regular exercise
`

type testEnv struct {
	router     *gin.Engine
	recordRepo repos.HealthRecordRepo
	userRepo   repos.UserRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}

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

	userRepo := repos.NewUserRepo(gdb, log)
	recordRepo := repos.NewHealthRecordRepo(gdb, log)
	attemptRepo := repos.NewUploadAttemptRepo(gdb, log)
	assessmentRepo := repos.NewHealthAssessmentRepo(gdb, log)

	statsService := services.NewStatsService(log)
	insightsService := services.NewInsightsService(log)
	scorer := services.NewRiskScorer(log)
	recommender := services.NewRecommendationService(
		log, &fakeProvider{response: providerResponse}, services.NewLRUTripleCache(10), 600, time.Second,
	)
	dataService := services.NewDataService(log, gdb, recordRepo, attemptRepo, userRepo)
	analysisService := services.NewAnalysisService(log, recordRepo, attemptRepo, statsService, insightsService, recommender, nil)
	healthService := services.NewHealthService(log, userRepo, recordRepo, assessmentRepo, scorer, recommender, nil)
	userService := services.NewUserService(log, userRepo)

	router := server.NewRouter(server.RouterConfig{
		HealthcheckHandler: handlers.NewHealthcheckHandler(),
		RecordsHandler:     handlers.NewRecordsHandler(dataService, analysisService, healthService),
		AnalysisHandler:    handlers.NewAnalysisHandler(analysisService),
		HealthHandler:      handlers.NewHealthHandler(healthService),
		UsersHandler:       handlers.NewUsersHandler(userService),
		AttemptsHandler:    handlers.NewAttemptsHandler(dataService),
	})

	return &testEnv{
		router:     router,
		recordRepo: recordRepo,
		userRepo:   userRepo,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedRecords(t *testing.T, records ...*types.HealthRecord) {
	t.Helper()
	if err := e.recordRepo.Create(context.Background(), nil, records); err != nil {
		t.Fatalf("seed records: %v", err)
	}
}

func datasetRecord(glucose int, bmi float64, age int, outcome bool) *types.HealthRecord {
	o := outcome
	return &types.HealthRecord{
		ID:      uuid.New(),
		Glucose: glucose,
		BMI:     bmi,
		Age:     age,
		Outcome: &o,
		Source:  types.SourceDataset,
	}
}

func TestHealthcheck(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthcheck", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedRecords(t,
		datasetRecord(148, 33.6, 50, true),
		datasetRecord(85, 26.6, 31, false),
		datasetRecord(183, 23.3, 32, true),
	)

	rec := env.do(t, http.MethodGet, "/api/analyze", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}

	var payload struct {
		TotalRecords       int                           `json:"total_records"`
		PositiveCases      int                           `json:"positive_cases"`
		PositiveRate       float64                       `json:"positive_rate"`
		AverageAge         float64                       `json:"average_age"`
		Anomalies          map[string][]services.Outlier `json:"anomalies"`
		RiskAssessment     string                        `json:"risk_assessment"`
		Recommendations    []string                      `json:"recommendations"`
		PreventiveMeasures []string                      `json:"preventive_measures"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v body=%s", err, rec.Body.String())
	}

	if payload.TotalRecords != 3 || payload.PositiveCases != 2 {
		t.Fatalf("counts: got=%+v", payload)
	}
	if payload.PositiveRate != 66.67 {
		t.Fatalf("positive rate: want=66.67 got=%v", payload.PositiveRate)
	}
	if payload.AverageAge != 37.67 {
		t.Fatalf("average age: want=37.67 got=%v", payload.AverageAge)
	}
	for _, field := range []string{"glucose", "bmi", "age"} {
		if _, ok := payload.Anomalies[field]; !ok {
			t.Fatalf("missing anomaly field %q", field)
		}
	}
	if payload.RiskAssessment != "Elevated positive rate across the snapshot." {
		t.Fatalf("risk assessment not parsed from provider: %q", payload.RiskAssessment)
	}
	if len(payload.Recommendations) != 1 || len(payload.PreventiveMeasures) != 1 {
		t.Fatalf("recommendation sections: got=%+v / %+v", payload.Recommendations, payload.PreventiveMeasures)
	}
}

func TestAnalyzeEmptySnapshot(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/analyze", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	var payload struct {
		TotalRecords   int    `json:"total_records"`
		RiskAssessment string `json:"risk_assessment"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.TotalRecords != 0 {
		t.Fatalf("empty snapshot: want 0 records got=%d", payload.TotalRecords)
	}
	// Nothing failed, so the degraded "temporarily unavailable" wording must
	// not show up on an empty database.
	if payload.RiskAssessment != services.EmptySnapshotTriple().RiskAssessment {
		t.Fatalf("empty snapshot assessment: got=%q", payload.RiskAssessment)
	}
}

func TestListRecordsRejectsBadFilter(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/records?min_age=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d body=%s", rec.Code, rec.Body.String())
	}
	var envelope handlers.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Code != "validation_error" {
		t.Fatalf("error code: want=validation_error got=%q", envelope.Error.Code)
	}
}

func TestCreateUserDuplicateEmailConflicts(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"name": "Ada", "surname": "Jensen", "email": "ada@example.com"}

	if rec := env.do(t, http.MethodPost, "/api/users", body); rec.Code != http.StatusCreated {
		t.Fatalf("first create: want=201 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodPost, "/api/users", body); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create: want=409 got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAssessmentFlow(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 10; i++ {
		env.seedRecords(t,
			datasetRecord(170+i, 34, 50, true),
			datasetRecord(85+i, 22, 28, false),
		)
	}

	user := &types.User{Name: "Ada", Surname: "Jensen", Email: "ada@example.com"}
	if err := env.userRepo.Create(context.Background(), nil, user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	target := datasetRecord(180, 36, 55, false)
	env.seedRecords(t, target)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/health-assessments/%s/%s", user.ID, target.ID), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("assess: want=201 got=%d body=%s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Assessment struct {
			ID        uuid.UUID `json:"id"`
			RiskScore float64   `json:"risk_score"`
			RiskLevel string    `json:"risk_level"`
		} `json:"assessment"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v body=%s", err, rec.Body.String())
	}
	if payload.Assessment.RiskScore < 0 || payload.Assessment.RiskScore > 1 {
		t.Fatalf("risk score out of range: %v", payload.Assessment.RiskScore)
	}
	switch payload.Assessment.RiskLevel {
	case "low", "medium", "high":
	default:
		t.Fatalf("risk level: got=%q", payload.Assessment.RiskLevel)
	}

	// Listed under the user afterwards.
	listRec := env.do(t, http.MethodGet, fmt.Sprintf("/api/users/%s/health-assessments", user.ID), nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list assessments: want=200 got=%d", listRec.Code)
	}
	var listPayload struct {
		Assessments []json.RawMessage `json:"assessments"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &listPayload); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listPayload.Assessments) != 1 {
		t.Fatalf("assessments: want=1 got=%d", len(listPayload.Assessments))
	}
}

func TestAssessmentUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	target := datasetRecord(120, 28, 40, false)
	env.seedRecords(t, target)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/health-assessments/%s/%s", uuid.New(), target.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user: want=404 got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAssessmentWithoutTrainingData(t *testing.T) {
	env := newTestEnv(t)

	user := &types.User{Name: "Ada", Surname: "Jensen", Email: "ada@example.com"}
	if err := env.userRepo.Create(context.Background(), nil, user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	manual := datasetRecord(120, 28, 40, false)
	manual.Source = types.SourceUserEntry
	manual.Outcome = nil
	env.seedRecords(t, manual)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/health-assessments/%s/%s", user.ID, manual.ID), nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("no training data: want=500 got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestUploadEndpoint(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "diabetes.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write([]byte("Glucose,BMI,Age,Outcome\n120,28.1,42,1\n95,24.0,30,0\n"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/records/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: want=201 got=%d body=%s", rec.Code, rec.Body.String())
	}
	var payload services.UploadResult
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.RecordsUploaded != 2 {
		t.Fatalf("records uploaded: want=2 got=%d", payload.RecordsUploaded)
	}
	if payload.AttemptID == uuid.Nil {
		t.Fatalf("attempt id missing in response")
	}

	attemptRec := env.do(t, http.MethodGet, "/api/attempts/"+payload.AttemptID.String(), nil)
	if attemptRec.Code != http.StatusOK {
		t.Fatalf("get attempt: want=200 got=%d", attemptRec.Code)
	}

	recordsRec := env.do(t, http.MethodGet, "/api/attempts/"+payload.AttemptID.String()+"/records", nil)
	if recordsRec.Code != http.StatusOK {
		t.Fatalf("attempt records: want=200 got=%d", recordsRec.Code)
	}
	var recordsPayload struct {
		Records []json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(recordsRec.Body.Bytes(), &recordsPayload); err != nil {
		t.Fatalf("decode attempt records: %v", err)
	}
	if len(recordsPayload.Records) != 2 {
		t.Fatalf("attempt records: want=2 got=%d", len(recordsPayload.Records))
	}
}

func TestUploadEndpointRequiresFile(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/records/upload", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing file: want=400 got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestInsightsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedRecords(t,
		datasetRecord(148, 33.6, 50, true),
		datasetRecord(85, 26.6, 31, false),
	)

	rec := env.do(t, http.MethodGet, "/api/insights", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	var payload services.InsightsResult
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.AgeGroups) != 2 {
		t.Fatalf("age groups: want=2 got=%d (%+v)", len(payload.AgeGroups), payload.AgeGroups)
	}
	if len(payload.BMICategories) != 2 {
		t.Fatalf("bmi categories: want=2 got=%d (%+v)", len(payload.BMICategories), payload.BMICategories)
	}
}
