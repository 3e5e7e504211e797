package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/glyhealth/diabetes-insights-backend/internal/apperr"
	"github.com/glyhealth/diabetes-insights-backend/internal/repos"
	"github.com/glyhealth/diabetes-insights-backend/internal/services"
)

type RecordsHandler struct {
	dataService   *services.DataService
	analysis      *services.AnalysisService
	healthService *services.HealthService
}

func NewRecordsHandler(dataService *services.DataService, analysis *services.AnalysisService, healthService *services.HealthService) *RecordsHandler {
	return &RecordsHandler{dataService: dataService, analysis: analysis, healthService: healthService}
}

// List serves GET /records with optional min/max filters and pagination. A
// non-numeric filter value is a 400, not silently ignored.
func (h *RecordsHandler) List(c *gin.Context) {
	filter, err := parseRecordFilter(c)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	records, total, err := h.dataService.ListRecords(c.Request.Context(), filter)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"total":  total,
		"offset": filter.Offset,
		"limit":  filter.Limit,
		"data":   records,
	})
}

func (h *RecordsHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("record_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", apperr.Validation("record_id must be a UUID"))
		return
	}

	record, err := h.dataService.GetRecord(c.Request.Context(), id)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, record)
}

func (h *RecordsHandler) Create(c *gin.Context) {
	var input services.NewRecordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}

	record, err := h.dataService.CreateRecord(c.Request.Context(), input)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	// Records entered for a known user get assessed right away; the caller
	// does not wait for the scorer or the provider.
	if record.UserID != nil {
		h.healthService.AssessInBackground(*record.UserID, record.ID)
	}
	RespondCreated(c, record)
}

// Upload serves POST /records/upload. The CSV is ingested synchronously; the
// snapshot re-analysis and notification run in the background afterwards.
func (h *RecordsHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", apperr.Validation("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	var userID *uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "validation_error", apperr.Validation("user_id must be a UUID"))
			return
		}
		userID = &id
	}

	result, err := h.dataService.UploadCSV(c.Request.Context(), header.Filename, file, userID)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	h.analysis.RunAfterUpload(result.AttemptID.String())
	RespondCreated(c, result)
}

func parseRecordFilter(c *gin.Context) (repos.RecordFilter, error) {
	var filter repos.RecordFilter

	intParam := func(name string) (*int, error) {
		raw := c.Query(name)
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, apperr.Validationf("%s must be an integer", name)
		}
		return &v, nil
	}
	floatParam := func(name string) (*float64, error) {
		raw := c.Query(name)
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, apperr.Validationf("%s must be a number", name)
		}
		return &v, nil
	}

	var err error
	if filter.MinAge, err = intParam("min_age"); err != nil {
		return filter, err
	}
	if filter.MaxAge, err = intParam("max_age"); err != nil {
		return filter, err
	}
	if filter.MinBMI, err = floatParam("min_bmi"); err != nil {
		return filter, err
	}
	if filter.MaxBMI, err = floatParam("max_bmi"); err != nil {
		return filter, err
	}
	if filter.MinGlucose, err = floatParam("min_glucose"); err != nil {
		return filter, err
	}
	if filter.MaxGlucose, err = floatParam("max_glucose"); err != nil {
		return filter, err
	}

	if raw := c.Query("outcome"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, apperr.Validation("outcome must be a boolean")
		}
		filter.Outcome = &v
	}

	if limit, err := intParam("limit"); err != nil {
		return filter, err
	} else if limit != nil {
		if *limit < 0 {
			return filter, apperr.Validation("limit must not be negative")
		}
		filter.Limit = *limit
	}
	if offset, err := intParam("offset"); err != nil {
		return filter, err
	} else if offset != nil {
		if *offset < 0 {
			return filter, apperr.Validation("offset must not be negative")
		}
		filter.Offset = *offset
	}

	return filter, nil
}
