package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/glyhealth/diabetes-insights-backend/internal/apperr"
	"github.com/glyhealth/diabetes-insights-backend/internal/services"
)

type HealthHandler struct {
	healthService *services.HealthService
}

func NewHealthHandler(healthService *services.HealthService) *HealthHandler {
	return &HealthHandler{healthService: healthService}
}

// Assess serves POST /health-assessments/:user_id/:record_id.
func (h *HealthHandler) Assess(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", apperr.Validation("user_id must be a UUID"))
		return
	}
	recordID, err := uuid.Parse(c.Param("record_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", apperr.Validation("record_id must be a UUID"))
		return
	}

	result, err := h.healthService.Assess(c.Request.Context(), userID, recordID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, result)
}

func (h *HealthHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", apperr.Validation("assessment_id must be a UUID"))
		return
	}

	assessment, err := h.healthService.GetAssessment(c.Request.Context(), id)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, assessment)
}

func (h *HealthHandler) ListForUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", apperr.Validation("user_id must be a UUID"))
		return
	}

	assessments, err := h.healthService.ListUserAssessments(c.Request.Context(), userID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"assessments": assessments})
}
