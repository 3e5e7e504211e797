package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/glyhealth/diabetes-insights-backend/internal/apperr"
	"github.com/glyhealth/diabetes-insights-backend/internal/services"
)

type AttemptsHandler struct {
	dataService *services.DataService
}

func NewAttemptsHandler(dataService *services.DataService) *AttemptsHandler {
	return &AttemptsHandler{dataService: dataService}
}

func (h *AttemptsHandler) List(c *gin.Context) {
	attempts, err := h.dataService.ListAttempts(c.Request.Context())
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"attempts": attempts})
}

func (h *AttemptsHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", apperr.Validation("attempt_id must be a UUID"))
		return
	}

	attempt, err := h.dataService.GetAttempt(c.Request.Context(), id)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, attempt)
}

// Records serves GET /attempts/:attempt_id/records.
func (h *AttemptsHandler) Records(c *gin.Context) {
	id, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", apperr.Validation("attempt_id must be a UUID"))
		return
	}

	records, err := h.dataService.ListAttemptRecords(c.Request.Context(), id)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"records": records})
}
