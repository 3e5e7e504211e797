package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glyhealth/diabetes-insights-backend/internal/apperr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAppError maps classified service errors onto HTTP statuses;
// anything unclassified is a 500 with a generic message so internals do not
// leak to the client.
func RespondAppError(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		RespondError(c, http.StatusBadRequest, "validation_error", err)
	case apperr.KindNotFound:
		RespondError(c, http.StatusNotFound, "not_found", err)
	case apperr.KindConflict:
		RespondError(c, http.StatusConflict, "conflict", err)
	case apperr.KindTraining:
		RespondError(c, http.StatusInternalServerError, "training_error", err)
	case apperr.KindProvider:
		RespondError(c, http.StatusBadGateway, "provider_error", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", errInternal)
	}
}

var errInternal = errors.New("internal server error")
