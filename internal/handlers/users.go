package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/glyhealth/diabetes-insights-backend/internal/apperr"
	"github.com/glyhealth/diabetes-insights-backend/internal/services"
)

type UsersHandler struct {
	userService *services.UserService
}

func NewUsersHandler(userService *services.UserService) *UsersHandler {
	return &UsersHandler{userService: userService}
}

func (h *UsersHandler) Create(c *gin.Context) {
	var input services.NewUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}

	user, err := h.userService.Create(c.Request.Context(), input)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, user)
}

func (h *UsersHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation_error", apperr.Validation("user_id must be a UUID"))
		return
	}

	user, err := h.userService.Get(c.Request.Context(), id)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, user)
}
