package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/mmdatafocus/warehouse_backend/utils"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict),
		errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status of its kind. Errors outside the taxonomy are
// logged and hidden behind a generic 500.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		config.LogError(config.GetLogger(), "handlers", c.FullPath(), c.Request.Method, cid, err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, errorResponse{Error: "internal server error"})
		return
	}
	var domainErr *models.Error
	if errors.As(err, &domainErr) {
		c.AbortWithStatusJSON(status, errorResponse{Error: domainErr.Message, Fields: domainErr.Fields})
		return
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

// bindJSON decodes the body; shape errors become validation errors.
func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		fields := utils.ProcessValidationErrors(err)
		respondError(c, models.NewValidationError("invalid request body", fields))
		return false
	}
	return true
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		respondError(c, models.NewValidationError("invalid id", map[string]string{name: "gt"}))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(c, models.NewValidationError("invalid "+name, map[string]string{name: "gte"}))
		return 0, false
	}
	return n, true
}

func currentUserId(c *gin.Context) int {
	id, _ := utils.GetUserIdFromContext(c.Request.Context())
	return id
}
