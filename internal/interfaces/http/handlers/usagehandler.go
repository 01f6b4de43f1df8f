package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vetiver-inc/vetiver/internal/application/usage/usecases"
	"github.com/vetiver-inc/vetiver/internal/shared/errors"
	"github.com/vetiver-inc/vetiver/internal/shared/logger"
	"github.com/vetiver-inc/vetiver/internal/shared/utils"
)

// UsageHandler serves the fleet usage summary endpoint.
type UsageHandler struct {
	summaryUC getUsageSummaryUseCase
	logger    logger.Interface
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(summaryUC getUsageSummaryUseCase, log logger.Interface) *UsageHandler {
	return &UsageHandler{
		summaryUC: summaryUC,
		logger:    log,
	}
}

// GetSummary handles GET /api/v1/usage/summary
func (h *UsageHandler) GetSummary(c *gin.Context) {
	query := usecases.GetUsageSummaryQuery{}

	if raw := c.Query("window_hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			utils.ErrorResponseWithError(c, errors.NewValidationError("window_hours must be an integer"))
			return
		}
		query.WindowHours = parsed
	}

	result, err := h.summaryUC.Execute(c.Request.Context(), query)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", result.Summary)
}
