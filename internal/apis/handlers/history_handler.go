package handlers

import (
	"log/slog"
	"net/http"
	"querypilot-ai/internal/apis/dtos"
	"querypilot-ai/internal/repositories"
	"strconv"

	"github.com/gin-gonic/gin"
)

const maxHistoryPageSize = 100

// HistoryHandler serves the query audit trail.
type HistoryHandler struct {
	repo   repositories.QueryLogRepository
	logger *slog.Logger
}

func NewHistoryHandler(repo repositories.QueryLogRepository, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{repo: repo, logger: logger}
}

// @Summary List recent queries
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(10)

func (h *HistoryHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxHistoryPageSize {
		pageSize = 10
	}

	logs, total, err := h.repo.FindRecent(c.Request.Context(), page, pageSize)
	if err != nil {
		h.logger.Error("HistoryHandler -> List -> failed to read query logs", slog.String("error", err.Error()))
		errorMsg := "failed to read query history"
		c.JSON(http.StatusInternalServerError, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	c.JSON(http.StatusOK, dtos.Response{
		Success: true,
		Data: dtos.QueryLogListResponse{
			Logs:     logs,
			Total:    total,
			Page:     page,
			PageSize: pageSize,
		},
	})
}

// @Summary Get one query by request id
// @Param requestId path string true "Request ID"

func (h *HistoryHandler) GetByRequestID(c *gin.Context) {
	log, err := h.repo.FindByRequestID(c.Request.Context(), c.Param("requestId"))
	if err != nil {
		h.logger.Error("HistoryHandler -> GetByRequestID -> failed to read query log", slog.String("error", err.Error()))
		errorMsg := "failed to read query history"
		c.JSON(http.StatusInternalServerError, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}
	if log == nil {
		errorMsg := "query not found"
		c.JSON(http.StatusNotFound, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	c.JSON(http.StatusOK, dtos.Response{
		Success: true,
		Data:    log,
	})
}
