package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"querypilot-ai/internal/apis/dtos"
	"querypilot-ai/internal/constants"
	"querypilot-ai/internal/observability"
	"querypilot-ai/internal/services"
	"querypilot-ai/pkg/dbmanager"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const healthPingTimeout = 3 * time.Second

type QueryProcessor interface {
	Process(ctx context.Context, query string) (*services.QueryOutcome, error)
}

type SchemaRefresher interface {
	GetSchema(ctx context.Context, forceRefresh bool) (string, error)
	Invalidate(ctx context.Context) error
	Info() *dbmanager.SchemaInfo
}

type DatabasePinger interface {
	Ping(ctx context.Context) error
	DatabaseType() string
}

type QueryHandler struct {
	processor      QueryProcessor
	schema         SchemaRefresher
	database       DatabasePinger
	requestTimeout time.Duration
	logger         *slog.Logger
}

func NewQueryHandler(processor QueryProcessor, schema SchemaRefresher, database DatabasePinger, requestTimeout time.Duration, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{
		processor:      processor,
		schema:         schema,
		database:       database,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

// @Summary Ask a question
// @Description Answer a natural-language question about the connected database
// @Accept json
// @Produce json
// @Param queryRequest body dtos.QueryRequest true "Query request"
// @Success 200 {object} dtos.QueryResponse

func (h *QueryHandler) Query(c *gin.Context) {
	var req dtos.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusBadRequest, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		errorMsg := "query must not be empty"
		c.JSON(http.StatusBadRequest, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	ctx := c.Request.Context()
	cancel := func() {}
	if h.requestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
	}
	defer cancel()

	outcome, err := h.processor.Process(ctx, req.Query)
	if err != nil {
		if c.Request.Context().Err() != nil {
			// client went away, nobody to answer
			h.logger.Info("QueryHandler -> Query -> client disconnected",
				slog.String("request_id", observability.RequestIDFromContext(ctx)))
			c.Abort()
			return
		}

		h.logger.Warn("QueryHandler -> Query -> request timed out",
			slog.String("request_id", observability.RequestIDFromContext(ctx)),
			slog.Duration("timeout", h.requestTimeout))
		errorMsg := constants.MsgRequestTimedOut
		c.JSON(http.StatusGatewayTimeout, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	c.JSON(http.StatusOK, dtos.QueryResponse{
		Response:  outcome.Response,
		Intent:    string(outcome.Intent),
		Status:    string(outcome.Status),
		RequestID: outcome.RequestID,
	})
}

// @Summary Refresh schema
// @Description Drop the cached schema and introspect the database again
// @Produce json
// @Success 200 {object} dtos.Response

func (h *QueryHandler) RefreshSchema(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.schema.Invalidate(ctx); err != nil {
		h.logger.Warn("QueryHandler -> RefreshSchema -> failed to drop shared copy",
			slog.String("error", err.Error()))
	}

	if _, err := h.schema.GetSchema(ctx, true); err != nil {
		h.logger.Error("QueryHandler -> RefreshSchema -> schema fetch failed",
			slog.String("request_id", observability.RequestIDFromContext(ctx)),
			slog.String("error", err.Error()))
		errorMsg := constants.MsgSchemaUnavailable
		c.JSON(http.StatusServiceUnavailable, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	response := dtos.SchemaRefreshResponse{}
	if info := h.schema.Info(); info != nil {
		response.Database = info.Database
		response.Tables = len(info.Tables)
		response.RefreshedAt = info.FetchedAt
	}
	c.JSON(http.StatusOK, dtos.Response{
		Success: true,
		Data:    response,
	})
}

func (h *QueryHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	health := dtos.HealthResponse{Status: "ok", DatabaseType: h.database.DatabaseType(), Database: "up"}
	if err := h.database.Ping(ctx); err != nil {
		h.logger.Warn("QueryHandler -> Health -> target database ping failed",
			slog.String("error", err.Error()))
		health.Status = "degraded"
		health.Database = "down"
		errorMsg := constants.MsgDatabaseUnavailable
		c.JSON(http.StatusServiceUnavailable, dtos.Response{
			Success: false,
			Error:   &errorMsg,
			Data:    health,
		})
		return
	}

	c.JSON(http.StatusOK, dtos.Response{
		Success: true,
		Data:    health,
	})
}
