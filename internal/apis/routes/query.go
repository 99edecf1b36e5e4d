package routes

import (
	"log/slog"
	"querypilot-ai/internal/apis/handlers"
	"querypilot-ai/internal/apis/middlewares"
	"querypilot-ai/internal/di"

	"github.com/gin-gonic/gin"
	"go.uber.org/dig"
)

func SetupQueryRoutes(router *gin.Engine, container *dig.Container, queryHandler *handlers.QueryHandler, logger *slog.Logger) error {
	jwtService, err := di.GetJWTService(container)
	if err != nil {
		return err
	}
	historyHandler, err := di.GetHistoryHandler(container)
	if err != nil {
		return err
	}

	api := router.Group("/api")
	if jwtService != nil {
		api.Use(middlewares.AuthMiddleware(jwtService, logger))
	} else {
		logger.Warn("Routes -> JWT_SECRET is not set, /api is unauthenticated")
	}
	{
		api.POST("/query", queryHandler.Query)
		api.POST("/schema/refresh", queryHandler.RefreshSchema)

		// Query history, only when the query log is configured
		if historyHandler != nil {
			api.GET("/queries", historyHandler.List)
			api.GET("/queries/:requestId", historyHandler.GetByRequestID)
		}
	}
	return nil
}
