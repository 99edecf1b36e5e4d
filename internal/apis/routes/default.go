package routes

import (
	"log/slog"
	"querypilot-ai/internal/di"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/dig"
)

func SetupDefaultRoutes(router *gin.Engine, container *dig.Container, logger *slog.Logger) error {
	queryHandler, err := di.GetQueryHandler(container)
	if err != nil {
		return err
	}

	// Health check route
	router.GET("/health", queryHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return SetupQueryRoutes(router, container, queryHandler, logger)
}
