package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"querypilot-ai/config"
	"querypilot-ai/internal/apis/middlewares"
	"querypilot-ai/internal/apis/routes"
	"querypilot-ai/internal/di"
	"querypilot-ai/internal/middleware"
	"querypilot-ai/internal/observability"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load environment variables
	env, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("Failed to load environment variables: %v", err)
	}

	logger := observability.NewLogger(env.LogLevel, env.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	if env.Environment == "PRODUCTION" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize dependencies
	ctx := context.Background()
	container, err := di.Initialize(ctx, env, logger)
	if err != nil {
		log.Fatalf("Failed to initialize dependencies: %v", err)
	}

	// Warm the schema cache so the first question does not pay for it
	if schema, err := di.GetSchemaManager(container); err != nil {
		log.Fatalf("Failed to connect to the target database: %v", err)
	} else if _, err := schema.GetSchema(ctx, false); err != nil {
		logger.Warn("Startup -> schema not loaded, data queries will retry", slog.String("error", err.Error()))
	}

	// Setup Gin
	ginApp := gin.New() // Use gin.New() instead of gin.Default()

	// Add custom recovery middleware
	ginApp.Use(middleware.CustomRecoveryMiddleware(logger))

	// Add logging middleware
	ginApp.Use(gin.Logger())
	ginApp.Use(middlewares.RequestID())
	ginApp.Use(middlewares.Metrics())

	// CORS
	ginApp.Use(cors.New(cors.Config{
		AllowOrigins: []string{env.CorsAllowedOrigin},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"User-Agent",
			"Referer",
			middlewares.RequestIDHeader,
		},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", middlewares.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Setup routes
	if err := routes.SetupDefaultRoutes(ginApp, container, logger); err != nil {
		log.Fatalf("Failed to setup routes: %v", err)
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + env.Port,
		Handler: ginApp,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", slog.String("port", env.Port), slog.String("database_type", env.DatabaseType))
		fmt.Println("✨ Welcome to QueryPilot! Running in", env.Environment, "Mode on port", env.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("QueryPilot failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("🔻 QueryPilot is shutting down...")

	// In-flight questions may be waiting on a model, give them the request timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), env.RequestTimeout+5*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("QueryPilot forced to shutdown", slog.String("error", err.Error()))
	}
	di.Shutdown(shutdownCtx, container, logger)

	logger.Info("👋 QueryPilot has been shut down successfully")
}
