package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"querypilot-ai/internal/apis/dtos"
	"querypilot-ai/internal/observability"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// CustomRecoveryMiddleware handles panics and returns a proper response DTO
func CustomRecoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Recovery -> panic while serving request",
					slog.String("request_id", observability.RequestIDFromContext(c.Request.Context())),
					slog.String("path", c.Request.URL.Path),
					slog.Any("panic", err),
					slog.String("stack", string(debug.Stack())))

				errorMsg := "Internal Server Error"
				if gin.IsDebugging() {
					errorMsg = fmt.Sprintf("Internal Server Error: %v", err)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, dtos.Response{
					Success: false,
					Error:   &errorMsg,
					Data:    nil,
				})
			}
		}()
		c.Next()
	}
}
