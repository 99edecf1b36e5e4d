package middlewares

import (
	"log/slog"
	"net/http"
	"querypilot-ai/internal/apis/dtos"
	"querypilot-ai/internal/utils"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware requires a bearer token issued with the configured secret.
func AuthMiddleware(jwtService utils.JWTService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			errorMsg := "Authorization header is required"
			c.AbortWithStatusJSON(http.StatusUnauthorized, dtos.Response{
				Success: false,
				Error:   &errorMsg,
			})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			errorMsg := "Invalid authorization header format"
			c.AbortWithStatusJSON(http.StatusUnauthorized, dtos.Response{
				Success: false,
				Error:   &errorMsg,
			})
			return
		}

		subject, err := jwtService.ValidateToken(parts[1])
		if err != nil {
			logger.Debug("AuthMiddleware -> rejected token",
				slog.String("request_id", RequestIDFrom(c)),
				slog.String("error", err.Error()))
			errorMsg := "Invalid or expired token"
			c.AbortWithStatusJSON(http.StatusUnauthorized, dtos.Response{
				Success: false,
				Error:   &errorMsg,
			})
			return
		}

		c.Set("subject", *subject)
		c.Next()
	}
}
