package http

import (
	"errors"
	"strconv"
	"time"

	"food-quiz-service/internal/auth"
	"food-quiz-service/internal/domain"
	"food-quiz-service/internal/metrics"
	"food-quiz-service/internal/platform/logger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "userID"

// RequireAuth resolves the caller from a bearer token. Websocket clients may
// pass the token as a query parameter instead.
func RequireAuth(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			token = c.Query("token")
		}
		claims, err := verifier.Validate(token)
		if err != nil {
			message := "Invalid token"
			if errors.Is(err, auth.ErrMissingToken) {
				message = "Authentication required"
			} else if errors.Is(err, jwt.ErrTokenExpired) {
				message = "Token expired"
			}
			abortWithError(c, domain.Wrap(domain.ErrUnauthorized, message))
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// RequestLogger logs one line per request and records its latency.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())

		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		}
		if userID := currentUserID(c); userID != "" {
			fields = append(fields, "user_id", userID)
		}
		if status >= 500 {
			log.Error("Request failed", fields...)
			return
		}
		log.Debug("Request served", fields...)
	}
}
