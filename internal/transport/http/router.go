package http

import (
	"context"
	"net/http"
	"time"

	"food-quiz-service/internal/app"
	"food-quiz-service/internal/auth"
	"food-quiz-service/internal/platform/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type RouterConfig struct {
	Service        *app.QuizService
	Verifier       *auth.Verifier
	Log            *logger.Logger
	AllowedOrigins []string
	HealthChecks   []HealthCheck
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	quizzes := NewQuizHandler(cfg.Service, log)
	results := NewResultHandler(cfg.Service, log)
	ws := NewWSHandler(cfg.Service, log)
	requireAuth := RequireAuth(cfg.Verifier)

	// Public
	router.GET("/healthz", healthHandler(cfg.HealthChecks))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/quizzes/:id/statistics", quizzes.Statistics)

	// Protected
	quizGroup := router.Group("/quizzes", requireAuth)
	quizGroup.POST("/submit", quizzes.Submit)
	quizGroup.POST("/:id/start", quizzes.Start)
	quizGroup.POST("/:id/submit", quizzes.Submit)
	quizGroup.POST("/:id/abandon", quizzes.Abandon)

	resultGroup := router.Group("/quiz-results", requireAuth)
	resultGroup.GET("/history", results.History)
	resultGroup.GET("/statistics", results.UserStatistics)
	resultGroup.GET("/result/:resultId", results.Result)
	resultGroup.GET("/leaderboard/:quizId", results.Leaderboard)

	router.GET("/ws/leaderboard/:quizId", requireAuth, ws.ServeWS)
	router.NoRoute(notFoundRoute)

	return router
}

func healthHandler(checks []HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := gin.H{}
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[hc.Name] = err.Error()
				continue
			}
			report[hc.Name] = "ok"
		}
		if status == http.StatusOK {
			c.JSON(status, gin.H{"status": "ok", "checks": report})
			return
		}
		c.JSON(status, gin.H{"status": "degraded", "checks": report})
	}
}
