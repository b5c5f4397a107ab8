package http

import (
	"net/http"

	"food-quiz-service/internal/app"
	"food-quiz-service/internal/domain"
	"food-quiz-service/internal/platform/logger"
	"github.com/gin-gonic/gin"
)

type ResultHandler struct {
	service *app.QuizService
	log     *logger.Logger
}

func NewResultHandler(service *app.QuizService, log *logger.Logger) *ResultHandler {
	return &ResultHandler{service: service, log: log.With("handler", "ResultHandler")}
}

type historyQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

func (h *ResultHandler) History(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, bindingError(err))
		return
	}
	history, err := h.service.History(c.Request.Context(), currentUserID(c), domain.Page{Page: q.Page, Limit: q.Limit})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       history.Data,
		"pagination": history.Pagination,
	})
}

func (h *ResultHandler) UserStatistics(c *gin.Context) {
	stats, err := h.service.UserStatistics(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, stats)
}

func (h *ResultHandler) Result(c *gin.Context) {
	resultID, ok := pathID(c, "resultId")
	if !ok {
		return
	}
	attempt, err := h.service.Result(c.Request.Context(), currentUserID(c), resultID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, attempt)
}

func (h *ResultHandler) Leaderboard(c *gin.Context) {
	quizID, ok := pathID(c, "quizId")
	if !ok {
		return
	}
	lb, err := h.service.Leaderboard(c.Request.Context(), quizID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, lb.Entries)
}
