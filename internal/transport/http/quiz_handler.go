package http

import (
	"net/http"
	"sort"

	"food-quiz-service/internal/app"
	"food-quiz-service/internal/domain"
	"food-quiz-service/internal/platform/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type QuizHandler struct {
	service *app.QuizService
	log     *logger.Logger
}

func NewQuizHandler(service *app.QuizService, log *logger.Logger) *QuizHandler {
	return &QuizHandler{service: service, log: log.With("handler", "QuizHandler")}
}

type answerRequest struct {
	QuestionID     string `json:"questionId" binding:"required,uuid"`
	SelectedAnswer string `json:"selectedAnswer"`
	TimeSpent      int    `json:"timeSpent" binding:"gte=0"`
}

// submitRequest mirrors the client payload. The optional top-level timeSpent
// is accepted for compatibility; elapsed time is always derived server-side.
type submitRequest struct {
	QuizID    string          `json:"quizId" binding:"omitempty,uuid"`
	AttemptID string          `json:"attemptId" binding:"omitempty,uuid"`
	Answers   []answerRequest `json:"answers" binding:"required,min=1,dive"`
	TimeSpent *int            `json:"timeSpent"`
}

// questionView is a question as shown to a quiz taker: the answer key is
// folded into a sorted option list.
type questionView struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	Options     []string `json:"options"`
	RelatedFood string   `json:"relatedFood,omitempty"`
}

type quizView struct {
	domain.Quiz
	Questions []questionView `json:"questions"`
}

func newQuizView(quiz domain.Quiz) quizView {
	questions := make([]questionView, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		options := make([]string, 0, len(q.CorrectAnswers)+len(q.IncorrectAnswers))
		options = append(options, q.CorrectAnswers...)
		options = append(options, q.IncorrectAnswers...)
		sort.Strings(options)
		questions = append(questions, questionView{
			ID:          q.ID,
			Content:     q.Content,
			Options:     options,
			RelatedFood: q.RelatedFood,
		})
	}
	return quizView{Quiz: quiz, Questions: questions}
}

func (h *QuizHandler) Start(c *gin.Context) {
	quizID, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.service.Start(c.Request.Context(), quizID, currentUserID(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{
		"quiz":       newQuizView(res.Quiz),
		"quizResult": res.QuizResult,
	})
}

func (h *QuizHandler) Submit(c *gin.Context) {
	var body submitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, bindingError(err))
		return
	}

	quizID := body.QuizID
	if c.Param("id") != "" {
		pathQuiz, ok := pathID(c, "id")
		if !ok {
			return
		}
		if quizID != "" && quizID != pathQuiz {
			abortWithError(c, domain.Wrap(domain.ErrValidation, "quizId does not match the quiz in the path"))
			return
		}
		quizID = pathQuiz
	}
	if quizID == "" && body.AttemptID == "" {
		abortWithError(c, domain.Wrap(domain.ErrValidation, "quizId is required"))
		return
	}

	answers := make([]domain.AnswerSubmission, 0, len(body.Answers))
	for _, a := range body.Answers {
		answers = append(answers, domain.AnswerSubmission{
			QuestionID:     a.QuestionID,
			SelectedAnswer: a.SelectedAnswer,
			TimeSpent:      a.TimeSpent,
		})
	}

	res, err := h.service.Submit(c.Request.Context(), app.SubmitRequest{
		UserID:    currentUserID(c),
		QuizID:    quizID,
		AttemptID: body.AttemptID,
		Answers:   answers,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, res)
}

func (h *QuizHandler) Abandon(c *gin.Context) {
	quizID, ok := pathID(c, "id")
	if !ok {
		return
	}
	attempt, err := h.service.Abandon(c.Request.Context(), quizID, currentUserID(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"quizResult": attempt})
}

func (h *QuizHandler) Statistics(c *gin.Context) {
	quizID, ok := pathID(c, "id")
	if !ok {
		return
	}
	stats, err := h.service.QuizStatistics(c.Request.Context(), quizID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, stats)
}

// pathID reads a UUID path parameter, aborting with a validation error if malformed.
func pathID(c *gin.Context, name string) (string, bool) {
	raw := c.Param(name)
	if _, err := uuid.Parse(raw); err != nil {
		abortWithError(c, domain.Wrap(domain.ErrValidation, "invalid %s: %q", name, raw))
		return "", false
	}
	return raw, true
}
