package http

import (
	"errors"
	"net/http"

	"food-quiz-service/internal/domain"
	"food-quiz-service/internal/platform/logger"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type successBody struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, successBody{Success: true, Data: data})
}

func abortWithError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := kind.Status()
	message := err.Error()
	if kind == domain.KindServer {
		message = "Internal server error"
	}
	c.AbortWithStatusJSON(status, errorBody{Status: status, Message: message, Error: string(kind)})
}

// writeError maps err onto the JSON error body. Unexpected failures are
// logged with the request context and hidden from the client.
func writeError(c *gin.Context, log *logger.Logger, err error) {
	if domain.KindOf(err) == domain.KindServer {
		quizID := c.Param("id")
		if quizID == "" {
			quizID = c.Param("quizId")
		}
		log.Error("Unhandled error",
			"error", err,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"user_id", currentUserID(c),
			"quiz_id", quizID,
			"attempt_id", c.Param("resultId"),
		)
	}
	abortWithError(c, err)
}

// bindingError converts gin binding failures into validation errors.
func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.Wrap(domain.ErrValidation, "%s failed on the '%s' rule", fe.Namespace(), fe.Tag())
	}
	return domain.Wrap(domain.ErrValidation, "invalid request: %v", err)
}

func notFoundRoute(c *gin.Context) {
	c.JSON(http.StatusNotFound, errorBody{Status: http.StatusNotFound, Message: "Route not found", Error: string(domain.KindNotFound)})
}
