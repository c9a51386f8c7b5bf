package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quiz-integrity/internal/repository"
	"github.com/stemsi/quiz-integrity/internal/response"
	"github.com/stemsi/quiz-integrity/internal/service"
)

// QuizOwnerLookup resolves the teacher who owns a quiz.
type QuizOwnerLookup interface {
	TeacherID(ctx context.Context, quizID string) (string, error)
}

// RequireQuizOwner lets a teacher through only for quizzes they own.
// Admins pass for any quiz.
func RequireQuizOwner(owners QuizOwnerLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if claims.TokenType == service.TokenTypeAdmin {
			c.Next()
			return
		}

		teacherID, err := owners.TeacherID(c.Request.Context(), c.Param("quiz_id"))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				response.AbortFail(c, http.StatusNotFound, response.ErrQuizNotFound)
				return
			}
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}

		if teacherID != claims.UserID {
			response.AbortFail(c, http.StatusForbidden, response.ErrNotQuizOwner)
			return
		}
		c.Next()
	}
}
