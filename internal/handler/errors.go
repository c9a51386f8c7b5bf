package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/response"
	"github.com/stemsi/quiz-integrity/internal/service"
)

// classify maps a service error to an HTTP status and error code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrQuizNotFound):
		return http.StatusNotFound, response.ErrQuizNotFound
	case errors.Is(err, service.ErrQuizNotAvailable):
		return http.StatusForbidden, response.ErrQuizNotAvailable
	case errors.Is(err, service.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, service.ErrResultNotFound):
		return http.StatusNotFound, response.ErrResultNotFound
	case errors.Is(err, service.ErrReviewDisabled):
		return http.StatusForbidden, response.ErrReviewDisabled
	case errors.Is(err, service.ErrInvalidAnswer):
		return http.StatusBadRequest, response.ErrInvalidAnswer
	case errors.Is(err, service.ErrInvalidQuiz):
		return http.StatusUnprocessableEntity, response.ErrValidation
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failService writes the error response for err, logging unexpected ones.
func failService(c *gin.Context, log zerolog.Logger, err error, msg string) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		reqLog := response.RequestLogger(c, log)
		reqLog.Error().Err(err).Msg(msg)
		response.Fail(c, status, code)
		return
	}

	var invalid *service.InvalidQuizError
	if errors.As(err, &invalid) {
		fields := make(map[string]string, len(invalid.Issues))
		for _, issue := range invalid.Issues {
			fields[issue.Field] = issue.Message
		}
		response.FailWithFields(c, status, code, fields)
		return
	}
	response.Fail(c, status, code)
}
