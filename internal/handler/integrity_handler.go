package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/middleware"
	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stemsi/quiz-integrity/internal/response"
	"github.com/stemsi/quiz-integrity/internal/service"
	"github.com/stemsi/quiz-integrity/internal/validator"
)

// IntegrityHandler accepts integrity events sent outside the quiz stream,
// typically from a beacon fired while the page unloads.
type IntegrityHandler struct {
	quizzes   *service.QuizService
	integrity *service.IntegrityService
	log       zerolog.Logger
}

// NewIntegrityHandler creates a new IntegrityHandler.
func NewIntegrityHandler(quizzes *service.QuizService, integrity *service.IntegrityService, log zerolog.Logger) *IntegrityHandler {
	return &IntegrityHandler{
		quizzes:   quizzes,
		integrity: integrity,
		log:       log.With().Str("component", "integrity_handler").Logger(),
	}
}

type cheatBeaconRequest struct {
	Type        model.CheatType `json:"type" binding:"required,notblank,max=64"`
	Description string          `json:"description" binding:"max=500"`
	Timestamp   *time.Time      `json:"timestamp"`
}

// RecordAttempt godoc
// POST /api/v1/student/quizzes/:quiz_id/cheating-attempts
func (h *IntegrityHandler) RecordAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req cheatBeaconRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctx := c.Request.Context()
	quizID := c.Param("quiz_id")

	if _, err := h.quizzes.GetByID(ctx, quizID); err != nil {
		failService(c, h.log, err, "Load quiz for beacon failed")
		return
	}

	attempt := model.CheatAttempt{Type: req.Type, Description: req.Description}
	if req.Timestamp != nil {
		attempt.Timestamp = *req.Timestamp
	}

	stored, err := h.integrity.Record(ctx, quizID, claims.UserID, claims.Name, attempt)
	if err != nil {
		failService(c, h.log, err, "Record beacon attempt failed")
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attempt": stored.Labeled()})
}
