package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/middleware"
	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stemsi/quiz-integrity/internal/response"
	"github.com/stemsi/quiz-integrity/internal/service"
	"github.com/stemsi/quiz-integrity/internal/validator"
)

// ReviewHandler serves post-hoc result and integrity review.
type ReviewHandler struct {
	reviews *service.ReviewService
	log     zerolog.Logger
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(reviews *service.ReviewService, log zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		reviews: reviews,
		log:     log.With().Str("component", "review_handler").Logger(),
	}
}

type resultsQuery struct {
	Filter string `form:"filter" binding:"omitempty,oneof=all flagged submitted"`
}

// ListResults godoc
// GET /api/v1/teacher/quizzes/:quiz_id/results?filter=all|flagged|submitted
func (h *ReviewHandler) ListResults(c *gin.Context) {
	var q resultsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rows, err := h.reviews.QuizResults(c.Request.Context(), c.Param("quiz_id"))
	if err != nil {
		failService(c, h.log, err, "List quiz results failed")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": filterRows(rows, q.Filter)})
}

func filterRows(rows []model.ResultRow, filter string) []model.ResultRow {
	if filter == "" || filter == "all" {
		return rows
	}
	out := make([]model.ResultRow, 0, len(rows))
	for _, r := range rows {
		switch {
		case filter == "flagged" && r.HasCheating:
			out = append(out, r)
		case filter == "submitted" && r.Completed:
			out = append(out, r)
		}
	}
	return out
}

// GetStudentResult godoc
// GET /api/v1/teacher/quizzes/:quiz_id/results/:user_id
func (h *ReviewHandler) GetStudentResult(c *gin.Context) {
	detail, err := h.reviews.StudentResult(c.Request.Context(), c.Param("quiz_id"), c.Param("user_id"))
	if err != nil {
		failService(c, h.log, err, "Get student result failed")
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// GetIntegrity godoc
// GET /api/v1/teacher/quizzes/:quiz_id/integrity
func (h *ReviewHandler) GetIntegrity(c *gin.Context) {
	students, err := h.reviews.Integrity(c.Request.Context(), c.Param("quiz_id"))
	if err != nil {
		failService(c, h.log, err, "Get integrity log failed")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"students": students})
}

// GetOwnResult godoc
// GET /api/v1/student/quizzes/:quiz_id/result
func (h *ReviewHandler) GetOwnResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	detail, err := h.reviews.OwnResult(c.Request.Context(), c.Param("quiz_id"), claims.UserID)
	if err != nil {
		failService(c, h.log, err, "Get own result failed")
		return
	}
	response.Success(c, http.StatusOK, detail)
}
