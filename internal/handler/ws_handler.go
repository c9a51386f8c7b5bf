package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/middleware"
	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stemsi/quiz-integrity/internal/response"
	"github.com/stemsi/quiz-integrity/internal/service"
	ws "github.com/stemsi/quiz-integrity/internal/websocket"
)

const streamOpTimeout = 5 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// AnswerBuffer holds a student's autosaved answers until submit.
type AnswerBuffer interface {
	Save(ctx context.Context, quizID, studentID, questionID string, ans model.Answer) (int64, error)
	Count(ctx context.Context, quizID, studentID string) (int64, error)
	Load(ctx context.Context, quizID, studentID string) (map[string]model.Answer, error)
	Seal(ctx context.Context, quizID, studentID, resultID string) error
}

// QuizStreamHandler serves the student quiz WebSocket: autosave, heartbeat,
// integrity events and submit.
type QuizStreamHandler struct {
	quizzes   *service.QuizService
	grading   *service.GradingService
	integrity *service.IntegrityService
	live      *service.LiveSessionService
	answers   AnswerBuffer
	log       zerolog.Logger
	upgrader  websocket.Upgrader
	now       func() time.Time
}

// NewQuizStreamHandler creates a new QuizStreamHandler.
func NewQuizStreamHandler(
	quizzes *service.QuizService,
	grading *service.GradingService,
	integrity *service.IntegrityService,
	live *service.LiveSessionService,
	answers AnswerBuffer,
	log zerolog.Logger,
	allowedOrigins []string,
) *QuizStreamHandler {
	return &QuizStreamHandler{
		quizzes:   quizzes,
		grading:   grading,
		integrity: integrity,
		live:      live,
		answers:   answers,
		log:       log.With().Str("component", "ws_handler").Logger(),
		upgrader:  buildUpgrader(allowedOrigins),
		now:       time.Now,
	}
}

// streamSession is the per-connection state of one student stream.
type streamSession struct {
	conn      *websocket.Conn
	quiz      *model.Quiz
	studentID string
	name      string
	log       zerolog.Logger
}

// Stream godoc
// WS /ws/v1/student/quizzes/:quiz_id/stream
func (h *QuizStreamHandler) Stream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quiz, err := h.quizzes.GetByID(c.Request.Context(), c.Param("quiz_id"))
	if err != nil {
		failService(c, h.log, err, "Load quiz for stream failed")
		return
	}
	if !quiz.Available(h.now()) {
		response.Fail(c, http.StatusForbidden, response.ErrQuizNotAvailable)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	s := &streamSession{
		conn:      conn,
		quiz:      quiz,
		studentID: claims.UserID,
		name:      claims.Name,
		log: h.log.With().
			Str("student_id", claims.UserID).
			Str("quiz_id", quiz.ID).
			Logger(),
	}

	if err := h.join(s); err != nil {
		s.log.Error().Err(err).Msg("Join live session failed")
		ws.WriteError(conn, string(response.ErrInternal), response.GetMessage(response.ErrInternal))
		return
	}
	s.log.Info().Msg("Student connected")

	if conflict, ok := middleware.GetDeviceConflict(c); ok {
		h.recordDeviceConflict(s, conflict)
	}

	for {
		var raw json.RawMessage
		if err := ws.ReadJSON(conn, &raw); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			writeCode(conn, response.ErrInvalidPayload)
			continue
		}

		switch env.Action {
		case ws.ActionAutosave:
			h.handleAutosave(s, raw)
		case ws.ActionPing:
			h.handlePing(s)
		case ws.ActionCheat:
			h.handleCheat(s, raw)
		case ws.ActionSubmit:
			if h.handleSubmit(s, raw) {
				return
			}
		default:
			s.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			writeCode(conn, response.ErrUnknownAction)
		}
	}
}

func (h *QuizStreamHandler) join(s *streamSession) error {
	ctx, cancel := context.WithTimeout(context.Background(), streamOpTimeout)
	defer cancel()

	answered, err := h.answers.Count(ctx, s.quiz.ID, s.studentID)
	if err != nil {
		return err
	}
	_, err = h.live.Join(ctx, s.quiz.ID, s.studentID, s.name, int(answered))
	return err
}

func (h *QuizStreamHandler) recordDeviceConflict(s *streamSession, a model.CheatAttempt) {
	ctx, cancel := context.WithTimeout(context.Background(), streamOpTimeout)
	defer cancel()

	if _, err := h.integrity.Record(ctx, s.quiz.ID, s.studentID, s.name, a); err != nil {
		s.log.Error().Err(err).Msg("Failed to record device mismatch")
		return
	}
	s.log.Warn().Str("description", a.Description).Msg("Stream opened from a second device")
}

// handleAutosave buffers a single answer and reports progress.
func (h *QuizStreamHandler) handleAutosave(s *streamSession, raw json.RawMessage) {
	var req ws.AutosaveRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.QID == "" {
		writeCode(s.conn, response.ErrInvalidPayload)
		return
	}
	q, ok := s.quiz.Question(req.QID)
	if !ok {
		writeCode(s.conn, response.ErrUnknownQuestion)
		return
	}
	if err := service.CheckAnswer(q, req.Answer); err != nil {
		writeCode(s.conn, response.ErrInvalidAnswer)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), streamOpTimeout)
	defer cancel()

	answered, err := h.answers.Save(ctx, s.quiz.ID, s.studentID, req.QID, req.Answer)
	if err != nil {
		s.log.Error().Err(err).Msg("Autosave Redis error")
		writeCode(s.conn, response.ErrInternal)
		return
	}
	if _, err := h.live.Progress(ctx, s.quiz.ID, s.studentID, int(answered)); err != nil {
		s.log.Warn().Err(err).Msg("Progress update failed")
	}

	ws.WriteTyped(s.conn, ws.AutosaveResponse{Event: ws.EventSaved, QID: req.QID, Answered: answered})
}

func (h *QuizStreamHandler) handlePing(s *streamSession) {
	ctx, cancel := context.WithTimeout(context.Background(), streamOpTimeout)
	defer cancel()

	if err := h.live.Ping(ctx, s.quiz.ID, s.studentID); err != nil {
		s.log.Warn().Err(err).Msg("Heartbeat update failed")
	}
	ws.WriteTyped(s.conn, ws.PongResponse{Event: ws.EventPong, At: h.now().UTC()})
}

// handleCheat appends a client-detected integrity event.
func (h *QuizStreamHandler) handleCheat(s *streamSession, raw json.RawMessage) {
	var req ws.CheatRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Type == "" {
		writeCode(s.conn, response.ErrInvalidPayload)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), streamOpTimeout)
	defer cancel()

	stored, err := h.integrity.Record(ctx, s.quiz.ID, s.studentID, s.name, model.CheatAttempt{
		Type:        req.Type,
		Timestamp:   req.Timestamp,
		Description: req.Description,
	})
	if err != nil {
		s.log.Error().Err(err).Str("type", string(req.Type)).Msg("Record attempt failed")
		writeCode(s.conn, response.ErrInternal)
		return
	}

	labeled := stored.Labeled()
	ws.WriteTyped(s.conn, ws.RecordedResponse{
		Event:    ws.EventRecorded,
		Type:     labeled.Type,
		Label:    labeled.Label,
		Severity: labeled.Severity,
		At:       labeled.Timestamp,
	})
}

// handleSubmit grades the buffered answers. It reports whether the stream
// is finished.
func (h *QuizStreamHandler) handleSubmit(s *streamSession, raw json.RawMessage) bool {
	var req ws.SubmitRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.TimeSpent < 0 {
		writeCode(s.conn, response.ErrInvalidPayload)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), streamOpTimeout)
	defer cancel()

	answers, err := h.answers.Load(ctx, s.quiz.ID, s.studentID)
	if err != nil {
		s.log.Error().Err(err).Msg("Load buffered answers failed")
		writeCode(s.conn, response.ErrInternal)
		return false
	}

	graded, err := h.grading.Submit(ctx, service.Submission{
		QuizID:         s.quiz.ID,
		UserID:         s.studentID,
		Answers:        answers,
		TotalTimeSpent: req.TimeSpent,
	})
	if err != nil {
		status, code := classify(err)
		if status == http.StatusInternalServerError {
			s.log.Error().Err(err).Msg("Grading failed")
		}
		writeCode(s.conn, code)
		return status != http.StatusInternalServerError
	}

	if err := h.answers.Seal(ctx, s.quiz.ID, s.studentID, graded.Result.ID.String()); err != nil {
		s.log.Warn().Err(err).Msg("Seal answer buffer failed")
	}
	if err := h.live.MarkSubmitted(ctx, s.quiz.ID, s.studentID, len(answers)); err != nil {
		s.log.Warn().Err(err).Msg("Mark submitted failed")
	}

	resp := ws.GradedResponse{
		Event:    ws.EventGraded,
		ResultID: graded.Result.ID.String(),
		Revealed: graded.Reveal,
	}
	if graded.Reveal {
		resp.Score = &graded.Result.Score
		resp.TotalPoints = &graded.Result.TotalPoints
		resp.Percentage = &graded.Percentage
	}
	ws.WriteTyped(s.conn, resp)
	return true
}

func writeCode(conn *websocket.Conn, code response.ErrCode) {
	ws.WriteError(conn, string(code), response.GetMessage(code))
}
