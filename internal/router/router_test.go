package router

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/config"
	"github.com/stemsi/quiz-integrity/internal/handler"
	"github.com/stemsi/quiz-integrity/internal/middleware"
	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stemsi/quiz-integrity/internal/repository"
	"github.com/stemsi/quiz-integrity/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memQuizzes map[string]*model.Quiz

func (m memQuizzes) GetByID(_ context.Context, id string) (*model.Quiz, error) {
	q, ok := m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (m memQuizzes) Upsert(_ context.Context, q *model.Quiz) error {
	m[q.ID] = q
	return nil
}

func (m memQuizzes) TeacherID(_ context.Context, id string) (string, error) {
	q, ok := m[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	return q.TeacherID, nil
}

type noResults struct{}

func (noResults) ListByQuiz(context.Context, string) ([]model.QuizResult, error) { return nil, nil }
func (noResults) ListByQuizAndUser(context.Context, string, string) ([]model.QuizResult, error) {
	return nil, nil
}

type noAttempts struct{}

func (noAttempts) ListByQuiz(context.Context, string) ([]model.StudentAttempt, error) {
	return nil, nil
}
func (noAttempts) ListByStudent(context.Context, string, string) ([]model.StudentAttempt, error) {
	return nil, nil
}

type noStudents struct{}

func (noStudents) GetByIDs(context.Context, []string) (map[string]*model.Student, error) {
	return map[string]*model.Student{}, nil
}

type testServer struct {
	srv  *httptest.Server
	auth *service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{GinMode: gin.TestMode, JWTSecret: "test-secret", JWTExpiry: time.Hour}
	log := zerolog.Nop()

	store := memQuizzes{"quiz-1": {
		ID: "quiz-1", Title: "Fractions", TeacherID: "t1", TimeLimit: 30, Points: 1,
		Questions: []model.Question{{ID: "q1", Type: model.QuestionTypeTrueFalse, Points: 1, CorrectAnswer: model.ScalarAnswer("true")}},
	}}

	monitorRepo := repository.NewMonitorRepository(rdb, time.Minute, time.Hour)
	queueRepo := repository.NewQueueRepository(rdb)
	answerRepo := repository.NewAnswerBufferRepository(rdb, time.Hour)
	deviceRepo := repository.NewDeviceRepository(rdb, time.Hour)

	auth := service.NewAuthService(cfg)
	quizzes := service.NewQuizService(store, noAttempts{}, log)
	grading := service.NewGradingService(quizzes, noResults{}, queueRepo, monitorRepo, log)
	integrity := service.NewIntegrityService(monitorRepo, queueRepo, monitorRepo, log)
	live := service.NewLiveSessionService(monitorRepo, monitorRepo, log)
	monitor := service.NewMonitorService(quizzes, noResults{}, monitorRepo, noStudents{}, log)
	reviews := service.NewReviewService(quizzes, noResults{}, noStudents{}, log)

	limiter := middleware.NewRateLimiter(60, time.Minute)
	t.Cleanup(limiter.Stop)

	r := SetupRouter(auth, &Handlers{
		Stream:    handler.NewQuizStreamHandler(quizzes, grading, integrity, live, answerRepo, log, nil),
		Integrity: handler.NewIntegrityHandler(quizzes, integrity, log),
		Review:    handler.NewReviewHandler(reviews, log),
		Monitor:   handler.NewMonitorHandler(monitor, monitorRepo, time.Minute, log),
		System:    handler.NewSystemHandler(nil, nil, queueRepo, log),
	}, &Guards{
		QuizOwner:     middleware.RequireQuizOwner(store),
		DeviceBinding: middleware.BindDevice(deviceRepo, log),
		BeaconLimiter: limiter,
	}, cfg)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, auth: auth}
}

func (s *testServer) teacherGet(t *testing.T, path, teacherID string, header http.Header) *http.Response {
	t.Helper()
	tok, err := s.auth.GenerateToken(service.TokenTypeTeacher, teacherID, "Teacher "+teacherID)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, s.srv.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestMonitorStreamsToBrotliClient(t *testing.T) {
	s := newTestServer(t)

	// advertises br but sends no Accept: text/event-stream
	resp := s.teacherGet(t, "/api/v1/teacher/quizzes/quiz-1/monitor", "t1", http.Header{
		"Accept-Encoding": []string{"br"},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	lines := make(chan string, 2)
	go func() {
		defer close(lines)
		br := bufio.NewReader(resp.Body)
		for i := 0; i < 2; i++ {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	var got []string
	timeout := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream ended after %v", got)
			got = append(got, line)
		case <-timeout:
			t.Fatalf("no event frame within timeout, got %v", got)
		}
	}
	assert.Equal(t, "event:message\n", got[0])
	assert.Contains(t, got[1], `"type":"quiz"`)
	assert.Contains(t, got[1], "Fractions")
}

func TestMonitorRequiresQuizOwner(t *testing.T) {
	s := newTestServer(t)

	resp := s.teacherGet(t, "/api/v1/teacher/quizzes/quiz-1/monitor", "t2", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp2 := s.teacherGet(t, "/api/v1/teacher/quizzes/missing/monitor", "t1", nil)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}
