package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/config"
	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stemsi/quiz-integrity/internal/repository"
	"github.com/stemsi/quiz-integrity/internal/response"
	"github.com/stemsi/quiz-integrity/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth(expiry time.Duration) *service.AuthService {
	return service.NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: expiry})
}

func token(t *testing.T, auth *service.AuthService, tt service.TokenType, uid string) string {
	t.Helper()
	s, err := auth.GenerateToken(tt, uid, "Name "+uid)
	require.NoError(t, err)
	return s
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	if body.Error == nil {
		return ""
	}
	return body.Error.Code
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireStudentJWT(t *testing.T) {
	auth := newAuth(time.Hour)
	r := gin.New()
	r.GET("/s", RequireStudentJWT(auth), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).UserID)
	})

	req := httptest.NewRequest(http.MethodGet, "/s", nil)
	w := serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.ErrTokenRequired, errorCode(t, w))

	req = httptest.NewRequest(http.MethodGet, "/s", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, auth, service.TokenTypeStudent, "s1"))
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/s", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, auth, service.TokenTypeTeacher, "t1"))
	w = serve(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, response.ErrStudentAccessOnly, errorCode(t, w))

	req = httptest.NewRequest(http.MethodGet, "/s", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = serve(r, req)
	assert.Equal(t, response.ErrTokenInvalid, errorCode(t, w))
}

func TestRequireTeacherJWTAcceptsQueryToken(t *testing.T) {
	auth := newAuth(time.Hour)
	r := gin.New()
	r.GET("/t", RequireTeacherJWT(auth), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/t?token="+token(t, auth, service.TokenTypeAdmin, "a1"), nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/t?token="+token(t, auth, service.TokenTypeStudent, "s1"), nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, response.ErrTeacherAccessOnly, errorCode(t, w))
}

func TestExpiredToken(t *testing.T) {
	auth := newAuth(-time.Minute)
	r := gin.New()
	r.GET("/ws", RequireStudentWSAuth(auth), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ws?token="+token(t, auth, service.TokenTypeStudent, "s1"), nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.ErrTokenExpired, errorCode(t, w))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, response.ErrTokenRequired, errorCode(t, w))
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("user:s1"))
	assert.True(t, rl.Allow("user:s1"))
	assert.False(t, rl.Allow("user:s1"))
	assert.True(t, rl.Allow("user:s2"), "buckets are per key")

	now = now.Add(30 * time.Second)
	assert.False(t, rl.Allow("user:s1"), "partial intervals do not refill")

	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow("user:s1"))
}

func TestRateLimiterMiddlewareKeysByUser(t *testing.T) {
	auth := newAuth(time.Hour)
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	r := gin.New()
	r.POST("/beacon", RequireStudentJWT(auth), rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	send := func(uid string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/beacon", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, auth, service.TokenTypeStudent, uid))
		return serve(r, req)
	}

	assert.Equal(t, http.StatusCreated, send("s1").Code)
	w := send("s1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, response.ErrRateLimitExceeded, errorCode(t, w))
	assert.Equal(t, http.StatusCreated, send("s2").Code)
}

type fakeOwners map[string]string

func (f fakeOwners) TeacherID(_ context.Context, quizID string) (string, error) {
	if quizID == "boom" {
		return "", errors.New("db down")
	}
	id, ok := f[quizID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return id, nil
}

func TestRequireQuizOwner(t *testing.T) {
	auth := newAuth(time.Hour)
	r := gin.New()
	r.GET("/quizzes/:quiz_id", RequireTeacherJWT(auth), RequireQuizOwner(fakeOwners{"quiz-1": "t1"}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	get := func(path string, tt service.TokenType, uid string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token(t, auth, tt, uid))
		return serve(r, req)
	}

	assert.Equal(t, http.StatusOK, get("/quizzes/quiz-1", service.TokenTypeTeacher, "t1").Code)
	assert.Equal(t, http.StatusOK, get("/quizzes/quiz-1", service.TokenTypeAdmin, "a1").Code)

	w := get("/quizzes/quiz-1", service.TokenTypeTeacher, "t2")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, response.ErrNotQuizOwner, errorCode(t, w))

	w = get("/quizzes/quiz-9", service.TokenTypeTeacher, "t1")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.ErrQuizNotFound, errorCode(t, w))

	assert.Equal(t, http.StatusInternalServerError, get("/quizzes/boom", service.TokenTypeTeacher, "t1").Code)
}

type fakeBinder struct{ bound string }

func (f *fakeBinder) Bind(_ context.Context, _, _, deviceID string) (string, bool, error) {
	if f.bound == "" {
		f.bound = deviceID
	}
	return f.bound, f.bound == deviceID, nil
}

func TestBindDeviceFlagsSecondDevice(t *testing.T) {
	auth := newAuth(time.Hour)
	var conflicts []model.CheatAttempt
	r := gin.New()
	r.GET("/quizzes/:quiz_id/stream", RequireStudentWSAuth(auth), BindDevice(&fakeBinder{}, zerolog.Nop()), func(c *gin.Context) {
		if a, ok := GetDeviceConflict(c); ok {
			conflicts = append(conflicts, a)
		}
		c.Status(http.StatusOK)
	})

	tok := token(t, auth, service.TokenTypeStudent, "s1")
	open := func(device string) int {
		req := httptest.NewRequest(http.MethodGet, "/quizzes/quiz-1/stream?token="+tok, nil)
		if device != "" {
			req.Header.Set(HeaderDeviceID, device)
		}
		return serve(r, req).Code
	}

	assert.Equal(t, http.StatusOK, open("laptop"))
	assert.Equal(t, http.StatusOK, open("laptop"))
	assert.Empty(t, conflicts)

	assert.Equal(t, http.StatusOK, open("phone"))
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.CheatMultipleDevices, conflicts[0].Type)
	assert.Contains(t, conflicts[0].Description, "laptop")

	assert.Equal(t, http.StatusOK, open(""))
	assert.Len(t, conflicts, 1)
}
