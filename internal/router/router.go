package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/quiz-integrity/internal/config"
	"github.com/stemsi/quiz-integrity/internal/handler"
	"github.com/stemsi/quiz-integrity/internal/middleware"
	"github.com/stemsi/quiz-integrity/internal/response"
	"github.com/stemsi/quiz-integrity/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Stream    *handler.QuizStreamHandler
	Integrity *handler.IntegrityHandler
	Review    *handler.ReviewHandler
	Monitor   *handler.MonitorHandler
	System    *handler.SystemHandler
}

// Guards groups the route-specific middlewares that need dependencies.
type Guards struct {
	QuizOwner     gin.HandlerFunc
	DeviceBinding gin.HandlerFunc
	BeaconLimiter *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	guards *Guards,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", middleware.HeaderDeviceID}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(authService))
	{
		studentAPI.POST("/quizzes/:quiz_id/cheating-attempts",
			guards.BeaconLimiter.Middleware(),
			handlers.Integrity.RecordAttempt,
		)
		studentAPI.GET("/quizzes/:quiz_id/result",
			middleware.NoStore(),
			handlers.Review.GetOwnResult,
		)
	}

	// ─── 2. WebSocket Group (Student WS Auth + Device Binding) ─────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/quizzes/:quiz_id/stream", guards.DeviceBinding, handlers.Stream.Stream)
	}

	// ─── 3. Teacher Group (JWT + Quiz Ownership) ───────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacherJWT(authService))
	{
		quiz := teacherAPI.Group("/quizzes/:quiz_id")
		quiz.Use(guards.QuizOwner)
		{
			quiz.GET("/results", middleware.NoStore(), handlers.Review.ListResults)
			quiz.GET("/results/:user_id", middleware.NoStore(), handlers.Review.GetStudentResult)
			quiz.GET("/integrity", middleware.NoStore(), handlers.Review.GetIntegrity)
			quiz.GET("/monitor", handlers.Monitor.MonitorQuizSSE)
		}

		teacherAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}
