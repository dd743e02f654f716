package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/handler"
	"github.com/stemsi/exstem-live/internal/metrics"
	"github.com/stemsi/exstem-live/internal/middleware"
	"github.com/stemsi/exstem-live/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	Exam          *handler.ExamHandler
	Monitor       *handler.MonitorHandler
	WS            *handler.WSHandler
	Health        *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(metrics.Middleware())
	router.Use(middleware.Brotli())

	// ─── Ops ───────────────────────────────────────────────────────────
	router.GET("/health", handlers.Health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ─── 1. Student Group ──────────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(auth))
	studentAPI.Use(limiter.Middleware())
	studentAPI.Use(middleware.NoStore())
	{
		studentAPI.POST("/exams/:exam_id/attempts", handlers.StudentPortal.StartAttempt)

		attempts := studentAPI.Group("/attempts/:attempt_id")
		{
			attempts.GET("", handlers.StudentPortal.GetAttempt)
			attempts.GET("/questions", handlers.StudentPortal.GetQuestions)
			attempts.PUT("/answers", handlers.StudentPortal.RecordAnswer)
			attempts.POST("/violations", handlers.StudentPortal.RecordViolation)
			attempts.POST("/submit", handlers.StudentPortal.SubmitAttempt)
			attempts.GET("/result", handlers.StudentPortal.GetResult)
		}
	}

	// ─── 2. Student WebSocket ──────────────────────────────────────────
	wsGroup := router.Group("/ws/v1/student")
	wsGroup.Use(middleware.RequireStudentWSAuth(auth))
	{
		wsGroup.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 3. Teacher Group ──────────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacherJWT(auth))
	teacherAPI.Use(limiter.Middleware())
	{
		exams := teacherAPI.Group("/exams")
		{
			exams.GET("", handlers.Exam.ListExams)
			exams.POST("", handlers.Exam.CreateExam)
			exams.GET("/:exam_id", handlers.Exam.GetExam)
			exams.PUT("/:exam_id", handlers.Exam.UpdateExam)
			exams.DELETE("/:exam_id", handlers.Exam.DeleteExam)
			exams.GET("/:exam_id/overview", handlers.Exam.GetOverview)
			exams.GET("/:exam_id/monitor", handlers.Monitor.MonitorExamSSE)
		}

		teacherAPI.GET("/attempts/:attempt_id", handlers.Exam.GetAttemptDetail)
	}

	return router
}
