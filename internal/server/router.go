package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/glyhealth/diabetes-insights-backend/internal/handlers"
	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/middleware"
)

type RouterConfig struct {
	Log            *logger.Logger
	AllowedOrigins []string

	HealthcheckHandler *handlers.HealthcheckHandler
	RecordsHandler     *handlers.RecordsHandler
	AnalysisHandler    *handlers.AnalysisHandler
	HealthHandler      *handlers.HealthHandler
	UsersHandler       *handlers.UsersHandler
	AttemptsHandler    *handlers.AttemptsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Log != nil {
		router.Use(middleware.RequestLogger(cfg.Log))
	}
	router.Use(otelgin.Middleware("diabetes-insights-backend"))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", cfg.HealthcheckHandler.Healthz)

	api := router.Group("/api")
	{
		// Records
		api.GET("/records", cfg.RecordsHandler.List)
		api.POST("/records", cfg.RecordsHandler.Create)
		api.POST("/records/upload", cfg.RecordsHandler.Upload)
		api.GET("/records/:record_id", cfg.RecordsHandler.Get)
		// Analysis
		api.GET("/analyze", cfg.AnalysisHandler.Analyze)
		api.GET("/insights", cfg.AnalysisHandler.Insights)
		// Assessments
		api.POST("/health-assessments/:user_id/:record_id", cfg.HealthHandler.Assess)
		api.GET("/health-assessments/:assessment_id", cfg.HealthHandler.Get)
		api.GET("/users/:user_id/health-assessments", cfg.HealthHandler.ListForUser)
		// Users
		api.POST("/users", cfg.UsersHandler.Create)
		api.GET("/users/:user_id", cfg.UsersHandler.Get)
		// Upload attempts
		api.GET("/attempts", cfg.AttemptsHandler.List)
		api.GET("/attempts/:attempt_id", cfg.AttemptsHandler.Get)
		api.GET("/attempts/:attempt_id/records", cfg.AttemptsHandler.Records)
	}

	return router
}

// OriginsFromEnv splits a comma-separated CORS_ALLOWED_ORIGINS value.
func OriginsFromEnv(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
