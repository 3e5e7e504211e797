package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/glyhealth/diabetes-insights-backend/internal/clients/llm"
	redisclient "github.com/glyhealth/diabetes-insights-backend/internal/clients/redis"
	"github.com/glyhealth/diabetes-insights-backend/internal/clients/sendgrid"
	"github.com/glyhealth/diabetes-insights-backend/internal/clients/slack"
	"github.com/glyhealth/diabetes-insights-backend/internal/db"
	"github.com/glyhealth/diabetes-insights-backend/internal/handlers"
	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/observability"
	"github.com/glyhealth/diabetes-insights-backend/internal/repos"
	"github.com/glyhealth/diabetes-insights-backend/internal/server"
	"github.com/glyhealth/diabetes-insights-backend/internal/services"
	"github.com/glyhealth/diabetes-insights-backend/internal/utils"
)

func main() {
	_ = godotenv.Load()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "diabetes-insights-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if shutdownOTel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOTel(ctx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	recordRepo := repos.NewHealthRecordRepo(thePG, log)
	attemptRepo := repos.NewUploadAttemptRepo(thePG, log)
	assessmentRepo := repos.NewHealthAssessmentRepo(thePG, log)

	// Clients
	log.Info("Setting up Clients from main...")
	llmClient, err := llm.NewClient(log)
	if err != nil {
		log.Error("Could not init LLM client", "error", err)
		os.Exit(1)
	}

	var emailClient sendgrid.Client
	if os.Getenv("SENDGRID_API_KEY") != "" {
		emailClient, err = sendgrid.NewFromEnv(log)
		if err != nil {
			log.Warn("Could not init SendGrid client", "error", err)
		}
	}
	var slackClient slack.Client
	if os.Getenv("SLACK_WEBHOOK_URL") != "" {
		slackClient, err = slack.NewFromEnv(log)
		if err != nil {
			log.Warn("Could not init Slack client", "error", err)
		}
	}

	// Recommendation cache: in-process LRU by default, redis when replicas
	// need to share it.
	cacheCapacity := utils.GetEnvAsInt("RECOMMENDATION_CACHE_SIZE", 100, log)
	var tripleCache services.TripleCache
	if utils.GetEnv("RECOMMENDATION_CACHE_BACKEND", "lru", log) == "redis" {
		redisCache, err := redisclient.NewTripleCache(log)
		if err != nil {
			log.Error("Could not init redis recommendation cache", "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		tripleCache = redisCache
	} else {
		tripleCache = services.NewLRUTripleCache(cacheCapacity)
	}

	// Services
	log.Info("Setting up Services from main...")
	rateLimit := utils.GetEnvAsInt("LLM_RATE_LIMIT", 5, log)
	llmTimeout := time.Duration(utils.GetEnvAsInt("LLM_TIMEOUT_SECONDS", 30, log)) * time.Second

	statsService := services.NewStatsService(log)
	insightsService := services.NewInsightsService(log)
	scorer := services.NewRiskScorer(log)
	recommendationService := services.NewRecommendationService(log, llmClient, tripleCache, rateLimit, llmTimeout)
	notificationChannel := services.NotificationChannel(utils.GetEnv("NOTIFICATION_CHANNEL", "email", log))
	notificationService := services.NewNotificationService(log, notificationChannel, emailClient, slackClient)
	dataService := services.NewDataService(log, thePG, recordRepo, attemptRepo, userRepo)
	analysisService := services.NewAnalysisService(log, recordRepo, attemptRepo, statsService, insightsService, recommendationService, notificationService)
	healthService := services.NewHealthService(log, userRepo, recordRepo, assessmentRepo, scorer, recommendationService, notificationService)
	userService := services.NewUserService(log, userRepo)

	// Handlers
	log.Info("Setting up Handlers from main...")
	routerCfg := server.RouterConfig{
		Log:                log,
		AllowedOrigins:     server.OriginsFromEnv(os.Getenv("CORS_ALLOWED_ORIGINS")),
		HealthcheckHandler: handlers.NewHealthcheckHandler(),
		RecordsHandler:     handlers.NewRecordsHandler(dataService, analysisService, healthService),
		AnalysisHandler:    handlers.NewAnalysisHandler(analysisService),
		HealthHandler:      handlers.NewHealthHandler(healthService),
		UsersHandler:       handlers.NewUsersHandler(userService),
		AttemptsHandler:    handlers.NewAttemptsHandler(dataService),
	}

	router := server.NewRouter(routerCfg)
	port := utils.GetEnv("PORT", "8000", log)
	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
