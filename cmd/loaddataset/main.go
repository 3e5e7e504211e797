package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/glyhealth/diabetes-insights-backend/internal/db"
	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/repos"
	"github.com/glyhealth/diabetes-insights-backend/internal/services"
)

// Seeds the database from a historical CSV export. Intended to run once
// against a fresh database before the API is first started.
func main() {
	var file string
	flag.StringVar(&file, "file", "data/diabetes.csv", "path to the CSV export to load")
	flag.Parse()

	_ = godotenv.Load()

	log, err := logger.New("development")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	recordRepo := repos.NewHealthRecordRepo(thePG, log)
	attemptRepo := repos.NewUploadAttemptRepo(thePG, log)
	userRepo := repos.NewUserRepo(thePG, log)
	dataService := services.NewDataService(log, thePG, recordRepo, attemptRepo, userRepo)

	f, err := os.Open(file)
	if err != nil {
		log.Fatal("Could not open dataset file", "file", file, "error", err)
	}
	defer f.Close()

	result, err := dataService.UploadCSV(context.Background(), filepath.Base(file), f, nil)
	if err != nil {
		log.Fatal("Dataset load failed", "file", file, "error", err)
	}
	log.Info("Dataset loaded",
		"file", file,
		"records", result.RecordsUploaded,
		"attempt_id", result.AttemptID.String(),
	)
}
