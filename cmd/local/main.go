package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ingest-backend/cmd"
	"ingest-backend/internal/api"
	"ingest-backend/internal/core"
	"ingest-backend/internal/database"
	"ingest-backend/internal/messaging"
	"ingest-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Single process mode: sqlite database, in memory queue, and the ingestion
// worker running alongside the HTTP server. Useful for development and small
// deployments without postgres or rabbitmq.
type Config struct {
	Root string `env:"ROOT" envDefault:"./ingest-backend"`
	Port int    `env:"PORT" envDefault:"3001"`

	AdminUsername string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"admin"`

	StorageProvider  string `env:"STORAGE_PROVIDER" envDefault:"minio"`
	AWSRegion        string `env:"AWS_REGION" envDefault:"us-east-1"`
	StorageAccessKey string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	StorageSecretKey string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`
}

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "ingest-backend.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

// createQueue re-enqueues jobs that were accepted but never picked up
// before the last shutdown.
func createQueue(db *gorm.DB) *messaging.InMemoryQueue {
	var jobs []database.IngestJob
	if err := db.Where("status = ?", database.JobQueued).Find(&jobs).Error; err != nil {
		log.Fatalf("Failed to fetch queued jobs from database: %v", err)
	}

	queue := messaging.NewInMemoryQueue()

	for _, job := range jobs {
		if err := queue.PublishIngestTask(context.Background(), messaging.IngestTaskPayload{
			JobId:     job.Id,
			ProjectId: job.ProjectId,
			Host:      job.Host,
			Files:     job.ObjectRefs,
			Options:   []string{},
		}); err != nil {
			log.Fatalf("Failed to re-enqueue ingest job: %v", err)
		}
	}

	return queue
}

func createServer(db *gorm.DB, queue messaging.Publisher, port int) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	apiHandler := api.NewBackendService(db, queue)

	r.Route("/api", func(r chi.Router) {
		r.Use(api.BasicAuth(db))
		apiHandler.AddRoutes(r)
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating directory for log file: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.Root, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port)

	db := createDatabase(cfg.Root)

	if _, err := cmd.EnsureAdminUser(db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}

	stores := storage.NewClientFactory(cfg.StorageProvider, cfg.AWSRegion, storage.Credentials{
		AccessKeyID:     cfg.StorageAccessKey,
		SecretAccessKey: cfg.StorageSecretKey,
	})

	queue := createQueue(db)

	mediaRoot := filepath.Join(cfg.Root, "media")
	worker := core.NewTaskProcessor(db, stores, queue, queue, mediaRoot)

	server := createServer(db, queue, cfg.Port)

	slog.Info("starting worker")
	worker.Start()

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
