package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"ingest-backend/cmd"
	"ingest-backend/internal/core"
	"ingest-backend/internal/database"
	"ingest-backend/internal/messaging"
	"ingest-backend/internal/storage"

	"github.com/caarlos0/env/v11"
)

type WorkerConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`

	StorageProvider string `env:"STORAGE_PROVIDER" envDefault:"minio"`
	AWSRegion       string `env:"AWS_REGION" envDefault:"us-east-1"`
	// The access key defaults match a stock minio install and must be
	// overridden in any real deployment.
	StorageAccessKey string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	StorageSecretKey string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`

	MediaRoot string `env:"MEDIA_ROOT" envDefault:"/app/media"`
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	stores := storage.NewClientFactory(cfg.StorageProvider, cfg.AWSRegion, storage.Credentials{
		AccessKeyID:     cfg.StorageAccessKey,
		SecretAccessKey: cfg.StorageSecretKey,
	})

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	reciever, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to create RabbitMQ receiver: %v", err)
	}

	processor := core.NewTaskProcessor(db, stores, publisher, reciever, cfg.MediaRoot)
	processor.Start()

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, waiting for workers to finish...")
	processor.Stop()

	log.Println("Worker process stopped.")
}
