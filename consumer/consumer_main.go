package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vinolens/vinolens-analyzer/config"
	"github.com/vinolens/vinolens-analyzer/consumer/worker"
	infraPkg "github.com/vinolens/vinolens-analyzer/infra"
	"github.com/vinolens/vinolens-analyzer/repository"
)

func main() {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("No .env file found, continuing with environment variables")
	}

	cfg := config.NewConfig()
	infra := infraPkg.InitInfra(cfg)
	repo := repository.InitRepository(cfg, infra)

	// Initialize context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanConsumer := worker.NewScanConsumer(infra.RabbitMQ.Channel, infra, repo)
	if err := scanConsumer.Start(ctx); err != nil {
		infra.Logger.ErrorWithContextf(ctx, err, "Failed to start Scan consumer: %v", err)
		log.Fatalf("Failed to start Scan consumer: %v", err)
	}

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	infra.Logger.InfoWithContextf(ctx, "Shutting down consumer...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = infra.ShutdownObservability(shutdownCtx)

	infra.Logger.InfoWithContextf(ctx, "Consumer exited properly")
}
