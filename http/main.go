package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/vinolens/vinolens-analyzer/config"
	"github.com/vinolens/vinolens-analyzer/http/controller"
	routes "github.com/vinolens/vinolens-analyzer/http/route"
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

	ctrl := controller.NewController(cfg, infra, repo)

	router := routes.SetupRouter(ctrl)

	addr := ":" + cfg.EnvConfig.HTTP.Port
	log.Println("HTTP Server started on", addr)
	if err := router.Run(addr); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = infra.ShutdownObservability(shutdownCtx)
		cancel()
		log.Fatalf("Failed to start server: %v", err)
	}
}
