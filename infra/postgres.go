package infra

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/vinolens/vinolens-analyzer/config"
	"github.com/vinolens/vinolens-analyzer/entity"
)

type PostgresClient struct {
	DB *gorm.DB
}

// InitPostgresClient connects to the archive database. The archive is
// optional: an empty host returns nil and the service runs without history.
func InitPostgresClient(cfg *config.EnvConfig) *PostgresClient {
	if cfg.Postgres.Host == "" {
		log.Println("Postgres not configured, scan archive disabled")
		return nil
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.Postgres.Host,
		cfg.Postgres.Username,
		cfg.Postgres.Password,
		cfg.Postgres.Database,
		cfg.Postgres.Port,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Printf("Postgres connection failed: %v", err)
		return nil
	}

	if err := db.AutoMigrate(&entity.ScanArchive{}); err != nil {
		log.Printf("Postgres migration failed: %v", err)
		return nil
	}

	log.Println("Connected to Postgres:", cfg.Postgres.Host+":"+cfg.Postgres.Port)

	return &PostgresClient{DB: db}
}
