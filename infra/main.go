package infra

import (
	"context"
	"log"

	"github.com/vinolens/vinolens-analyzer/config"
	"github.com/vinolens/vinolens-analyzer/infra/produce"
)

type Infra struct {
	Redis     *RedisClient
	Logger    *LoggerClient
	RabbitMQ  *RabbitMQClient
	Minio     *MinioClient
	Postgres  *PostgresClient
	Sommelier *SommelierClient
	Produce   *produce.Produce

	ShutdownObservability func(context.Context) error
}

var infraInstance *Infra

func InitInfra(cfg *config.Config) *Infra {
	if infraInstance != nil {
		return infraInstance
	}

	shutdownObservability, err := InitObservability(context.Background(), cfg.EnvConfig)
	if err != nil {
		panic("Failed to initialize observability: " + err.Error())
	}

	logger := InitLoggerClient(cfg.EnvConfig)
	if logger == nil {
		panic("Failed to initialize Logger service")
	}

	redis := InitRedisClient(cfg.EnvConfig)
	if redis == nil {
		panic("Failed to initialize Redis service")
	}

	rabbitMQ := InitRabbitMQClient(cfg.EnvConfig)
	if rabbitMQ == nil {
		panic("Failed to initialize RabbitMQ service")
	}

	minio := InitMinioClient(cfg.EnvConfig)
	if minio == nil {
		panic("Failed to initialize MinIO service")
	}

	if err := minio.EnsureBucket(context.Background()); err != nil {
		panic("Failed to ensure scan bucket: " + err.Error())
	}

	// Postgres is optional - the archive is skipped when it is absent
	postgres := InitPostgresClient(cfg.EnvConfig)
	if postgres == nil {
		log.Println("Warning: running without Postgres, completed scans will not be archived")
	}

	sommelier := InitSommelierClient(cfg.EnvConfig)

	produceService := produce.InitProduce(rabbitMQ.Channel)
	if produceService == nil {
		panic("Failed to initialize Produce service")
	}

	infraInstance = &Infra{
		Redis:                 redis,
		Logger:                logger,
		RabbitMQ:              rabbitMQ,
		Minio:                 minio,
		Postgres:              postgres,
		Sommelier:             sommelier,
		Produce:               produceService,
		ShutdownObservability: shutdownObservability,
	}

	return infraInstance
}

func GetClient() *Infra {
	if infraInstance == nil {
		panic("Infra not initialized. Call InitInfra() first.")
	}
	return infraInstance
}
