package config

import (
	"os"
	"strconv"
)

type EnvConfig struct {
	HTTP struct {
		Port string
	}
	JWT struct {
		SecretKey string
	}
	CORS struct {
		AllowDomains string
	}
	Redis struct {
		Password  string
		Database  int
		RedisHost string
		RedisPort string
	}
	RabbitMQ struct {
		Host     string
		Port     string
		Username string
		Password string
	}
	Minio struct {
		Endpoint      string
		RootUser      string
		RootPassword  string
		Bucket        string
		PublicBaseURL string
		UseSSL        bool
	}
	Postgres struct {
		Host     string
		Database string
		Username string
		Password string
		Port     string
	}
	Sommelier struct {
		BaseURL         string
		APIKey          string
		VisionModel     string
		GenerationModel string
		TimeoutSeconds  int
	}
	Scan struct {
		TTLSeconds    int   // lifetime of a job's records in the store
		MaxEntryBytes int   // per-entry size ceiling for the detail record
		MaxImageBytes int64 // largest accepted submission payload
	}
	Grafana struct {
		OTLPEndpoint string
		ServiceName  string
	}
	Environment struct {
		Mode string
	}
}

func LoadEnvConfig() *EnvConfig {
	var config EnvConfig

	// HTTP
	config.HTTP.Port = os.Getenv("HTTP_PORT")
	if config.HTTP.Port == "" {
		config.HTTP.Port = "8080"
	}

	// JWT (optional: empty secret disables auth)
	config.JWT.SecretKey = os.Getenv("JWT_SECRET_KEY")

	config.CORS.AllowDomains = os.Getenv("ALLOWED_DOMAINS")

	// Redis
	config.Redis.Password = os.Getenv("REDIS_PASSWORD")
	config.Redis.Database, _ = strconv.Atoi(os.Getenv("REDIS_DB"))
	config.Redis.RedisHost = os.Getenv("REDIS_HOST")
	if config.Redis.RedisHost == "" {
		config.Redis.RedisHost = "localhost"
	}
	config.Redis.RedisPort = os.Getenv("REDIS_PORT")
	if config.Redis.RedisPort == "" {
		config.Redis.RedisPort = "6379"
	}

	// RabbitMQ
	config.RabbitMQ.Host = os.Getenv("RABBITMQ_HOST")
	if config.RabbitMQ.Host == "" {
		config.RabbitMQ.Host = "localhost"
	}
	config.RabbitMQ.Port = os.Getenv("RABBITMQ_PORT")
	if config.RabbitMQ.Port == "" {
		config.RabbitMQ.Port = "5672"
	}
	config.RabbitMQ.Username = os.Getenv("RABBITMQ_USER")
	if config.RabbitMQ.Username == "" {
		config.RabbitMQ.Username = "guest"
	}
	config.RabbitMQ.Password = os.Getenv("RABBITMQ_PASSWORD")
	if config.RabbitMQ.Password == "" {
		config.RabbitMQ.Password = "guest"
	}

	// MinIO
	config.Minio.Endpoint = os.Getenv("MINIO_ENDPOINT")
	config.Minio.RootUser = os.Getenv("MINIO_ROOT_USER")
	config.Minio.RootPassword = os.Getenv("MINIO_ROOT_PASSWORD")
	config.Minio.Bucket = os.Getenv("MINIO_SCAN_BUCKET")
	if config.Minio.Bucket == "" {
		config.Minio.Bucket = "scan-images"
	}
	config.Minio.PublicBaseURL = os.Getenv("MINIO_PUBLIC_BASE_URL")
	config.Minio.UseSSL = os.Getenv("MINIO_USE_SSL") == "true"

	// Postgres (optional: empty host disables the archive)
	config.Postgres.Host = os.Getenv("PG_HOST")
	config.Postgres.Database = os.Getenv("PG_DB")
	config.Postgres.Username = os.Getenv("PG_USER")
	config.Postgres.Password = os.Getenv("PG_PASSWORD")
	config.Postgres.Port = os.Getenv("PG_PORT")
	if config.Postgres.Port == "" {
		config.Postgres.Port = "5432"
	}

	// Sommelier AI endpoint
	config.Sommelier.BaseURL = os.Getenv("SOMMELIER_BASE_URL")
	config.Sommelier.APIKey = os.Getenv("SOMMELIER_API_KEY")
	config.Sommelier.VisionModel = os.Getenv("SOMMELIER_VISION_MODEL")
	if config.Sommelier.VisionModel == "" {
		config.Sommelier.VisionModel = "gpt-4o-mini"
	}
	config.Sommelier.GenerationModel = os.Getenv("SOMMELIER_GENERATION_MODEL")
	if config.Sommelier.GenerationModel == "" {
		config.Sommelier.GenerationModel = config.Sommelier.VisionModel
	}
	config.Sommelier.TimeoutSeconds, _ = strconv.Atoi(os.Getenv("SOMMELIER_TIMEOUT_SECONDS"))
	if config.Sommelier.TimeoutSeconds == 0 {
		config.Sommelier.TimeoutSeconds = 60
	}

	// Scan job lifecycle
	config.Scan.TTLSeconds, _ = strconv.Atoi(os.Getenv("SCAN_TTL_SECONDS"))
	if config.Scan.TTLSeconds == 0 {
		config.Scan.TTLSeconds = 86400
	}
	config.Scan.MaxEntryBytes, _ = strconv.Atoi(os.Getenv("SCAN_MAX_ENTRY_BYTES"))
	if config.Scan.MaxEntryBytes == 0 {
		config.Scan.MaxEntryBytes = 65536
	}
	maxImage, _ := strconv.Atoi(os.Getenv("SCAN_MAX_IMAGE_BYTES"))
	config.Scan.MaxImageBytes = int64(maxImage)
	if config.Scan.MaxImageBytes == 0 {
		config.Scan.MaxImageBytes = 10 << 20
	}

	// Observability
	config.Grafana.OTLPEndpoint = os.Getenv("OTLP_ENDPOINT")
	config.Grafana.ServiceName = os.Getenv("OTEL_SERVICE_NAME")
	if config.Grafana.ServiceName == "" {
		config.Grafana.ServiceName = "vinolens-analyzer"
	}

	config.Environment.Mode = os.Getenv("ENVIRONMENT_MODE")
	if config.Environment.Mode == "" {
		config.Environment.Mode = "development"
	}

	return &config
}
