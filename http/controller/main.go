package controller

import (
	"context"

	"github.com/vinolens/vinolens-analyzer/config"
	"github.com/vinolens/vinolens-analyzer/infra"
	"github.com/vinolens/vinolens-analyzer/infra/produce"
	"github.com/vinolens/vinolens-analyzer/repository"
)

// BlobStore persists an image and returns a fetchable URL. Satisfied by
// infra.MinioClient.
type BlobStore interface {
	PutImage(ctx context.Context, data []byte, contentType string) (string, error)
}

// ScanDispatcher hands a job to the analyzer worker without waiting for it.
// Satisfied by produce.ScanProduceService.
type ScanDispatcher interface {
	PublishAnalyzeScan(ctx context.Context, msg produce.ScanJobMessage) error
}

type Controller struct {
	Config     *config.Config
	Infra      *infra.Infra
	Repository *repository.Repository
	Blobs      BlobStore
	Dispatch   ScanDispatcher
}

func NewController(cfg *config.Config, infra *infra.Infra, repo *repository.Repository) *Controller {
	return &Controller{
		Config:     cfg,
		Infra:      infra,
		Repository: repo,
		Blobs:      infra.Minio,
		Dispatch:   infra.Produce.ScanService,
	}
}
