package repository

import (
	"time"

	"github.com/vinolens/vinolens-analyzer/config"
	"github.com/vinolens/vinolens-analyzer/infra"
)

type Repository struct {
	ScanRepo    *ScanRepository
	ArchiveRepo *ArchiveRepository
}

var repository *Repository

func InitRepository(cfg *config.Config, infra *infra.Infra) *Repository {
	repository = &Repository{
		ScanRepo: NewScanRepository(
			infra.Redis,
			time.Duration(cfg.EnvConfig.Scan.TTLSeconds)*time.Second,
			cfg.EnvConfig.Scan.MaxEntryBytes,
		),
	}
	if infra.Postgres != nil {
		repository.ArchiveRepo = NewArchiveRepository(infra.Postgres.DB)
	}
	return repository
}

func GetRepository() *Repository {
	if repository == nil {
		panic("repository not initialized")
	}
	return repository
}
