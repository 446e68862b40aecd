package repository

import (
	"gorm.io/gorm"

	"github.com/vinolens/vinolens-analyzer/entity"
)

type ArchiveRepository struct {
	db *gorm.DB
}

func NewArchiveRepository(db *gorm.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

func (r *ArchiveRepository) Create(archive *entity.ScanArchive) error {
	return r.db.Create(archive).Error
}

func (r *ArchiveRepository) ListRecent(limit int) ([]entity.ScanArchive, error) {
	var archives []entity.ScanArchive
	err := r.db.Order("completed_at DESC").Limit(limit).Find(&archives).Error
	if err != nil {
		return nil, err
	}
	return archives, nil
}

func (r *ArchiveRepository) FindByJobID(jobID string) (*entity.ScanArchive, error) {
	var archive entity.ScanArchive
	err := r.db.Where("job_id = ?", jobID).First(&archive).Error
	if err != nil {
		return nil, err
	}
	return &archive, nil
}
