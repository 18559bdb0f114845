package repository

import (
	"blackframe/internal/dto"
	"blackframe/internal/model"
)

// VideoRepository defines the interface for scanned video records.
type VideoRepository interface {
	// Create operations
	Upsert(v *model.Video) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Video, error)
	GetByPath(path string) (*model.Video, error)
	GetAll(filter *dto.VideoFilters) ([]model.Video, error)
	GetTotalCount(filter *dto.VideoFilters) (int, error)
	GetStats() (*model.VideoStats, error)

	// Update operations
	Update(v *model.Video) error
	UpdateStatus(id int64, status, errMsg string) error

	// Delete operations
	Delete(id int64) error
}

// SegmentRepository defines the interface for black segment records.
type SegmentRepository interface {
	// Create operations
	InsertBatch(videoID int64, segments []model.Segment) error

	// Read operations
	GetByVideoID(videoID int64) ([]model.Segment, error)

	// Update operations
	UpdateSnapshot(id int64, path string) error

	// Delete operations
	DeleteByVideoID(videoID int64) error
}
