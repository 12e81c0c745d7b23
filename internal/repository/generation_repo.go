package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/timmy/csvgen/internal/domain"
)

// ErrNotFound is returned when no history record matches.
var ErrNotFound = errors.New("record not found")

// GenerationRepository stores job history.
type GenerationRepository struct {
	db *gorm.DB
}

// NewGenerationRepository creates a new GenerationRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *GenerationRepository: repository instance bound to db.
func NewGenerationRepository(db *gorm.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

// RecordJob upserts the history record of a job snapshot.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job snapshot to persist.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *GenerationRepository) RecordJob(ctx context.Context, job domain.Job) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		UpdateAll: true,
	}).Create(domain.NewGenerationRecord(job)).Error
}

// GetByJobID retrieves the history record of a job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job ID.
// Returns:
//   - *domain.GenerationRecord: record if found.
//   - error: ErrNotFound if missing, non-nil on other failures.
func (r *GenerationRepository) GetByJobID(ctx context.Context, jobID string) (*domain.GenerationRecord, error) {
	var rec domain.GenerationRecord
	if err := r.db.WithContext(ctx).First(&rec, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// List retrieves history records, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.GenerationRecord: records in the requested page.
//   - error: non-nil if query fails.
func (r *GenerationRepository) List(ctx context.Context, limit, offset int) ([]domain.GenerationRecord, error) {
	var recs []domain.GenerationRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	return recs, err
}

// CountByStatus returns the number of records per status.
func (r *GenerationRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	var rows []struct {
		Status domain.JobStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.GenerationRecord{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[domain.JobStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
