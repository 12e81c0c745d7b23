package domain

import "time"

// GenerationRecord is the persisted history entry of a generation job.
type GenerationRecord struct {
	JobID            string     `gorm:"primaryKey;type:varchar(36)" json:"jobId"`
	FileName         string     `gorm:"type:varchar(255)" json:"filename"`
	Fields           []Column   `gorm:"serializer:json" json:"fields"`
	RowCount         int        `json:"rowCount"`
	FileSize         int64      `json:"fileSizeBytes"`
	FileSizeHuman    string     `gorm:"type:varchar(32)" json:"fileSize"`
	ProcessingTimeMs int64      `json:"processingTime"`
	Status           JobStatus  `gorm:"type:varchar(20);index" json:"status"`
	WorkersUsed      int        `json:"workerThreadsUsed"`
	TotalChunks      int        `json:"totalChunks"`
	DownloadPath     string     `gorm:"type:text" json:"downloadPath,omitempty"`
	Error            string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt        time.Time  `gorm:"index" json:"createdAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// TableName keeps the historical table name.
func (GenerationRecord) TableName() string {
	return "csv_generations"
}

// NewGenerationRecord builds the history entry for a job snapshot.
func NewGenerationRecord(job Job) *GenerationRecord {
	return &GenerationRecord{
		JobID:            job.ID,
		FileName:         job.FileName,
		Fields:           job.Columns,
		RowCount:         job.RowCount,
		FileSize:         job.FileSize,
		FileSizeHuman:    job.FileSizeHuman,
		ProcessingTimeMs: job.ProcessingTimeMs(),
		Status:           job.Status,
		WorkersUsed:      job.WorkersUsed,
		TotalChunks:      job.TotalChunks,
		DownloadPath:     job.DownloadURL,
		Error:            job.Error,
		CreatedAt:        job.CreatedAt,
		CompletedAt:      job.CompletedAt,
	}
}
