package domain

import "time"

// ProgressEvent is published for every lifecycle transition and progress update of a job.
// Progress is advisory; Status only moves forward for a given job.
type ProgressEvent struct {
	Type             string    `json:"type"`
	JobID            string    `json:"jobId"`
	Status           JobStatus `json:"status"`
	Progress         int       `json:"progress"`
	Message          string    `json:"message"`
	TotalChunks      int       `json:"totalChunks,omitempty"`
	CompletedChunks  int       `json:"completedChunks,omitempty"`
	RowCount         int       `json:"rowCount,omitempty"`
	FileSize         string    `json:"fileSize,omitempty"`
	FileSizeBytes    int64     `json:"fileSizeBytes,omitempty"`
	ProcessingTimeMs int64     `json:"processingTime,omitempty"`
	DownloadURL      string    `json:"downloadUrl,omitempty"`
	Error            string    `json:"error,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// EventTypeProgress is the only event type currently emitted.
const EventTypeProgress = "progress"
