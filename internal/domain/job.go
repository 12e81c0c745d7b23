package domain

import "time"

// JobStatus represents the lifecycle state of a generation job.
// A job moves strictly forward: pending, starting, distributing, merging, then completed or failed.
type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusStarting     JobStatus = "starting"
	JobStatusDistributing JobStatus = "distributing"
	JobStatusMerging      JobStatus = "merging"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
)

var statusRank = map[JobStatus]int{
	JobStatusPending:      0,
	JobStatusStarting:     1,
	JobStatusDistributing: 2,
	JobStatusMerging:      3,
	JobStatusCompleted:    4,
	JobStatusFailed:       4,
}

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether moving from s to next keeps the lifecycle ordered.
// failed is reachable from any non-terminal state.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == JobStatusFailed {
		return true
	}
	cur, ok1 := statusRank[s]
	nxt, ok2 := statusRank[next]
	return ok1 && ok2 && nxt > cur
}

// Job is a single request to generate RowCount rows across Columns.
type Job struct {
	ID             string        `json:"jobId"`
	Columns        []Column      `json:"fields"`
	RowCount       int           `json:"rowCount"`
	Status         JobStatus     `json:"status"`
	TotalChunks    int           `json:"totalChunks,omitempty"`
	WorkersUsed    int           `json:"workerThreadsUsed,omitempty"`
	FileName       string        `json:"filename,omitempty"`
	FileSize       int64         `json:"fileSizeBytes,omitempty"`
	FileSizeHuman  string        `json:"fileSize,omitempty"`
	ProcessingTime time.Duration `json:"-"`
	DownloadURL    string        `json:"downloadUrl,omitempty"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
}

// ProcessingTimeMs returns the elapsed generation time in milliseconds.
func (j Job) ProcessingTimeMs() int64 {
	return j.ProcessingTime.Milliseconds()
}

// Clone returns a copy that shares no mutable state with j.
func (j Job) Clone() Job {
	out := j
	out.Columns = append([]Column(nil), j.Columns...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
