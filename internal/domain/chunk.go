package domain

// ChunkTask is one bounded slice of a job's rows.
// Index is dense in [0, TotalChunks) and StartRow is the absolute offset of the first row.
type ChunkTask struct {
	JobID       string
	Index       int
	StartRow    int64
	RowCount    int
	TotalChunks int
	Columns     []Column
}

// ChunkResult is the single outcome of a ChunkTask.
// A successful result references the segment holding the produced rows.
type ChunkResult struct {
	JobID         string `json:"jobId"`
	ChunkIndex    int    `json:"chunkIndex"`
	Success       bool   `json:"success"`
	RowsGenerated int    `json:"rowsGenerated,omitempty"`
	SegmentPath   string `json:"filePath,omitempty"`
	Error         string `json:"error,omitempty"`
}

// FailedChunk builds a failure result for task.
func FailedChunk(task ChunkTask, diagnostic string) ChunkResult {
	return ChunkResult{
		JobID:      task.JobID,
		ChunkIndex: task.Index,
		Error:      diagnostic,
	}
}
