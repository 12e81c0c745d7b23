// Package planner splits a job's row count into bounded chunks.
package planner

import (
	"errors"

	"github.com/timmy/csvgen/internal/domain"
)

// DefaultMaxChunkSize is the number of rows per chunk unless configured otherwise.
const DefaultMaxChunkSize = 10000

var (
	ErrInvalidRowCount  = errors.New("row count must be at least 1")
	ErrInvalidChunkSize = errors.New("max chunk size must be at least 1")
)

// ChunkCount returns ceil(totalRows / maxChunkSize) for valid input and 0 otherwise.
func ChunkCount(totalRows, maxChunkSize int) int {
	if totalRows < 1 || maxChunkSize < 1 {
		return 0
	}
	return (totalRows + maxChunkSize - 1) / maxChunkSize
}

// Plan produces the ordered chunk tasks for a job.
// Every chunk holds maxChunkSize rows except possibly the last, which takes the remainder.
func Plan(jobID string, cols []domain.Column, totalRows, maxChunkSize int) ([]domain.ChunkTask, error) {
	if totalRows < 1 {
		return nil, ErrInvalidRowCount
	}
	if maxChunkSize < 1 {
		return nil, ErrInvalidChunkSize
	}

	n := ChunkCount(totalRows, maxChunkSize)
	tasks := make([]domain.ChunkTask, n)
	for i := 0; i < n; i++ {
		start := i * maxChunkSize
		tasks[i] = domain.ChunkTask{
			JobID:       jobID,
			Index:       i,
			StartRow:    int64(start),
			RowCount:    min(maxChunkSize, totalRows-start),
			TotalChunks: n,
			Columns:     cols,
		}
	}
	return tasks, nil
}
