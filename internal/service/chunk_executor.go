package service

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/generator"
	"github.com/timmy/csvgen/internal/logger"
)

// ctxCheckInterval is how many rows are written between cancellation checks.
const ctxCheckInterval = 1000

// ChunkExecutor generates one chunk into a job-scoped, chunk-indexed segment file.
// It keeps no state between tasks.
type ChunkExecutor struct {
	registry *generator.Registry
	tempDir  string
}

// NewChunkExecutor creates tempDir if needed.
func NewChunkExecutor(registry *generator.Registry, tempDir string) (*ChunkExecutor, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &ChunkExecutor{registry: registry, tempDir: tempDir}, nil
}

// SegmentPath returns the segment file for a chunk.
func (e *ChunkExecutor) SegmentPath(jobID string, index int) string {
	return filepath.Join(e.tempDir, fmt.Sprintf("%s_part_%d.csv", jobID, index))
}

// Execute writes a header line and task.RowCount generated rows.
func (e *ChunkExecutor) Execute(ctx context.Context, task domain.ChunkTask) (res domain.ChunkResult, err error) {
	start := time.Now()
	log := logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldJobID:      task.JobID,
		logger.FieldChunkIndex: task.Index,
	})
	log.Debugf("Processing chunk (rows %d to %d)", task.StartRow+1, task.StartRow+int64(task.RowCount))

	path := e.SegmentPath(task.JobID, task.Index)
	f, err := os.Create(path)
	if err != nil {
		return res, fmt.Errorf("failed to create segment: %w", err)
	}
	// removed on every exit but success, panics included
	done := false
	defer func() {
		if !done {
			f.Close()
			os.Remove(path)
		}
	}()

	bw := bufio.NewWriterSize(f, 64*1024)
	w := csv.NewWriter(bw)
	if err = w.Write(domain.ColumnNames(task.Columns)); err != nil {
		return res, fmt.Errorf("failed to write segment header: %w", err)
	}

	record := make([]string, 0, len(task.Columns))
	for i := 0; i < task.RowCount; i++ {
		if i%ctxCheckInterval == 0 {
			if err = ctx.Err(); err != nil {
				return res, err
			}
		}
		record, err = e.registry.Record(task.Columns, task.StartRow+int64(i), record)
		if err != nil {
			return res, fmt.Errorf("failed to generate row: %w", err)
		}
		if err = w.Write(record); err != nil {
			return res, fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	if err = w.Error(); err != nil {
		return res, fmt.Errorf("failed to flush segment: %w", err)
	}
	if err = bw.Flush(); err != nil {
		return res, fmt.Errorf("failed to flush segment: %w", err)
	}
	if err = f.Close(); err != nil {
		return res, fmt.Errorf("failed to close segment: %w", err)
	}
	done = true

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldCount:      task.RowCount,
	}).Debug(log.WithContext(ctx), "Chunk completed")

	return domain.ChunkResult{
		JobID:         task.JobID,
		ChunkIndex:    task.Index,
		Success:       true,
		RowsGenerated: task.RowCount,
		SegmentPath:   path,
	}, nil
}
