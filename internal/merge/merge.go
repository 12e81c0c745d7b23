// Package merge folds per-chunk CSV segments into one artifact.
package merge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/logger"
)

const partialSuffix = ".partial"

var ErrNoChunks = errors.New("no chunk results to merge")

// Artifact describes a merged, durably written output file.
type Artifact struct {
	JobID     string
	Path      string
	FileName  string
	Size      int64
	SizeHuman string
	Rows      int
}

// ProgressFunc is called after each chunk is folded into the artifact.
type ProgressFunc func(merged, total int)

// Engine merges chunk segments into artifacts under outputDir.
type Engine struct {
	outputDir string
	log       *logger.Logger
}

// NewEngine creates outputDir if needed.
func NewEngine(outputDir string, log *logger.Logger) (*Engine, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Engine{outputDir: outputDir, log: log.WithField(logger.FieldComponent, "merge")}, nil
}

// FileName returns the artifact file name for a job.
func FileName(jobID string) string {
	return jobID + ".csv"
}

// ArtifactPath returns where the artifact of jobID lives once merged.
func (e *Engine) ArtifactPath(jobID string) string {
	return filepath.Join(e.outputDir, FileName(jobID))
}

// HeaderLine renders the header for cols, quoted the same way as data rows.
func HeaderLine(cols []domain.Column) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(domain.ColumnNames(cols)); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\r\n"), nil
}

// Merge writes the header followed by every segment's rows in chunk index order.
// results must be the successful results of one job. The artifact only appears
// under its final name after it has been flushed and synced; on error nothing is
// left behind. Folded segments are removed, best effort.
func (e *Engine) Merge(ctx context.Context, jobID string, cols []domain.Column, results []domain.ChunkResult, progress ProgressFunc) (art *Artifact, err error) {
	if len(results) == 0 {
		return nil, ErrNoChunks
	}
	for i, r := range results {
		if !r.Success || r.ChunkIndex != i {
			return nil, fmt.Errorf("chunk results out of order or failed at position %d (chunk %d)", i, r.ChunkIndex)
		}
	}

	header, err := HeaderLine(cols)
	if err != nil {
		return nil, fmt.Errorf("failed to render header: %w", err)
	}
	plainHeader := strings.Join(domain.ColumnNames(cols), ",")

	finalPath := e.ArtifactPath(jobID)
	partialPath := finalPath + partialSuffix

	f, err := os.Create(partialPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact: %w", err)
	}

	folded := 0
	defer func() {
		if err == nil {
			return
		}
		f.Close()
		if rmErr := os.Remove(partialPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			e.log.WithField(logger.FieldJobID, jobID).WithError(rmErr).Warn("Failed to remove partial artifact")
		}
		e.Discard(ctx, results[folded:])
	}()

	w := &lastByteWriter{w: bufio.NewWriterSize(f, 256*1024)}
	if _, err = io.WriteString(w, header+"\n"); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	rows := 0
	for i, r := range results {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		if err = e.fold(w, r.SegmentPath, header, plainHeader); err != nil {
			return nil, fmt.Errorf("failed to merge chunk %d: %w", r.ChunkIndex, err)
		}
		folded = i + 1
		rows += r.RowsGenerated
		e.removeSegment(jobID, r)

		if progress != nil {
			progress(i+1, len(results))
		}
	}

	if err = w.w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush artifact: %w", err)
	}
	if err = f.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close artifact: %w", err)
	}
	if err = os.Rename(partialPath, finalPath); err != nil {
		return nil, fmt.Errorf("failed to publish artifact: %w", err)
	}

	info, statErr := os.Stat(finalPath)
	if statErr != nil {
		return nil, fmt.Errorf("failed to stat artifact: %w", statErr)
	}

	return &Artifact{
		JobID:     jobID,
		Path:      finalPath,
		FileName:  FileName(jobID),
		Size:      info.Size(),
		SizeHuman: HumanSize(info.Size()),
		Rows:      rows,
	}, nil
}

// fold copies one segment into w, dropping a leading header line.
func (e *Engine) fold(w *lastByteWriter, path, header, plainHeader string) error {
	seg, err := os.Open(path)
	if err != nil {
		return err
	}
	defer seg.Close()

	r := bufio.NewReaderSize(seg, 64*1024)
	// a quoted header may span several physical lines, so match it by bytes
	for _, h := range []string{header, plainHeader} {
		skipped, err := skipPrefix(r, h)
		if err != nil {
			return err
		}
		if skipped {
			break
		}
	}
	if _, err := io.Copy(w, r); err != nil {
		return err
	}
	if w.last != 0 && w.last != '\n' {
		_, err := w.Write([]byte{'\n'})
		return err
	}
	return nil
}

// skipPrefix discards line followed by a line ending (or EOF) when the reader starts with it.
func skipPrefix(r *bufio.Reader, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	buf, err := r.Peek(len(line) + 2)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return false, err
	}
	if !bytes.HasPrefix(buf, []byte(line)) {
		return false, nil
	}
	rest := buf[len(line):]
	switch {
	case len(rest) == 0:
		_, err = r.Discard(len(line))
	case rest[0] == '\n':
		_, err = r.Discard(len(line) + 1)
	case len(rest) == 2 && rest[0] == '\r' && rest[1] == '\n':
		_, err = r.Discard(len(line) + 2)
	case rest[0] == '\r':
		_, err = r.Discard(len(line) + 1)
	default:
		return false, nil
	}
	return err == nil, err
}

// Discard removes the segments of results, e.g. when a job fails.
func (e *Engine) Discard(ctx context.Context, results []domain.ChunkResult) {
	for _, r := range results {
		if r.Success {
			e.removeSegment(r.JobID, r)
		}
	}
}

func (e *Engine) removeSegment(jobID string, r domain.ChunkResult) {
	if r.SegmentPath == "" {
		return
	}
	if err := os.Remove(r.SegmentPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.log.WithFields(logger.Fields{
			logger.FieldJobID:      jobID,
			logger.FieldChunkIndex: r.ChunkIndex,
			"segment":              r.SegmentPath,
		}).WithError(err).Warn("Failed to remove chunk segment")
	}
}

// HumanSize formats a byte count, e.g. "512 B", "1.50 KB", "2.00 MB".
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 4; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGTP"[exp])
}

type lastByteWriter struct {
	w    *bufio.Writer
	last byte
}

func (l *lastByteWriter) Write(p []byte) (int, error) {
	n, err := l.w.Write(p)
	if n > 0 {
		l.last = p[n-1]
	}
	return n, err
}
