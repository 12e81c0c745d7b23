package merge

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/logger"
)

var testColumns = []domain.Column{
	{Name: "id", Kind: "id", Order: 0},
	{Name: "email", Kind: "email", Order: 1},
}

// writeSegment writes a segment with an optional header and rows [start, start+n).
func writeSegment(t *testing.T, dir, jobID string, index int, start, n int, withHeader bool) domain.ChunkResult {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("%s_part_%d.csv", jobID, index))
	var sb strings.Builder
	if withHeader {
		sb.WriteString("id,email\n")
	}
	for row := start; row < start+n; row++ {
		fmt.Fprintf(&sb, "%d,user%d@example.com\n", row, row)
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))
	return domain.ChunkResult{JobID: jobID, ChunkIndex: index, Success: true, RowsGenerated: n, SegmentPath: path}
}

func newEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "generated")
	e, err := NewEngine(out, logger.Discard())
	require.NoError(t, err)
	return e, out
}

func countLines(t *testing.T, path string) (header string, rows int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	sc := bufio.NewScanner(f)
	first := true
	for sc.Scan() {
		if first {
			header = sc.Text()
			first = false
			continue
		}
		rows++
	}
	require.NoError(t, sc.Err())
	return header, rows
}

func TestMergeSingleHeaderInChunkOrder(t *testing.T) {
	e, _ := newEngine(t)
	segDir := t.TempDir()

	results := []domain.ChunkResult{
		writeSegment(t, segDir, "job", 0, 0, 3, true),
		writeSegment(t, segDir, "job", 1, 3, 2, true),
	}

	var calls []int
	art, err := e.Merge(context.Background(), "job", testColumns, results, func(merged, total int) {
		assert.Equal(t, 2, total)
		calls = append(calls, merged)
	})
	require.NoError(t, err)

	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, "id,email\n"+
		"0,user0@example.com\n1,user1@example.com\n2,user2@example.com\n"+
		"3,user3@example.com\n4,user4@example.com\n", string(data))
	assert.Equal(t, []int{1, 2}, calls)
	assert.Equal(t, 5, art.Rows)
	assert.Equal(t, int64(len(data)), art.Size)
	assert.Equal(t, "job.csv", art.FileName)

	for _, r := range results {
		assert.NoFileExists(t, r.SegmentPath)
	}
	assert.NoFileExists(t, art.Path+partialSuffix)
}

func TestMergeKeepsHeaderlessSegments(t *testing.T) {
	e, _ := newEngine(t)
	segDir := t.TempDir()

	results := []domain.ChunkResult{
		writeSegment(t, segDir, "job", 0, 0, 2, false),
		writeSegment(t, segDir, "job", 1, 2, 2, true),
	}
	// no trailing newline on the last segment
	raw, _ := os.ReadFile(results[1].SegmentPath)
	require.NoError(t, os.WriteFile(results[1].SegmentPath, []byte(strings.TrimSuffix(string(raw), "\n")), 0644))

	art, err := e.Merge(context.Background(), "job", testColumns, results, nil)
	require.NoError(t, err)

	header, rows := countLines(t, art.Path)
	assert.Equal(t, "id,email", header)
	assert.Equal(t, 4, rows)

	data, _ := os.ReadFile(art.Path)
	assert.True(t, strings.HasSuffix(string(data), "\n"))
}

func TestMergeRowCountConservation(t *testing.T) {
	e, _ := newEngine(t)
	segDir := t.TempDir()

	results := []domain.ChunkResult{
		writeSegment(t, segDir, "big", 0, 0, 10000, true),
		writeSegment(t, segDir, "big", 1, 10000, 10000, true),
		writeSegment(t, segDir, "big", 2, 20000, 5000, true),
	}

	art, err := e.Merge(context.Background(), "big", testColumns, results, nil)
	require.NoError(t, err)

	header, rows := countLines(t, art.Path)
	assert.Equal(t, "id,email", header)
	assert.Equal(t, 25000, rows)
	assert.Equal(t, 25000, art.Rows)
}

func TestMergeIsDeterministic(t *testing.T) {
	e, _ := newEngine(t)

	run := func(jobID string) []byte {
		segDir := t.TempDir()
		// segments written in reverse, as if later chunks finished first
		results := make([]domain.ChunkResult, 4)
		for i := 3; i >= 0; i-- {
			results[i] = writeSegment(t, segDir, jobID, i, i*50, 50, true)
		}
		art, err := e.Merge(context.Background(), jobID, testColumns, results, nil)
		require.NoError(t, err)
		data, err := os.ReadFile(art.Path)
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, run("first"), run("second"))
}

func TestMergeQuotesHeaderConsistently(t *testing.T) {
	cols := []domain.Column{{Name: "id"}, {Name: "last, first"}, {Name: `say "hi"`}}
	header, err := HeaderLine(cols)
	require.NoError(t, err)
	assert.Equal(t, `id,"last, first","say ""hi"""`, header)

	e, _ := newEngine(t)
	seg := filepath.Join(t.TempDir(), "q_part_0.csv")
	require.NoError(t, os.WriteFile(seg, []byte(header+"\n1,a,b\n"), 0644))

	art, err := e.Merge(context.Background(), "q", cols, []domain.ChunkResult{
		{JobID: "q", ChunkIndex: 0, Success: true, RowsGenerated: 1, SegmentPath: seg},
	}, nil)
	require.NoError(t, err)

	data, _ := os.ReadFile(art.Path)
	assert.Equal(t, header+"\n1,a,b\n", string(data))
}

func TestMergeFailureLeavesNoArtifact(t *testing.T) {
	e, out := newEngine(t)
	segDir := t.TempDir()

	results := []domain.ChunkResult{
		writeSegment(t, segDir, "broken", 0, 0, 2, true),
		{JobID: "broken", ChunkIndex: 1, Success: true, RowsGenerated: 2, SegmentPath: filepath.Join(segDir, "missing.csv")},
		writeSegment(t, segDir, "broken", 2, 4, 2, true),
	}

	_, err := e.Merge(context.Background(), "broken", testColumns, results, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 1")

	entries, _ := os.ReadDir(out)
	assert.Empty(t, entries, "neither final nor partial artifact may remain")
	assert.NoFileExists(t, results[2].SegmentPath, "unmerged segments are discarded")
}

func TestMergeRejectsBadInput(t *testing.T) {
	e, _ := newEngine(t)

	_, err := e.Merge(context.Background(), "none", testColumns, nil, nil)
	assert.ErrorIs(t, err, ErrNoChunks)

	_, err = e.Merge(context.Background(), "swap", testColumns, []domain.ChunkResult{
		{ChunkIndex: 1, Success: true},
		{ChunkIndex: 0, Success: true},
	}, nil)
	assert.Error(t, err)
}

func TestMergeHonoursCancellation(t *testing.T) {
	e, out := newEngine(t)
	segDir := t.TempDir()
	results := []domain.ChunkResult{writeSegment(t, segDir, "c", 0, 0, 1, true)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Merge(ctx, "c", testColumns, results, nil)
	assert.ErrorIs(t, err, context.Canceled)
	entries, _ := os.ReadDir(out)
	assert.Empty(t, entries)
}

func TestDiscardRemovesSegments(t *testing.T) {
	e, _ := newEngine(t)
	segDir := t.TempDir()
	results := []domain.ChunkResult{
		writeSegment(t, segDir, "d", 0, 0, 1, true),
		{JobID: "d", ChunkIndex: 1, Error: "failed"},
		{JobID: "d", ChunkIndex: 2, Success: true, SegmentPath: filepath.Join(segDir, "gone.csv")},
	}

	e.Discard(context.Background(), results)
	assert.NoFileExists(t, results[0].SegmentPath)
}

func TestHumanSize(t *testing.T) {
	testCases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.50 KB"},
		{2 * 1024 * 1024, "2.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, HumanSize(tc.in))
	}
}

func TestMergeSkipsHeaderSpanningLines(t *testing.T) {
	e, _ := newEngine(t)
	segDir := t.TempDir()
	cols := []domain.Column{{Name: "a\nb", Kind: "id"}, {Name: "c", Kind: "email", Order: 1}}

	header, err := HeaderLine(cols)
	require.NoError(t, err)
	require.Equal(t, "\"a\nb\",c", header)

	var results []domain.ChunkResult
	for i := 0; i < 3; i++ {
		path := filepath.Join(segDir, fmt.Sprintf("job_part_%d.csv", i))
		body := fmt.Sprintf("%s\n%d,x\n%d,y\n", header, 2*i, 2*i+1)
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		results = append(results, domain.ChunkResult{JobID: "job", ChunkIndex: i, Success: true, RowsGenerated: 2, SegmentPath: path})
	}

	art, err := e.Merge(context.Background(), "job", cols, results, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), header))
	assert.Equal(t, header+"\n0,x\n1,y\n2,x\n3,y\n4,x\n5,y\n", string(data))
}

func TestMergeSkipsHeaderWithoutTrailingNewline(t *testing.T) {
	e, _ := newEngine(t)
	segDir := t.TempDir()

	path := filepath.Join(segDir, "job_part_0.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,email"), 0644))
	results := []domain.ChunkResult{
		{JobID: "job", ChunkIndex: 0, Success: true, SegmentPath: path},
		writeSegment(t, segDir, "job", 1, 0, 1, true),
	}

	art, err := e.Merge(context.Background(), "job", testColumns, results, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, "id,email\n0,user0@example.com\n", string(data))
}
