package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/logger"
)

func tasksFor(jobID string, n int) []domain.ChunkTask {
	tasks := make([]domain.ChunkTask, n)
	for i := range tasks {
		tasks[i] = domain.ChunkTask{JobID: jobID, Index: i, StartRow: int64(i * 10), RowCount: 10, TotalChunks: n}
	}
	return tasks
}

func succeed(task domain.ChunkTask) domain.ChunkResult {
	return domain.ChunkResult{JobID: task.JobID, ChunkIndex: task.Index, Success: true, RowsGenerated: task.RowCount}
}

func awaitAll(t *testing.T, handles []*Handle) []Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	outcomes, err := AwaitAll(ctx, handles)
	require.NoError(t, err)
	return outcomes
}

func TestPeakConcurrencyNeverExceedsPoolSize(t *testing.T) {
	const size = 4
	var running, peak int64

	p := New(size, ExecutorFunc(func(ctx context.Context, task domain.ChunkTask) (domain.ChunkResult, error) {
		cur := atomic.AddInt64(&running, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&running, -1)
		return succeed(task), nil
	}), logger.Discard())
	defer p.Close()

	// burst from several submitters at once
	var wg sync.WaitGroup
	var mu sync.Mutex
	var handles []*Handle
	for s := 0; s < 5; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			hs := p.SubmitAll(tasksFor(fmt.Sprintf("job-%d", s), 20))
			mu.Lock()
			handles = append(handles, hs...)
			mu.Unlock()
		}(s)
	}
	wg.Wait()

	outcomes := awaitAll(t, handles)
	require.Len(t, outcomes, 100)
	for _, o := range outcomes {
		assert.False(t, o.Failed())
	}
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(size))
	assert.Equal(t, 100, p.Status().Completed)
}

func TestOutcomesMatchSubmissionOrder(t *testing.T) {
	p := New(3, ExecutorFunc(func(ctx context.Context, task domain.ChunkTask) (domain.ChunkResult, error) {
		// later chunks finish first
		time.Sleep(time.Duration(10-task.Index) * time.Millisecond)
		return succeed(task), nil
	}), logger.Discard())
	defer p.Close()

	outcomes := awaitAll(t, p.SubmitAll(tasksFor("job", 10)))
	for i, o := range outcomes {
		assert.Equal(t, i, o.Task.Index)
		assert.Equal(t, i, o.Result.ChunkIndex)
	}
}

func TestPendingQueueIsFIFO(t *testing.T) {
	gate := make(chan struct{})
	var mu sync.Mutex
	var order []int

	p := New(1, ExecutorFunc(func(ctx context.Context, task domain.ChunkTask) (domain.ChunkResult, error) {
		if task.Index == 0 {
			<-gate
		}
		mu.Lock()
		order = append(order, task.Index)
		mu.Unlock()
		return succeed(task), nil
	}), logger.Discard())
	defer p.Close()

	handles := p.SubmitAll(tasksFor("job", 8))
	assert.Equal(t, 7, p.Status().Pending)
	close(gate)

	awaitAll(t, handles)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
}

func TestCrashedUnitIsReplaced(t *testing.T) {
	const size = 3
	p := New(size, ExecutorFunc(func(ctx context.Context, task domain.ChunkTask) (domain.ChunkResult, error) {
		if task.Index == 2 {
			panic("out of memory")
		}
		time.Sleep(time.Millisecond)
		return succeed(task), nil
	}), logger.Discard())
	defer p.Close()

	outcomes := awaitAll(t, p.SubmitAll(tasksFor("job", 10)))

	for i, o := range outcomes {
		if i == 2 {
			assert.True(t, o.Failed())
			assert.True(t, o.Crashed)
			assert.Contains(t, o.Diagnostic(), "out of memory")
			assert.False(t, o.Result.Success)
			continue
		}
		assert.False(t, o.Failed(), "chunk %d", i)
	}

	snap := p.Status()
	assert.Len(t, snap.Units, size)
	assert.Equal(t, 1, snap.Crashes)
	assert.Equal(t, 0, snap.Busy)
	assert.Equal(t, size, snap.Idle)

	// the replacement unit takes new work
	more := awaitAll(t, p.SubmitAll(tasksFor("job-2", 2)))
	for _, o := range more {
		assert.False(t, o.Failed())
	}
}

func TestAnyPanicValueIsACrash(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"empty string", "", "panic without message"},
		{"error value", errors.New("bad state"), "bad state"},
		{"integer", 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const size = 2
			p := New(size, ExecutorFunc(func(ctx context.Context, task domain.ChunkTask) (domain.ChunkResult, error) {
				if task.Index == 1 {
					panic(tt.value)
				}
				return succeed(task), nil
			}), logger.Discard())
			defer p.Close()

			outcomes := awaitAll(t, p.SubmitAll(tasksFor("job", 3)))

			assert.True(t, outcomes[1].Crashed)
			assert.True(t, outcomes[1].Failed())
			assert.Contains(t, outcomes[1].Diagnostic(), tt.want)
			assert.False(t, outcomes[0].Failed())
			assert.False(t, outcomes[2].Failed())

			snap := p.Status()
			assert.Len(t, snap.Units, size)
			assert.Equal(t, 1, snap.Crashes)
		})
	}
}

func TestEveryTaskCrashingNeverHangs(t *testing.T) {
	const size = 2
	p := New(size, ExecutorFunc(func(ctx context.Context, task domain.ChunkTask) (domain.ChunkResult, error) {
		panic(fmt.Sprintf("chunk %d", task.Index))
	}), logger.Discard())
	defer p.Close()

	outcomes := awaitAll(t, p.SubmitAll(tasksFor("job", 12)))
	for i, o := range outcomes {
		assert.True(t, o.Crashed)
		assert.Contains(t, o.Diagnostic(), fmt.Sprintf("chunk %d", i))
	}

	snap := p.Status()
	assert.Len(t, snap.Units, size)
	assert.Equal(t, 12, snap.Crashes)
	assert.Equal(t, 0, snap.Pending)
}

func TestExecutorErrorIsFailureNotCrash(t *testing.T) {
	p := New(2, ExecutorFunc(func(ctx context.Context, task domain.ChunkTask) (domain.ChunkResult, error) {
		if task.Index == 1 {
			return domain.ChunkResult{}, errors.New("disk full")
		}
		if task.Index == 2 {
			return domain.ChunkResult{JobID: task.JobID, ChunkIndex: task.Index}, nil
		}
		return succeed(task), nil
	}), logger.Discard())
	defer p.Close()

	outcomes := awaitAll(t, p.SubmitAll(tasksFor("job", 3)))
	assert.False(t, outcomes[0].Failed())

	assert.True(t, outcomes[1].Failed())
	assert.False(t, outcomes[1].Crashed)
	assert.Equal(t, "disk full", outcomes[1].Diagnostic())

	assert.True(t, outcomes[2].Failed())
	assert.NotEmpty(t, outcomes[2].Diagnostic())
	assert.Zero(t, p.Status().Crashes)
}

func TestCancelOnlyDropsQueuedTasks(t *testing.T) {
	gate := make(chan struct{})
	var ran sync.Map

	p := New(1, ExecutorFunc(func(ctx context.Context, task domain.ChunkTask) (domain.ChunkResult, error) {
		ran.Store(task.Index, true)
		if task.Index == 0 {
			<-gate
		}
		return succeed(task), nil
	}), logger.Discard())
	defer p.Close()

	handles := p.SubmitAll(tasksFor("job", 3))
	require.Eventually(t, func() bool { return p.Status().Busy == 1 }, time.Second, time.Millisecond)

	assert.False(t, handles[0].Cancel(), "bound task must not be cancellable")
	assert.True(t, handles[1].Cancel())
	assert.False(t, handles[1].Cancel())
	close(gate)

	outcomes := awaitAll(t, handles)
	assert.False(t, outcomes[0].Failed())
	assert.ErrorIs(t, outcomes[1].Err, ErrTaskCancelled)
	assert.False(t, outcomes[2].Failed())

	_, cancelledRan := ran.Load(1)
	assert.False(t, cancelledRan)
}

func TestCloseFailsQueuedTasksAndRejectsNewOnes(t *testing.T) {
	gate := make(chan struct{})
	p := New(1, ExecutorFunc(func(ctx context.Context, task domain.ChunkTask) (domain.ChunkResult, error) {
		<-gate
		return succeed(task), nil
	}), logger.Discard())

	handles := p.SubmitAll(tasksFor("job", 3))
	require.Eventually(t, func() bool { return p.Status().Busy == 1 }, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	require.Eventually(t, func() bool { return p.Status().Closed }, time.Second, time.Millisecond)
	close(gate)
	<-closed

	outcomes := awaitAll(t, handles)
	assert.False(t, outcomes[0].Failed(), "in-flight task completes")
	assert.ErrorIs(t, outcomes[1].Err, ErrPoolClosed)
	assert.ErrorIs(t, outcomes[2].Err, ErrPoolClosed)

	late := p.Submit(domain.ChunkTask{JobID: "late"})
	assert.ErrorIs(t, late.Outcome().Err, ErrPoolClosed)

	p.Close()
}

func TestAwaitAllHonoursContext(t *testing.T) {
	gate := make(chan struct{})
	p := New(1, ExecutorFunc(func(ctx context.Context, task domain.ChunkTask) (domain.ChunkResult, error) {
		<-gate
		return succeed(task), nil
	}), logger.Discard())
	defer p.Close()
	defer close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := AwaitAll(ctx, p.SubmitAll(tasksFor("job", 2)))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefaultSizeUsesCPUCount(t *testing.T) {
	p := New(0, ExecutorFunc(func(ctx context.Context, task domain.ChunkTask) (domain.ChunkResult, error) {
		return succeed(task), nil
	}), logger.Discard())
	defer p.Close()

	assert.Positive(t, p.Size())
	assert.Len(t, p.Status().Units, p.Size())
}
