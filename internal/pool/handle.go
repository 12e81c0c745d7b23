package pool

import (
	"sync"

	"github.com/timmy/csvgen/internal/domain"
)

// Outcome is the result of one submitted task. Exactly one Outcome is produced per task.
type Outcome struct {
	Task    domain.ChunkTask
	Result  domain.ChunkResult
	Err     error
	Crashed bool
	UnitID  int // -1 when the task never reached a unit
}

// Failed reports whether the task did not produce a usable result.
func (o Outcome) Failed() bool {
	return o.Err != nil || !o.Result.Success
}

// Diagnostic returns the failure message, or "" on success.
func (o Outcome) Diagnostic() string {
	if !o.Failed() {
		return ""
	}
	if o.Result.Error != "" {
		return o.Result.Error
	}
	if o.Err != nil {
		return o.Err.Error()
	}
	return "chunk produced no result"
}

// Handle is the pending result of a submitted task.
type Handle struct {
	pool *Pool
	task domain.ChunkTask

	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

func newHandle(p *Pool, task domain.ChunkTask) *Handle {
	return &Handle{pool: p, task: task, done: make(chan struct{})}
}

// Task returns the submitted task.
func (h *Handle) Task() domain.ChunkTask {
	return h.task
}

// Done is closed once the outcome is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Outcome blocks until the task has an outcome and returns it.
func (h *Handle) Outcome() Outcome {
	<-h.done
	return h.outcome
}

// Cancel removes the task from the queue if it has not been bound to a unit yet.
// It reports whether the task was cancelled.
func (h *Handle) Cancel() bool {
	return h.pool.cancel(h)
}

func (h *Handle) resolve(o Outcome) {
	h.once.Do(func() {
		h.outcome = o
		close(h.done)
	})
}
