// Package pool runs chunk tasks on a fixed set of execution units.
//
// The pool owns every piece of scheduling state: the units, the execution slot
// table (unit id to in-flight task), the idle set and the FIFO pending queue.
// All of it is mutated under a single mutex. Units only receive work and report
// back; they never hold their own binding.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/logger"
	"github.com/timmy/csvgen/internal/metrics"
)

var (
	ErrPoolClosed    = errors.New("pool is closed")
	ErrTaskCancelled = errors.New("task cancelled before execution")
)

// Executor runs a single chunk task. A panic inside Execute is treated as a crash
// of the execution unit running it.
type Executor interface {
	Execute(ctx context.Context, task domain.ChunkTask) (domain.ChunkResult, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task domain.ChunkTask) (domain.ChunkResult, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, task domain.ChunkTask) (domain.ChunkResult, error) {
	return f(ctx, task)
}

type unit struct {
	id        int
	work      chan *Handle // capacity 1, only sent to while the unit is idle
	completed int
}

// Pool is a fixed-size set of execution units with a FIFO queue in front.
type Pool struct {
	exec Executor
	size int
	log  *logger.Logger
	ctx  context.Context

	mu         sync.Mutex
	units      map[int]*unit
	slots      map[int]*Handle // execution slot table, nil when the unit is idle
	idle       []int
	pending    []*Handle
	busy       int
	nextUnitID int
	crashes    int
	completed  int
	closed     bool

	wg sync.WaitGroup
}

// New starts a pool of size units. size <= 0 means runtime.NumCPU().
func New(size int, exec Executor, log *logger.Logger) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if log == nil {
		log = logger.GetDefault()
	}
	log = log.WithField(logger.FieldComponent, "pool")

	p := &Pool{
		exec:  exec,
		size:  size,
		log:   log,
		ctx:   log.WithContext(context.Background()),
		units: make(map[int]*unit, size),
		slots: make(map[int]*Handle, size),
	}

	p.mu.Lock()
	for i := 0; i < size; i++ {
		p.addUnitLocked()
	}
	p.mu.Unlock()

	p.log.WithField(logger.FieldCount, size).Info("Execution pool started")
	return p
}

// Size returns the configured number of units.
func (p *Pool) Size() int {
	return p.size
}

// addUnitLocked registers a new idle unit and starts its goroutine.
func (p *Pool) addUnitLocked() *unit {
	u := &unit{id: p.nextUnitID, work: make(chan *Handle, 1)}
	p.nextUnitID++
	p.units[u.id] = u
	p.slots[u.id] = nil
	p.idle = append(p.idle, u.id)

	p.wg.Add(1)
	go p.run(u)
	return u
}

// Submit queues task for execution and returns immediately.
// The task is bound to an idle unit right away when one exists.
func (p *Pool) Submit(task domain.ChunkTask) *Handle {
	h := newHandle(p, task)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		h.resolve(Outcome{Task: task, Result: domain.FailedChunk(task, ErrPoolClosed.Error()), Err: ErrPoolClosed, UnitID: -1})
		return h
	}
	if len(p.idle) > 0 {
		id := p.idle[0]
		p.idle = p.idle[1:]
		p.bindLocked(p.units[id], h)
	} else {
		p.pending = append(p.pending, h)
	}
	p.updateGaugesLocked()
	p.mu.Unlock()

	return h
}

// SubmitAll submits tasks in order.
func (p *Pool) SubmitAll(tasks []domain.ChunkTask) []*Handle {
	handles := make([]*Handle, len(tasks))
	for i, t := range tasks {
		handles[i] = p.Submit(t)
	}
	return handles
}

// AwaitAll blocks until every handle has an outcome. Outcomes are returned in the
// order of handles regardless of completion order. Only the wait is abandoned when
// ctx ends; the tasks keep running.
func AwaitAll(ctx context.Context, handles []*Handle) ([]Outcome, error) {
	outcomes := make([]Outcome, len(handles))
	for i, h := range handles {
		select {
		case <-h.done:
			outcomes[i] = h.outcome
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return outcomes, nil
}

// bindLocked assigns h to the idle unit u.
func (p *Pool) bindLocked(u *unit, h *Handle) {
	p.slots[u.id] = h
	p.busy++
	u.work <- h
}

// nextLocked hands u the next pending task or returns it to the idle set.
func (p *Pool) nextLocked(u *unit) {
	if len(p.pending) > 0 {
		h := p.pending[0]
		p.pending[0] = nil
		p.pending = p.pending[1:]
		p.bindLocked(u, h)
		return
	}
	if p.closed {
		close(u.work)
		return
	}
	p.idle = append(p.idle, u.id)
}

func (p *Pool) run(u *unit) {
	defer p.wg.Done()

	for h := range u.work {
		start := time.Now()
		res, crashed, diag, err := p.execute(h.task)
		metrics.ChunkDurationSeconds.Observe(time.Since(start).Seconds())

		if crashed {
			p.replace(u, h, diag)
			return
		}
		p.finish(u, h, res, err)
	}
}

// execute runs the executor and converts a panic into a crash diagnostic.
// Any recovered panic is a crash, whatever its value.
func (p *Pool) execute(task domain.ChunkTask) (res domain.ChunkResult, crashed bool, diag string, err error) {
	crashed = true
	defer func() {
		if !crashed {
			return
		}
		diag = fmt.Sprint(recover())
		if diag == "" {
			diag = "panic without message"
		}
	}()
	res, err = p.exec.Execute(p.ctx, task)
	crashed = false
	return res, false, "", err
}

// finish records a normal completion: the slot is cleared and the unit rebound
// before the outcome reaches the waiter.
func (p *Pool) finish(u *unit, h *Handle, res domain.ChunkResult, err error) {
	out := Outcome{Task: h.task, Result: res, Err: err, UnitID: u.id}
	if err != nil {
		out.Result = domain.FailedChunk(h.task, err.Error())
	} else if !res.Success {
		if res.Error == "" {
			out.Result.Error = "chunk reported failure without diagnostic"
		}
		out.Err = errors.New(out.Result.Error)
	}

	p.mu.Lock()
	p.slots[u.id] = nil
	p.busy--
	p.completed++
	u.completed++
	p.nextLocked(u)
	p.updateGaugesLocked()
	p.mu.Unlock()

	if out.Failed() {
		metrics.ChunksTotal.WithLabelValues("failure").Inc()
	} else {
		metrics.ChunksTotal.WithLabelValues("success").Inc()
	}
	h.resolve(out)
}

// replace discards the crashed unit u, registers a fresh one in its place and
// fails the task u was running.
func (p *Pool) replace(u *unit, h *Handle, diag string) {
	msg := fmt.Sprintf("execution unit %d crashed: %s", u.id, diag)
	out := Outcome{
		Task:    h.task,
		Result:  domain.FailedChunk(h.task, msg),
		Err:     errors.New(msg),
		Crashed: true,
		UnitID:  u.id,
	}

	p.mu.Lock()
	delete(p.slots, u.id)
	delete(p.units, u.id)
	p.busy--
	p.crashes++
	replacement := -1
	if !p.closed {
		nu := p.addUnitLocked()
		replacement = nu.id
		// addUnitLocked parked the new unit in idle; pull it back if work is waiting.
		if len(p.pending) > 0 {
			p.idle = p.idle[:len(p.idle)-1]
			p.nextLocked(nu)
		}
	}
	p.updateGaugesLocked()
	p.mu.Unlock()

	metrics.UnitCrashesTotal.Inc()
	metrics.ChunksTotal.WithLabelValues("crash").Inc()
	p.log.WithFields(logger.Fields{
		logger.FieldJobID:      h.task.JobID,
		logger.FieldChunkIndex: h.task.Index,
		logger.FieldUnitID:     u.id,
		"replacement_unit_id":  replacement,
	}).Error(msg)

	h.resolve(out)
}

// cancel drops h from the pending queue. Bound tasks are not cancellable.
func (p *Pool) cancel(h *Handle) bool {
	p.mu.Lock()
	idx := -1
	for i, q := range p.pending {
		if q == h {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return false
	}
	p.pending = append(p.pending[:idx], p.pending[idx+1:]...)
	p.updateGaugesLocked()
	p.mu.Unlock()

	metrics.ChunksTotal.WithLabelValues("cancelled").Inc()
	h.resolve(Outcome{
		Task:   h.task,
		Result: domain.FailedChunk(h.task, ErrTaskCancelled.Error()),
		Err:    ErrTaskCancelled,
		UnitID: -1,
	})
	return true
}

// Close stops accepting work, fails every queued task with ErrPoolClosed and
// waits for in-flight tasks to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	dropped := p.pending
	p.pending = nil
	for _, id := range p.idle {
		close(p.units[id].work)
	}
	p.idle = nil
	p.updateGaugesLocked()
	p.mu.Unlock()

	for _, h := range dropped {
		h.resolve(Outcome{Task: h.task, Result: domain.FailedChunk(h.task, ErrPoolClosed.Error()), Err: ErrPoolClosed, UnitID: -1})
	}
	p.wg.Wait()
	p.log.WithField(logger.FieldCount, len(dropped)).Info("Execution pool stopped")
}

func (p *Pool) updateGaugesLocked() {
	metrics.BusyUnits.Set(float64(p.busy))
	metrics.PendingTasks.Set(float64(len(p.pending)))
}

// UnitState is the state of one execution unit in a Snapshot.
type UnitState struct {
	ID         int    `json:"id"`
	Status     string `json:"status"` // idle, working
	JobID      string `json:"jobId,omitempty"`
	ChunkIndex *int   `json:"chunkIndex,omitempty"`
	Completed  int    `json:"tasksCompleted"`
}

// Snapshot is a point-in-time view of the pool.
type Snapshot struct {
	Size      int         `json:"poolSize"`
	Busy      int         `json:"activeWorkers"`
	Idle      int         `json:"idleWorkers"`
	Pending   int         `json:"queueLength"`
	Completed int         `json:"tasksCompleted"`
	Crashes   int         `json:"crashes"`
	Closed    bool        `json:"closed"`
	Units     []UnitState `json:"workers"`
}

// Status returns a consistent snapshot of units, slots and queue.
func (p *Pool) Status() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{
		Size:      p.size,
		Busy:      p.busy,
		Idle:      len(p.idle),
		Pending:   len(p.pending),
		Completed: p.completed,
		Crashes:   p.crashes,
		Closed:    p.closed,
		Units:     make([]UnitState, 0, len(p.units)),
	}
	for id, u := range p.units {
		st := UnitState{ID: id, Status: "idle", Completed: u.completed}
		if h := p.slots[id]; h != nil {
			idx := h.task.Index
			st.Status = "working"
			st.JobID = h.task.JobID
			st.ChunkIndex = &idx
		}
		snap.Units = append(snap.Units, st)
	}
	sort.Slice(snap.Units, func(i, j int) bool { return snap.Units[i].ID < snap.Units[j].ID })
	return snap
}
