package scheduler

import (
	"sync"

	"github.com/me/coloop/pkg/model"
)

// ContinuationQueue holds completion callbacks. Any goroutine may push; only
// the step loop drains.
type ContinuationQueue struct {
	mu    sync.Mutex
	items []func()
}

// Push appends fn.
func (q *ContinuationQueue) Push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()
}

// Len returns the number of queued callbacks.
func (q *ContinuationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// take moves the whole queue out and leaves it empty. The callbacks must be
// run after the lock is released so they can push again.
func (q *ContinuationQueue) take() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// ReadyQueue is the FIFO of threads waiting to be resumed. It is locked so
// producers off the scheduler goroutine may push as well.
type ReadyQueue struct {
	mu    sync.Mutex
	items []ThreadTask
	seq   uint64
}

// Push enqueues t after claiming its thread's outstanding-resume slot.
func (q *ReadyQueue) Push(t ThreadTask) error {
	if t.Thread == nil {
		return &model.ProtocolError{Op: "schedule", Detail: "task has no thread"}
	}
	if err := t.Thread.markQueued(); err != nil {
		return err
	}
	q.mu.Lock()
	q.seq++
	t.seq = q.seq
	q.items = append(q.items, t)
	q.mu.Unlock()
	return nil
}

// Len returns the number of queued tasks.
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// mark returns the sequence number of the most recently queued task.
func (q *ReadyQueue) mark() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq
}

// popBefore removes the front task if it was queued at or before cutoff.
func (q *ReadyQueue) popBefore(cutoff uint64) (ThreadTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 || q.items[0].seq > cutoff {
		return ThreadTask{}, false
	}
	t := q.items[0]
	q.items[0] = ThreadTask{}
	q.items = q.items[1:]
	return t, true
}

// drain removes all queued tasks.
func (q *ReadyQueue) drain() []ThreadTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
