// Package tasklib installs the global task object that script threads use
// to spawn threads, sleep and hand work to Go workers. Every primitive
// completes by queueing a continuation on the scheduler; nothing here
// touches the VM off the scheduler goroutine.
package tasklib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/me/coloop/internal/scheduler"
	"github.com/me/coloop/pkg/model"
)

// GlobalName is the name of the global object installed by Open.
const GlobalName = "task"

// MaxWaitMillis is the longest wait a time.Duration can express, about 292
// years. Longer waits, Infinity included, are cut to it.
const MaxWaitMillis = math.MaxInt64 / int64(time.Millisecond)

// clampMillis bounds ms to [0, MaxWaitMillis].
func clampMillis(ms int64) int64 {
	switch {
	case ms < 0:
		return 0
	case ms > MaxWaitMillis:
		return MaxWaitMillis
	}
	return ms
}

// Worker runs an offloaded job on its own goroutine. input is a deep copy of
// the script value; the returned value is copied back into the VM.
type Worker func(ctx context.Context, input any) (any, error)

// Config holds task library configuration.
type Config struct {
	// Concurrency bounds running offload jobs. Zero means unlimited.
	Concurrency int

	Workers map[string]Worker
}

// Library is the Go side of the task object.
type Library struct {
	sched  *scheduler.Scheduler
	vm     *goja.Runtime
	logger *slog.Logger
	gate   *gate
	wg     sync.WaitGroup

	mu      sync.RWMutex
	workers map[string]Worker
}

// Open installs the task object on the scheduler's VM.
func Open(s *scheduler.Scheduler, cfg Config, logger *slog.Logger) (*Library, error) {
	l := &Library{
		sched:   s,
		vm:      s.VM(),
		logger:  logger.With("component", "tasklib"),
		gate:    newGate(cfg.Concurrency),
		workers: make(map[string]Worker, len(cfg.Workers)),
	}
	for name, w := range cfg.Workers {
		l.workers[name] = w
	}

	obj := l.vm.NewObject()
	fns := map[string]func(goja.FunctionCall) goja.Value{
		"spawn":   l.spawn,
		"defer":   l.deferCall,
		"requeue": l.requeue,
		"wait":    l.wait,
		"offload": l.offload,
		"current": l.current,
	}
	for name, fn := range fns {
		if err := obj.Set(name, fn); err != nil {
			return nil, fmt.Errorf("install task.%s: %w", name, err)
		}
	}
	if err := l.vm.Set(GlobalName, obj); err != nil {
		return nil, fmt.Errorf("install task: %w", err)
	}
	return l, nil
}

// Register adds or replaces a named worker.
func (l *Library) Register(name string, w Worker) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.workers[name] = w
	l.logger.Debug("worker registered", "name", name)
}

func (l *Library) worker(name string) (Worker, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	w, ok := l.workers[name]
	return w, ok
}

// Wait blocks until every timer and offload goroutine has exited. Call it
// after stopping the scheduler.
func (l *Library) Wait() {
	l.wg.Wait()
}

// OffloadStats reports how many offload jobs are running, waiting for a
// slot and finished. It is safe to call from any goroutine.
func (l *Library) OffloadStats() OffloadStats {
	return l.gate.stats()
}

func (l *Library) throw(err error) {
	panic(l.vm.NewGoError(err))
}

// running returns the calling thread or throws.
func (l *Library) running(op string) *scheduler.Thread {
	th := l.sched.Current()
	if th == nil {
		panic(l.vm.NewTypeError("task.%s must be called from a running thread", op))
	}
	return th
}

// resumeLater queues a continuation that reschedules th. Producer goroutines
// call it; a stopped scheduler silently drops the work.
func (l *Library) resumeLater(th *scheduler.Thread, fn func() scheduler.ThreadTask) {
	err := l.sched.Defer(func() {
		if err := l.sched.Schedule(fn()); err != nil {
			l.logger.Error("reschedule thread", "thread", th.ID, "error", err)
		}
	})
	if err != nil && !errors.Is(err, model.ErrStopped) {
		l.logger.Error("queue continuation", "thread", th.ID, "error", err)
	}
}

// spawn(fn, ...args) starts a new thread from a generator function.
func (l *Library) spawn(call goja.FunctionCall) goja.Value {
	fn := call.Argument(0)
	name := ""
	if obj, ok := fn.(*goja.Object); ok {
		if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
			name = n.String()
		}
	}
	var args []goja.Value
	if len(call.Arguments) > 1 {
		args = call.Arguments[1:]
	}
	th, err := l.sched.Spawn(fn, name, args...)
	if err != nil {
		var exc *goja.Exception
		if errors.As(err, &exc) {
			panic(exc)
		}
		l.throw(err)
	}
	return th.Value()
}

// defer(fn, ...args) calls fn at the start of the next step.
func (l *Library) deferCall(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(l.vm.NewTypeError("task.defer expects a function"))
	}
	var args []goja.Value
	if len(call.Arguments) > 1 {
		args = append(args, call.Arguments[1:]...)
	}
	err := l.sched.Defer(func() {
		if _, err := fn(goja.Undefined(), args...); err != nil {
			l.logger.Error("deferred callback failed", "error", err)
		}
	})
	if err != nil {
		l.throw(err)
	}
	return goja.Undefined()
}

// requeue() reschedules the calling thread for the next step. The thread
// must yield right after.
func (l *Library) requeue(goja.FunctionCall) goja.Value {
	th := l.running("requeue")
	if err := l.sched.Defer(func() {
		if err := l.sched.Schedule(scheduler.Resume(th, 0)); err != nil {
			l.logger.Error("requeue thread", "thread", th.ID, "error", err)
		}
	}); err != nil {
		l.throw(err)
	}
	return goja.Undefined()
}

// wait(ms) resumes the calling thread with the elapsed milliseconds once ms
// have passed.
func (l *Library) wait(call goja.FunctionCall) goja.Value {
	th := l.running("wait")
	ms := clampMillis(call.Argument(0).ToInteger())

	ctx := l.sched.Context()
	tok := l.sched.Track()
	start := time.Now()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer tok.Release()

		timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
		elapsed := time.Since(start).Milliseconds()
		l.resumeLater(th, func() scheduler.ThreadTask {
			th.Push(l.vm.ToValue(elapsed))
			return scheduler.Resume(th, 1)
		})
	}()
	return goja.Undefined()
}

// offload(name, input) runs the named worker on its own goroutine and
// resumes the calling thread with its result, or throws its error into it.
func (l *Library) offload(call goja.FunctionCall) goja.Value {
	th := l.running("offload")
	name := call.Argument(0).String()
	w, ok := l.worker(name)
	if !ok {
		panic(l.vm.NewTypeError("unknown worker %q", name))
	}

	input, err := l.export(call.Argument(1))
	if err != nil {
		l.throw(fmt.Errorf("offload %s: %w", name, err))
	}

	ctx := l.sched.Context()
	tok := l.sched.Track()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer tok.Release()

		if !l.gate.enter(ctx) {
			return
		}
		start := time.Now()
		out, err := runWorker(ctx, w, input)
		l.gate.leave(err)
		l.logger.Debug("offload finished", "worker", name, "thread", th.ID, "duration", time.Since(start), "error", err)

		l.resumeLater(th, func() scheduler.ThreadTask {
			if err != nil {
				return scheduler.ResumeError(th, l.vm.NewGoError(fmt.Errorf("%s: %w", name, err)))
			}
			v, err := l.importValue(out)
			if err != nil {
				return scheduler.ResumeError(th, l.vm.NewGoError(fmt.Errorf("%s result: %w", name, err)))
			}
			th.Push(v)
			return scheduler.Resume(th, 1)
		})
	}()
	return goja.Undefined()
}

func runWorker(ctx context.Context, w Worker, input any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panicked: %v", r)
		}
	}()
	return w(ctx, input)
}

func (l *Library) export(v goja.Value) (any, error) {
	if c := l.sched.Copier(); c != nil {
		return c.Export(v)
	}
	return v.Export(), nil
}

func (l *Library) importValue(x any) (goja.Value, error) {
	if c := l.sched.Copier(); c != nil {
		return c.Import(x, l.vm)
	}
	return l.vm.ToValue(x), nil
}

// current() describes the calling thread, or returns null outside one.
func (l *Library) current(goja.FunctionCall) goja.Value {
	th := l.sched.Current()
	if th == nil {
		return goja.Null()
	}
	obj := l.vm.NewObject()
	obj.Set("id", th.ID)
	obj.Set("name", th.Name)
	return obj
}
