// Package scheduler implements the single-step cooperative scheduler that
// drives script threads on an embedded VM. The host calls RunOnce repeatedly;
// each call drains pending continuations and resumes at most one thread.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/me/coloop/internal/copyvm"
	"github.com/me/coloop/internal/vmhandle"
	"github.com/me/coloop/pkg/model"
)

// Config holds scheduler configuration.
type Config struct {
	Logger    *slog.Logger
	RunID     string
	Observers []Observer
}

// Stats counts what the scheduler has done since it was created.
type Stats struct {
	Steps              uint64 `json:"steps"`
	Successes          uint64 `json:"successes"`
	Yields             uint64 `json:"yields"`
	Failures           uint64 `json:"failures"`
	Unsupported        uint64 `json:"unsupported"`
	Continuations      uint64 `json:"continuations"`
	ContinuationPanics uint64 `json:"continuation_panics"`
}

// Scheduler owns the continuation and ready queues for one host VM. RunOnce
// and every script-facing method must be called from the goroutine that owns
// the VM; Defer, Schedule, Track and the idle checks are safe from any goroutine.
type Scheduler struct {
	vm        vmhandle.Borrowed
	copier    *copyvm.Copier
	logger    *slog.Logger
	runID     string
	observers []Observer

	continuations ContinuationQueue
	ready         ReadyQueue
	pending       atomic.Int64
	stopped       atomic.Bool
	running       atomic.Bool
	current       atomic.Pointer[Thread]
	wake          chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	seq        atomic.Uint64
	steps      atomic.Uint64
	successes  atomic.Uint64
	yields     atomic.Uint64
	failures   atomic.Uint64
	unsup      atomic.Uint64
	conts      atomic.Uint64
	contPanics atomic.Uint64

	closeOnce sync.Once
}

// New creates a scheduler for vm. The scheduler takes ownership of copier and
// closes it in Close; copier may be nil, in which case step results are
// exported straight from the host VM.
func New(vm vmhandle.Borrowed, copier *copyvm.Copier, cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	runID := cfg.RunID
	if runID == "" {
		runID = "run_" + uuid.New().String()[:8]
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		vm:        vm,
		copier:    copier,
		logger:    logger.With("component", "scheduler", "run_id", runID),
		runID:     runID,
		observers: append([]Observer(nil), cfg.Observers...),
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// RunOnce performs one scheduler step. It never blocks waiting for work.
func (s *Scheduler) RunOnce() StepResult {
	if s.stopped.Load() {
		return Empty{}
	}
	if !s.running.CompareAndSwap(false, true) {
		return Failure{Err: &model.ProtocolError{Op: "run once", Detail: "a step is already in progress on this scheduler"}}
	}
	defer s.running.Store(false)

	// Threads queued by the continuations below wait for the next call.
	cutoff := s.ready.mark()
	s.runContinuations()
	if s.stopped.Load() {
		return Empty{}
	}

	task, ok := s.ready.popBefore(cutoff)
	if !ok {
		return Empty{}
	}

	start := time.Now()
	res := s.resume(task)
	s.record(res, start)
	return res
}

func (s *Scheduler) runContinuations() {
	for _, fn := range s.continuations.take() {
		s.runContinuation(fn)
	}
}

func (s *Scheduler) runContinuation(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.contPanics.Add(1)
			s.logger.Error("continuation panicked", "panic", r)
		}
	}()
	s.conts.Add(1)
	fn()
}

func (s *Scheduler) resume(t ThreadTask) StepResult {
	th := t.Thread
	if err := th.transition(model.ThreadStateQueued, model.ThreadStateRunning); err != nil {
		return Failure{Err: err}
	}

	var (
		fn   goja.Callable
		args []goja.Value
	)
	if t.Success {
		vals, err := th.popArgs(t.ArgumentCount)
		if err != nil {
			th.fail(&ScriptError{ThreadID: th.ID, Message: err.Error(), Trace: "\tat " + th.String()})
			return Failure{Err: err}
		}
		fn, args = th.next, s.packArgs(vals)
	} else {
		v := t.Error
		if v == nil {
			v = th.popThrown()
		}
		fn, args = th.throw, []goja.Value{v}
	}

	s.current.Store(th)
	out, err := s.call(th, fn, args)
	s.current.Store(nil)

	if err != nil {
		se := newScriptError(th, err)
		th.fail(se)
		return Failure{Thread: th, Err: se}
	}

	res, ok := out.(*goja.Object)
	if !ok {
		reason := fmt.Sprintf("thread %s produced %s instead of an iterator result", th, typeName(out))
		th.fail(&ScriptError{ThreadID: th.ID, Message: reason, Trace: "\tat " + th.String()})
		return Unsupported{Reason: reason}
	}
	if done := res.Get("done"); done == nil || !done.ToBoolean() {
		if err := th.transition(model.ThreadStateRunning, model.ThreadStateSuspended); err != nil {
			return Unsupported{Reason: err.Error()}
		}
		return Yielded{Thread: th}
	}

	value := res.Get("value")
	if value == nil {
		value = goja.Undefined()
	}
	th.finish(value)
	if t.Continuation != nil {
		s.runContinuation(t.Continuation)
	}
	return Success{Thread: th}
}

// packArgs shapes popped arguments for next(): none, the single value, or an
// array of all of them.
func (s *Scheduler) packArgs(vals []goja.Value) []goja.Value {
	switch len(vals) {
	case 0, 1:
		return vals
	}
	items := make([]any, len(vals))
	for i, v := range vals {
		items[i] = v
	}
	return []goja.Value{s.vm.Runtime().NewArray(items...)}
}

func (s *Scheduler) call(th *Thread, fn goja.Callable, args []goja.Value) (out goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while resuming %s: %v", th, r)
		}
	}()
	return fn(th.gen, args...)
}

func (s *Scheduler) record(res StepResult, start time.Time) {
	s.steps.Add(1)
	rec := model.StepRecord{
		RunID:     s.runID,
		Seq:       s.seq.Add(1),
		Status:    res.Status(),
		Duration:  time.Since(start),
		CreatedAt: time.Now().UTC(),
	}
	rec.StatusName = rec.Status.String()

	var th *Thread
	switch r := res.(type) {
	case Success:
		s.successes.Add(1)
		th = r.Thread
		rec.Result = s.encodeResult(r.Thread.Result())
		s.logger.Debug("thread finished", "thread", th.ID)
	case Yielded:
		s.yields.Add(1)
		th = r.Thread
	case Failure:
		s.failures.Add(1)
		th = r.Thread
		rec.Message = r.Err.Error()
		if se, ok := r.Err.(*ScriptError); ok {
			rec.Message, rec.Trace = se.Message, se.Trace
		}
		s.logger.Warn("step failed", "error", rec.Message)
	case Unsupported:
		s.unsup.Add(1)
		rec.Message = r.Reason
		s.logger.Warn("unsupported step result", "reason", r.Reason)
	}
	if th != nil {
		rec.ThreadID, rec.ThreadName = th.ID, th.Name
	}

	for _, o := range s.observers {
		s.notify(o, rec)
	}
}

func (s *Scheduler) notify(o Observer, rec model.StepRecord) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("observer panicked", "panic", r, "seq", rec.Seq)
		}
	}()
	o.ObserveStep(rec)
}

func (s *Scheduler) encodeResult(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return ""
	}
	var x any
	if s.copier != nil {
		var err error
		if x, err = s.copier.Export(v); err != nil {
			return fmt.Sprintf("%q", safeString(v))
		}
	} else {
		x = v.Export()
	}
	b, err := json.Marshal(x)
	if err != nil {
		return fmt.Sprintf("%q", safeString(v))
	}
	return string(b)
}

// HasContinuations reports whether completion callbacks are waiting.
func (s *Scheduler) HasContinuations() bool {
	return s.continuations.Len() > 0
}

// HasThreads reports whether resumable threads are queued.
func (s *Scheduler) HasThreads() bool {
	return s.ready.Len() > 0
}

// Pending returns the number of outstanding tokens.
func (s *Scheduler) Pending() int64 {
	return s.pending.Load()
}

// HasWork reports whether RunOnce has anything to do now or will once an
// outstanding operation completes.
func (s *Scheduler) HasWork() bool {
	return s.HasContinuations() || s.HasThreads() || s.Pending() > 0
}

// Defer queues fn to run on the scheduler goroutine at the start of the next
// step. It is safe to call from any goroutine.
func (s *Scheduler) Defer(fn func()) error {
	if s.stopped.Load() {
		return model.ErrStopped
	}
	s.continuations.Push(fn)
	s.Wake()
	return nil
}

// Schedule queues t on the ready queue.
func (s *Scheduler) Schedule(t ThreadTask) error {
	if s.stopped.Load() {
		return model.ErrStopped
	}
	if err := s.ready.Push(t); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	s.Wake()
	return nil
}

// Spawn calls the generator function fn with args and queues the resulting
// thread for its first resume. It must run on the scheduler goroutine.
func (s *Scheduler) Spawn(fn goja.Value, name string, args ...goja.Value) (*Thread, error) {
	if s.stopped.Load() {
		return nil, model.ErrStopped
	}
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, &model.ProtocolError{Op: "spawn", Detail: fmt.Sprintf("%s is not callable", typeName(fn))}
	}
	gen, err := call(goja.Undefined(), args...)
	if err != nil {
		return nil, err
	}
	th, err := NewThread(gen, name)
	if err != nil {
		return nil, err
	}
	if err := s.Schedule(Resume(th, 0)); err != nil {
		return nil, err
	}
	return th, nil
}

// Wake signals a host loop blocked in WakeC. It never blocks.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// WakeC is signalled whenever work is queued or a token is released.
func (s *Scheduler) WakeC() <-chan struct{} {
	return s.wake
}

// Stop sets the stop flag and cancels Context. A thread already running is
// not interrupted; no further steps or work are accepted.
func (s *Scheduler) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		s.logger.Info("scheduler stopping")
	}
	s.cancel()
	s.Wake()
}

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool {
	return s.stopped.Load()
}

// Context is cancelled by Stop. Long-running producers select on it.
func (s *Scheduler) Context() context.Context {
	return s.ctx
}

// Close stops the scheduler, drops any queued work and closes the copy VM.
// Threads whose resume is dropped go back to SUSPENDED, so another scheduler
// on the same VM may schedule them. The host VM is left untouched. Close is
// idempotent.
func (s *Scheduler) Close() error {
	s.Stop()
	var err error
	s.closeOnce.Do(func() {
		tasks := s.ready.drain()
		for _, t := range tasks {
			argc := 0
			if t.Success {
				argc = t.ArgumentCount
			}
			t.Thread.unqueue(argc)
		}
		dropped := len(tasks) + len(s.continuations.take())
		if dropped > 0 {
			s.logger.Info("dropped queued work on close", "count", dropped)
		}
		if s.copier != nil {
			err = s.copier.Close()
		}
	})
	return err
}

// Current returns the thread being resumed, or nil between steps.
func (s *Scheduler) Current() *Thread {
	return s.current.Load()
}

// VM returns the host VM.
func (s *Scheduler) VM() *goja.Runtime {
	return s.vm.Runtime()
}

// Copier returns the scheduler's value copier, which may be nil.
func (s *Scheduler) Copier() *copyvm.Copier {
	return s.copier
}

// RunID identifies this scheduler's run in step records.
func (s *Scheduler) RunID() string {
	return s.runID
}

// Stats returns a snapshot of the step counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Steps:              s.steps.Load(),
		Successes:          s.successes.Load(),
		Yields:             s.yields.Load(),
		Failures:           s.failures.Load(),
		Unsupported:        s.unsup.Load(),
		Continuations:      s.conts.Load(),
		ContinuationPanics: s.contPanics.Load(),
	}
}
