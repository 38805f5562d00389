// Package bridge attaches schedulers to host VMs. A VM has at most one
// scheduler; the association is process-wide and keyed by the VM pointer.
package bridge

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dop251/goja"

	"github.com/me/coloop/internal/copyvm"
	"github.com/me/coloop/internal/scheduler"
	"github.com/me/coloop/internal/vmhandle"
	"github.com/me/coloop/pkg/model"
)

// Options configures an attached scheduler.
type Options struct {
	Logger *slog.Logger

	// NewCopyVM builds the isolated VM used for value copies. It is only
	// called by SetupRuntime.
	NewCopyVM func() (*goja.Runtime, error)

	Observers    []scheduler.Observer
	RunID        string
	MaxCopyDepth int
}

// Option configures optional attach parameters.
type Option func(*Options)

// WithLogger sets the logger handed to the scheduler.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithCopyVMFactory replaces the default copy VM constructor.
func WithCopyVMFactory(fn func() (*goja.Runtime, error)) Option {
	return func(o *Options) {
		o.NewCopyVM = fn
	}
}

// WithObserver adds a step observer.
func WithObserver(obs scheduler.Observer) Option {
	return func(o *Options) {
		o.Observers = append(o.Observers, obs)
	}
}

// WithRunID fixes the run ID reported in step records.
func WithRunID(id string) Option {
	return func(o *Options) {
		o.RunID = id
	}
}

// WithMaxCopyDepth bounds the nesting depth of copied values.
func WithMaxCopyDepth(n int) Option {
	return func(o *Options) {
		o.MaxCopyDepth = n
	}
}

func defaultCopyVM() (*goja.Runtime, error) {
	return goja.New(), nil
}

func buildOptions(opts []Option) Options {
	o := Options{NewCopyVM: defaultCopyVM}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

var (
	mu       sync.RWMutex
	runtimes = make(map[*goja.Runtime]*scheduler.Scheduler)
)

// SetupRuntime attaches a new scheduler to vm, building its copy VM with the
// configured factory. A factory failure is returned as *model.SetupError.
func SetupRuntime(vm *goja.Runtime, opts ...Option) (*scheduler.Scheduler, error) {
	o := buildOptions(opts)
	if vm == nil {
		return nil, &model.SetupError{Resource: "host vm", Err: errors.New("vm is nil")}
	}
	if IsRuntimeLoaded(vm) {
		return nil, model.ErrAlreadyAttached
	}
	copyVM, err := o.NewCopyVM()
	switch {
	case err != nil:
	case copyVM == nil:
		err = errors.New("factory returned no vm")
	case copyVM == vm:
		err = errors.New("factory returned the host vm")
	}
	if err != nil {
		return nil, &model.SetupError{Resource: "copy vm", Err: err}
	}
	return attach(vm, copyVM, o)
}

// SetupRuntimeWithCopyVM attaches a new scheduler to vm using a pre-built
// copy VM. The scheduler takes ownership of copyVM.
func SetupRuntimeWithCopyVM(vm, copyVM *goja.Runtime, opts ...Option) (*scheduler.Scheduler, error) {
	o := buildOptions(opts)
	switch {
	case vm == nil:
		return nil, &model.SetupError{Resource: "host vm", Err: errors.New("vm is nil")}
	case copyVM == nil:
		return nil, &model.SetupError{Resource: "copy vm", Err: errors.New("vm is nil")}
	case copyVM == vm:
		return nil, &model.SetupError{Resource: "copy vm", Err: errors.New("copy vm must differ from the host vm")}
	}
	return attach(vm, copyVM, o)
}

func attach(vm, copyVM *goja.Runtime, o Options) (*scheduler.Scheduler, error) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := runtimes[vm]; ok {
		return nil, model.ErrAlreadyAttached
	}

	copier := copyvm.New(vmhandle.Own(copyVM))
	copier.SetMaxDepth(o.MaxCopyDepth)
	s := scheduler.New(vmhandle.Borrow(vm), copier, scheduler.Config{
		Logger:    o.Logger,
		RunID:     o.RunID,
		Observers: o.Observers,
	})
	runtimes[vm] = s
	o.Logger.Debug("runtime attached", "component", "bridge", "run_id", s.RunID())
	return s, nil
}

// DestroyRuntime stops and detaches the scheduler attached to vm. The host VM
// stays usable; the copy VM is closed.
func DestroyRuntime(vm *goja.Runtime) model.DestroyStatus {
	mu.Lock()
	s, ok := runtimes[vm]
	delete(runtimes, vm)
	mu.Unlock()
	if !ok {
		return model.DestroyNoRuntime
	}
	s.Close()
	return model.DestroyOK
}

// Lookup returns the scheduler attached to vm.
func Lookup(vm *goja.Runtime) (*scheduler.Scheduler, bool) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := runtimes[vm]
	return s, ok
}

// IsRuntimeLoaded reports whether vm has a scheduler attached.
func IsRuntimeLoaded(vm *goja.Runtime) bool {
	_, ok := Lookup(vm)
	return ok
}

// RunOnce performs one step of the scheduler attached to vm.
func RunOnce(vm *goja.Runtime) (scheduler.StepResult, error) {
	s, ok := Lookup(vm)
	if !ok {
		return nil, fmt.Errorf("run once: %w", model.ErrNoRuntime)
	}
	return s.RunOnce(), nil
}

// HasWork reports whether the scheduler attached to vm has work. It is false
// when nothing is attached.
func HasWork(vm *goja.Runtime) bool {
	s, ok := Lookup(vm)
	return ok && s.HasWork()
}

// HasContinuations is false when nothing is attached.
func HasContinuations(vm *goja.Runtime) bool {
	s, ok := Lookup(vm)
	return ok && s.HasContinuations()
}

// HasThreads is false when nothing is attached.
func HasThreads(vm *goja.Runtime) bool {
	s, ok := Lookup(vm)
	return ok && s.HasThreads()
}
