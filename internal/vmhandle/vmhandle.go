// Package vmhandle distinguishes VMs the scheduler merely uses from VMs it
// owns and must tear down.
package vmhandle

import (
	"errors"
	"sync"

	"github.com/dop251/goja"
)

// ErrClosed is returned when an owned VM is used after Close.
var ErrClosed = errors.New("vm closed")

// Borrowed refers to a VM owned by the host. It has no close operation: the
// holder can drop it but never destroy the VM behind it.
type Borrowed struct {
	vm *goja.Runtime
}

// Borrow wraps a host-owned VM.
func Borrow(vm *goja.Runtime) Borrowed {
	return Borrowed{vm: vm}
}

// Runtime returns the borrowed VM, or nil for the zero Borrowed.
func (b Borrowed) Runtime() *goja.Runtime {
	return b.vm
}

// Valid reports whether b refers to a VM.
func (b Borrowed) Valid() bool {
	return b.vm != nil
}

// Owned is a VM created for and owned by its holder.
type Owned struct {
	mu sync.Mutex
	vm *goja.Runtime
}

// Own takes ownership of vm.
func Own(vm *goja.Runtime) *Owned {
	return &Owned{vm: vm}
}

// Runtime returns the owned VM, or ErrClosed after Close.
func (o *Owned) Runtime() (*goja.Runtime, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.vm == nil {
		return nil, ErrClosed
	}
	return o.vm, nil
}

// Closed reports whether Close has been called.
func (o *Owned) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.vm == nil
}

// Close interrupts anything still running on the VM and drops the reference
// so the VM can be collected. Calling Close more than once is a no-op.
func (o *Owned) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.vm == nil {
		return nil
	}
	o.vm.Interrupt(ErrClosed)
	o.vm = nil
	return nil
}
