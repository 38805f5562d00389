package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/me/coloop/pkg/model"
)

// Thread is the owning handle of one script thread (a generator object). The
// handle keeps the generator reachable while it is suspended or queued and
// tracks whether a resume is outstanding, so a thread can never sit in the
// ready queue twice.
type Thread struct {
	ID   string
	Name string

	gen   *goja.Object
	next  goja.Callable
	throw goja.Callable
	state atomic.Value // model.ThreadState

	mu     sync.Mutex
	args   []goja.Value
	result goja.Value
	err    *ScriptError
}

// NewThread wraps a generator object. Values without callable next and throw
// methods are rejected with a *model.ProtocolError.
func NewThread(v goja.Value, name string) (*Thread, error) {
	gen, ok := v.(*goja.Object)
	if !ok {
		return nil, &model.ProtocolError{Op: "new thread", Detail: fmt.Sprintf("%s is not a thread", typeName(v))}
	}
	next, ok := goja.AssertFunction(gen.Get("next"))
	if !ok {
		return nil, &model.ProtocolError{Op: "new thread", Detail: "object has no next method"}
	}
	throw, ok := goja.AssertFunction(gen.Get("throw"))
	if !ok {
		return nil, &model.ProtocolError{Op: "new thread", Detail: "object has no throw method"}
	}

	th := &Thread{
		ID:    "th_" + uuid.New().String(),
		Name:  name,
		gen:   gen,
		next:  next,
		throw: throw,
	}
	th.state.Store(model.ThreadStateSuspended)
	return th, nil
}

// Value returns the generator object backing the thread.
func (th *Thread) Value() *goja.Object {
	return th.gen
}

// State returns the current lifecycle state.
func (th *Thread) State() model.ThreadState {
	return th.state.Load().(model.ThreadState)
}

// Push places resume arguments on the thread's argument stack. A
// ThreadTask with ArgumentCount n consumes the top n values.
func (th *Thread) Push(vals ...goja.Value) {
	th.mu.Lock()
	defer th.mu.Unlock()
	th.args = append(th.args, vals...)
}

// Result returns the value the thread returned when it finished.
func (th *Thread) Result() goja.Value {
	th.mu.Lock()
	defer th.mu.Unlock()
	return th.result
}

// Err returns the failure that ended the thread, if any.
func (th *Thread) Err() *ScriptError {
	th.mu.Lock()
	defer th.mu.Unlock()
	return th.err
}

func (th *Thread) String() string {
	if th.Name != "" {
		return th.Name + " (" + th.ID + ")"
	}
	return th.ID
}

func (th *Thread) transition(from, to model.ThreadState) error {
	if !from.CanTransitionTo(to) {
		return &model.InvalidTransitionError{Entity: "thread", ID: th.ID, From: from.String(), To: to.String()}
	}
	if !th.state.CompareAndSwap(from, to) {
		return th.transitionConflict(to)
	}
	return nil
}

func (th *Thread) transitionConflict(to model.ThreadState) error {
	cur := th.State()
	if to == model.ThreadStateQueued && (cur == model.ThreadStateQueued || cur == model.ThreadStateRunning) {
		return fmt.Errorf("%s: %w", th, model.ErrThreadQueued)
	}
	return &model.InvalidTransitionError{Entity: "thread", ID: th.ID, From: cur.String(), To: to.String()}
}

// markQueued claims the single outstanding-resume slot.
func (th *Thread) markQueued() error {
	if cur := th.State(); cur.IsTerminal() {
		return &model.ProtocolError{Op: "schedule", Detail: fmt.Sprintf("thread %s already %s", th, cur)}
	}
	return th.transition(model.ThreadStateSuspended, model.ThreadStateQueued)
}

// unqueue returns a thread whose resume was dropped to SUSPENDED and discards
// the argc arguments pushed for that resume.
func (th *Thread) unqueue(argc int) {
	if th.transition(model.ThreadStateQueued, model.ThreadStateSuspended) != nil {
		return
	}
	th.popArgs(argc)
}

// popArgs removes the top n values from the argument stack.
func (th *Thread) popArgs(n int) ([]goja.Value, error) {
	th.mu.Lock()
	defer th.mu.Unlock()
	if n < 0 || n > len(th.args) {
		return nil, &model.ProtocolError{
			Op:     "resume",
			Detail: fmt.Sprintf("thread %s has %d arguments, %d requested", th, len(th.args), n),
		}
	}
	cut := len(th.args) - n
	out := append([]goja.Value(nil), th.args[cut:]...)
	clear(th.args[cut:])
	th.args = th.args[:cut]
	return out, nil
}

func (th *Thread) finish(result goja.Value) {
	th.mu.Lock()
	th.result = result
	th.mu.Unlock()
	th.state.Store(model.ThreadStateDone)
}

func (th *Thread) fail(err *ScriptError) {
	th.mu.Lock()
	th.err = err
	th.args = nil
	th.mu.Unlock()
	th.state.Store(model.ThreadStateFailed)
}

func typeName(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if t := v.ExportType(); t != nil {
		return t.String()
	}
	return "value"
}

// popThrown removes the top of the argument stack, or returns undefined when
// it is empty.
func (th *Thread) popThrown() goja.Value {
	th.mu.Lock()
	defer th.mu.Unlock()
	if len(th.args) == 0 {
		return goja.Undefined()
	}
	v := th.args[len(th.args)-1]
	th.args[len(th.args)-1] = nil
	th.args = th.args[:len(th.args)-1]
	return v
}
