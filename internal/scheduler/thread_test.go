package scheduler

import (
	"errors"
	"testing"

	"github.com/dop251/goja"

	"github.com/me/coloop/pkg/model"
)

func TestNewThread_Rejects(t *testing.T) {
	vm := goja.New()

	tests := []struct {
		name string
		expr string
	}{
		{"number", "42"},
		{"plain object", "({})"},
		{"no throw", "({next() {}})"},
		{"next not callable", "({next: 1, throw() {}})"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := vm.RunString(tt.expr)
			if err != nil {
				t.Fatal(err)
			}
			var pe *model.ProtocolError
			if _, err := NewThread(v, ""); !errors.As(err, &pe) {
				t.Errorf("NewThread(%s) = %v, want *model.ProtocolError", tt.expr, err)
			}
		})
	}
}

func TestThread_PopArgs(t *testing.T) {
	vm := goja.New()
	v, _ := vm.RunString(`(function* () {})()`)
	th, err := NewThread(v, "args")
	if err != nil {
		t.Fatal(err)
	}
	if th.State() != model.ThreadStateSuspended {
		t.Fatalf("initial state = %s", th.State())
	}

	th.Push(vm.ToValue(1), vm.ToValue(2), vm.ToValue(3))
	got, err := th.popArgs(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ToInteger() != 2 || got[1].ToInteger() != 3 {
		t.Errorf("popArgs(2) = %v, want [2 3]", got)
	}
	if _, err := th.popArgs(2); err == nil {
		t.Error("expected underflow error")
	}
	if v := th.popThrown(); v.ToInteger() != 1 {
		t.Errorf("popThrown = %v, want 1", v)
	}
	if v := th.popThrown(); !goja.IsUndefined(v) {
		t.Errorf("popThrown on empty stack = %v, want undefined", v)
	}
}

func TestThread_Transitions(t *testing.T) {
	vm := goja.New()
	v, _ := vm.RunString(`(function* () {})()`)
	th, _ := NewThread(v, "")

	if err := th.markQueued(); err != nil {
		t.Fatal(err)
	}
	if err := th.markQueued(); !errors.Is(err, model.ErrThreadQueued) {
		t.Errorf("second markQueued = %v, want ErrThreadQueued", err)
	}
	if err := th.transition(model.ThreadStateQueued, model.ThreadStateDone); err == nil {
		t.Error("QUEUED -> DONE should be rejected")
	}
	if err := th.transition(model.ThreadStateQueued, model.ThreadStateRunning); err != nil {
		t.Fatal(err)
	}
	if err := th.markQueued(); !errors.Is(err, model.ErrThreadQueued) {
		t.Errorf("markQueued while running = %v, want ErrThreadQueued", err)
	}
	th.finish(goja.Undefined())
	var pe *model.ProtocolError
	if err := th.markQueued(); !errors.As(err, &pe) {
		t.Errorf("markQueued on done thread = %v, want *model.ProtocolError", err)
	}
}

func TestStepResult_Status(t *testing.T) {
	tests := []struct {
		res  StepResult
		want model.StepStatus
	}{
		{Empty{}, model.StepEmpty},
		{Success{}, model.StepSuccess},
		{Yielded{}, model.StepYielded},
		{Failure{}, model.StepError},
		{Unsupported{}, model.StepUnsupported},
	}
	for _, tt := range tests {
		if got := tt.res.Status(); got != tt.want {
			t.Errorf("%T.Status() = %v, want %v", tt.res, got, tt.want)
		}
	}
}

func TestReadyQueue_Cutoff(t *testing.T) {
	vm := goja.New()
	var q ReadyQueue

	newTh := func() *Thread {
		v, _ := vm.RunString(`(function* () {})()`)
		th, _ := NewThread(v, "")
		return th
	}

	if err := q.Push(ThreadTask{}); err == nil {
		t.Error("Push without a thread should fail")
	}

	q.Push(Resume(newTh(), 0))
	cutoff := q.mark()
	q.Push(Resume(newTh(), 0))

	if _, ok := q.popBefore(cutoff); !ok {
		t.Fatal("task queued before the cutoff was not returned")
	}
	if _, ok := q.popBefore(cutoff); ok {
		t.Fatal("task queued after the cutoff was returned")
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}
	if got := len(q.drain()); got != 1 || q.Len() != 0 {
		t.Errorf("drain returned %d, Len after = %d", got, q.Len())
	}
}
