package bridge

import (
	"errors"
	"strings"

	"github.com/dop251/goja"

	"github.com/me/coloop/internal/scheduler"
	"github.com/me/coloop/pkg/model"
)

// GlobalName is the name of the global object installed by Open.
const GlobalName = "scheduler"

var statusCodes = []model.StepStatus{
	model.StepMissingRuntime,
	model.StepError,
	model.StepSuccess,
	model.StepEmpty,
	model.StepUnsupported,
	model.StepYielded,
}

// Open installs the script-facing scheduler object on vm. The object looks
// the scheduler up on every call, so it keeps working across detach and
// re-attach.
func Open(vm *goja.Runtime) error {
	obj := vm.NewObject()

	status := vm.NewObject()
	for _, st := range statusCodes {
		if err := status.Set(strings.ToUpper(st.String()), int(st)); err != nil {
			return err
		}
	}

	set := map[string]any{
		"status": status,
		"runOnce": func(goja.FunctionCall) goja.Value {
			return runOnceScript(vm)
		},
		"hasWork":          func() bool { return HasWork(vm) },
		"hasContinuations": func() bool { return HasContinuations(vm) },
		"hasThreads":       func() bool { return HasThreads(vm) },
		"isLoaded":         func() bool { return IsRuntimeLoaded(vm) },
	}
	for name, v := range set {
		if err := obj.Set(name, v); err != nil {
			return err
		}
	}
	return vm.Set(GlobalName, obj)
}

// runOnceScript translates a step result for script callers: script errors
// are rethrown with their original value, anything the caller cannot act on
// becomes a host error.
func runOnceScript(vm *goja.Runtime) goja.Value {
	res, err := RunOnce(vm)
	if err != nil {
		panic(vm.NewGoError(err))
	}

	var th *scheduler.Thread
	switch r := res.(type) {
	case scheduler.Empty:
	case scheduler.Success:
		th = r.Thread
	case scheduler.Yielded:
		th = r.Thread
	case scheduler.Failure:
		var se *scheduler.ScriptError
		if r.Thread != nil && errors.As(r.Err, &se) && se.Value != nil {
			panic(se.Value)
		}
		panic(vm.NewGoError(r.Err))
	case scheduler.Unsupported:
		panic(vm.NewGoError(errors.New("unsupported step result: " + r.Reason)))
	}

	out := vm.NewObject()
	out.Set("status", int(res.Status()))
	if th != nil {
		out.Set("thread", th.Value())
	} else {
		out.Set("thread", goja.Null())
	}
	return out
}
