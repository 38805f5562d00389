package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/me/coloop/pkg/model"
)

// StepResult is the outcome of one RunOnce call. It is one of Empty,
// Success, Yielded, Failure or Unsupported.
type StepResult interface {
	Status() model.StepStatus
	stepResult()
}

// Empty means nothing was runnable this step.
type Empty struct{}

// Success means Thread ran to completion without error.
type Success struct{ Thread *Thread }

// Yielded means Thread suspended again and is waiting on a producer.
type Yielded struct{ Thread *Thread }

// Failure means the step failed. Thread is nil when the failure is
// structural (reentrant call, protocol violation); otherwise Err is a
// *ScriptError raised by Thread.
type Failure struct {
	Thread *Thread
	Err    error
}

// Unsupported is a defensive fallback for outcomes the scheduler cannot
// classify.
type Unsupported struct{ Reason string }

func (Empty) Status() model.StepStatus       { return model.StepEmpty }
func (Success) Status() model.StepStatus     { return model.StepSuccess }
func (Yielded) Status() model.StepStatus     { return model.StepYielded }
func (Failure) Status() model.StepStatus     { return model.StepError }
func (Unsupported) Status() model.StepStatus { return model.StepUnsupported }

func (Empty) stepResult()       {}
func (Success) stepResult()     {}
func (Yielded) stepResult()     {}
func (Failure) stepResult()     {}
func (Unsupported) stepResult() {}

// ScriptError is an unhandled error raised by a script thread. Value is the
// live thrown value so callers can rethrow it without losing structure;
// Message and Trace are always set.
type ScriptError struct {
	ThreadID string
	Value    goja.Value
	Message  string
	Trace    string
}

func (e *ScriptError) Error() string {
	if e.Trace == "" {
		return e.Message
	}
	return e.Message + "\nstacktrace:\n" + e.Trace
}

// newScriptError classifies an error returned by a generator call.
func newScriptError(th *Thread, err error) *ScriptError {
	se := &ScriptError{ThreadID: th.ID}

	var exc *goja.Exception
	var intr *goja.InterruptedError
	switch {
	case errors.As(err, &exc):
		se.Value = exc.Value()
		se.Message = safeString(exc.Value())
		se.Trace = traceOf(exc, se.Message)
	case errors.As(err, &intr):
		se.Value = nil
		se.Message = "interrupted: " + fmt.Sprint(intr.Value())
		se.Trace = intr.String()
	default:
		se.Message = err.Error()
	}
	if se.Trace == "" {
		se.Trace = "\tat " + th.String()
	}
	return se
}

// traceOf returns the stack frames of exc without the leading value line.
func traceOf(exc *goja.Exception, msg string) (trace string) {
	defer func() {
		if recover() != nil {
			trace = ""
		}
	}()
	full := exc.String()
	full = strings.TrimPrefix(full, msg)
	return strings.Trim(full, "\n")
}

// safeString renders v without letting a throwing toString escape.
func safeString(v goja.Value) (s string) {
	if v == nil {
		return "undefined"
	}
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("[%s without string form]", typeName(v))
		}
	}()
	return v.String()
}
