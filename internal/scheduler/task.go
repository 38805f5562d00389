package scheduler

import "github.com/dop251/goja"

// ThreadTask is one scheduled resume of a script thread.
type ThreadTask struct {
	Thread *Thread

	// ArgumentCount is how many values from the top of the thread's
	// argument stack are passed in on the success path.
	ArgumentCount int

	// Success selects next() (true) or throw() (false).
	Success bool

	// Error is thrown into the thread when Success is false. When nil the
	// top of the argument stack is thrown instead, or undefined if empty.
	Error goja.Value

	// Continuation runs after a resume that completes the thread without
	// error. It does not run when the thread yields or fails.
	Continuation func()

	seq uint64
}

// Resume returns a success-path task passing the top n pushed arguments.
func Resume(th *Thread, n int) ThreadTask {
	return ThreadTask{Thread: th, ArgumentCount: n, Success: true}
}

// ResumeError returns an error-path task that throws v inside the thread.
func ResumeError(th *Thread, v goja.Value) ThreadTask {
	return ThreadTask{Thread: th, Error: v}
}

// Then attaches a continuation and returns the task.
func (t ThreadTask) Then(fn func()) ThreadTask {
	t.Continuation = fn
	return t
}
