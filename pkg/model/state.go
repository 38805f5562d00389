package model

// ThreadState represents the lifecycle state of a script thread handle.
type ThreadState string

const (
	ThreadStateSuspended ThreadState = "SUSPENDED"
	ThreadStateQueued    ThreadState = "QUEUED"
	ThreadStateRunning   ThreadState = "RUNNING"
	ThreadStateDone      ThreadState = "DONE"
	ThreadStateFailed    ThreadState = "FAILED"
)

// String returns the string representation of the thread state.
func (s ThreadState) String() string {
	return string(s)
}

// IsTerminal returns true if the thread can never be resumed again.
func (s ThreadState) IsTerminal() bool {
	switch s {
	case ThreadStateDone, ThreadStateFailed:
		return true
	}
	return false
}

// ValidThreadTransitions defines the allowed state transitions for threads.
var ValidThreadTransitions = map[ThreadState][]ThreadState{
	ThreadStateSuspended: {ThreadStateQueued},
	ThreadStateQueued:    {ThreadStateRunning, ThreadStateSuspended},
	ThreadStateRunning:   {ThreadStateSuspended, ThreadStateDone, ThreadStateFailed},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ThreadState) CanTransitionTo(next ThreadState) bool {
	for _, allowed := range ValidThreadTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StepStatus is the numeric code reported for one scheduler step. The values
// are shared with script code through the scheduler.status table and must not
// be renumbered.
type StepStatus int

const (
	StepMissingRuntime StepStatus = 0
	StepError          StepStatus = 1
	StepSuccess        StepStatus = 2
	StepEmpty          StepStatus = 3
	StepUnsupported    StepStatus = 4
	StepYielded        StepStatus = 5
)

// String returns a lowercase name for the status.
func (s StepStatus) String() string {
	switch s {
	case StepMissingRuntime:
		return "missing_runtime"
	case StepError:
		return "error"
	case StepSuccess:
		return "success"
	case StepEmpty:
		return "empty"
	case StepUnsupported:
		return "unsupported"
	case StepYielded:
		return "yielded"
	}
	return "unknown"
}

// ParseStepStatus converts a status name back to its code.
func ParseStepStatus(s string) (StepStatus, bool) {
	for _, st := range []StepStatus{StepMissingRuntime, StepError, StepSuccess, StepEmpty, StepUnsupported, StepYielded} {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// DestroyStatus is the outcome of detaching a runtime from a VM.
type DestroyStatus int

const (
	DestroyOK        DestroyStatus = 0
	DestroyNoRuntime DestroyStatus = 1
)

func (s DestroyStatus) String() string {
	if s == DestroyOK {
		return "ok"
	}
	return "no_runtime_present"
}

// RunState represents the lifecycle state of a journaled run.
type RunState string

const (
	RunStateRunning   RunState = "RUNNING"
	RunStateCompleted RunState = "COMPLETED"
	RunStateFailed    RunState = "FAILED"
)

func (s RunState) String() string {
	return string(s)
}

// IsTerminal returns true if the run has ended.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}
