package model

import "testing"

func TestThreadState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    ThreadState
		terminal bool
	}{
		{ThreadStateSuspended, false},
		{ThreadStateQueued, false},
		{ThreadStateRunning, false},
		{ThreadStateDone, true},
		{ThreadStateFailed, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("ThreadState(%q).IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestThreadState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  ThreadState
		to    ThreadState
		valid bool
	}{
		// Valid transitions
		{ThreadStateSuspended, ThreadStateQueued, true},
		{ThreadStateQueued, ThreadStateRunning, true},
		{ThreadStateQueued, ThreadStateSuspended, true},
		{ThreadStateRunning, ThreadStateSuspended, true},
		{ThreadStateRunning, ThreadStateDone, true},
		{ThreadStateRunning, ThreadStateFailed, true},

		// Invalid transitions
		{ThreadStateQueued, ThreadStateQueued, false},
		{ThreadStateSuspended, ThreadStateRunning, false},
		{ThreadStateDone, ThreadStateQueued, false},
		{ThreadStateFailed, ThreadStateQueued, false},
		{ThreadStateRunning, ThreadStateQueued, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("ThreadState(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestStepStatus_Codes(t *testing.T) {
	// Script code compares against these numbers.
	tests := []struct {
		status StepStatus
		code   int
		name   string
	}{
		{StepMissingRuntime, 0, "missing_runtime"},
		{StepError, 1, "error"},
		{StepSuccess, 2, "success"},
		{StepEmpty, 3, "empty"},
		{StepUnsupported, 4, "unsupported"},
		{StepYielded, 5, "yielded"},
	}
	for _, tt := range tests {
		if int(tt.status) != tt.code {
			t.Errorf("%s = %d, want %d", tt.name, int(tt.status), tt.code)
		}
		if tt.status.String() != tt.name {
			t.Errorf("String() = %q, want %q", tt.status.String(), tt.name)
		}
		parsed, ok := ParseStepStatus(tt.name)
		if !ok || parsed != tt.status {
			t.Errorf("ParseStepStatus(%q) = %v, %v", tt.name, parsed, ok)
		}
	}
	if _, ok := ParseStepStatus("bogus"); ok {
		t.Error("ParseStepStatus(bogus) should fail")
	}
}

func TestDestroyStatus_String(t *testing.T) {
	if DestroyOK.String() != "ok" {
		t.Errorf("DestroyOK = %q", DestroyOK.String())
	}
	if DestroyNoRuntime.String() != "no_runtime_present" {
		t.Errorf("DestroyNoRuntime = %q", DestroyNoRuntime.String())
	}
}

func TestRunState_IsTerminal(t *testing.T) {
	tests := []struct {
		state RunState
		want  bool
	}{
		{RunStateRunning, false},
		{RunStateCompleted, true},
		{RunStateFailed, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
