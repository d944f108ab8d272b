package types

import "testing"

func TestTaskStateTerminal(t *testing.T) {
	tests := []struct {
		state    TaskState
		terminal bool
	}{
		{TaskPending, false},
		{TaskStarted, false},
		{TaskSuccess, true},
		{TaskFailure, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestIsValidTaskState(t *testing.T) {
	for _, state := range ValidTaskStates {
		if !IsValidTaskState(state) {
			t.Errorf("expected %q to be a valid task state", state)
		}
	}
	if IsValidTaskState("RETRY") {
		t.Error("expected unknown task state to be invalid")
	}
}
