package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		allowed  bool
	}{
		{StateNotStarted, StateRunning, true},
		{StateNotStarted, StateAborted, true},
		{StateNotStarted, StateCompleted, false},
		{StateRunning, StateCompleted, true},
		{StateRunning, StateAborted, true},
		{StateRunning, StateNotStarted, false},
		{StateCompleted, StateRunning, false},
		{StateCompleted, StateAborted, false},
		{StateAborted, StateRunning, false},
		{StateAborted, StateCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			err := checkTransition(tt.from, tt.to)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestState_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, StateNotStarted.IsTerminal())
	assert.False(t, StateRunning.IsTerminal())
	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateAborted.IsTerminal())
}
