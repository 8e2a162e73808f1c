package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPath(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventStart)
	require.NoError(t, err)
	require.Equal(t, StateRecording, next)

	next, err = Transition(next, EventStop)
	require.NoError(t, err)
	require.Equal(t, StateStopping, next)

	next, err = Transition(next, EventFinalize)
	require.NoError(t, err)
	require.Equal(t, StateIdle, next)
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "idle stop invalid", state: StateIdle, event: EventStop, want: StateIdle, wantErr: true},
		{name: "idle finalize invalid", state: StateIdle, event: EventFinalize, want: StateIdle, wantErr: true},
		{name: "recording start invalid", state: StateRecording, event: EventStart, want: StateRecording, wantErr: true},
		{name: "recording finalize invalid", state: StateRecording, event: EventFinalize, want: StateRecording, wantErr: true},
		{name: "stopping start invalid", state: StateStopping, event: EventStart, want: StateStopping, wantErr: true},
		{name: "stopping stop invalid", state: StateStopping, event: EventStop, want: StateStopping, wantErr: true},
		{name: "stopping finalize valid", state: StateStopping, event: EventFinalize, want: StateIdle, wantErr: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("paused"), EventStart)
	require.Error(t, err)
	require.Equal(t, State("paused"), next)
}
