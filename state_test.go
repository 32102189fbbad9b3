package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusString(t *testing.T) {
	assert.Equal(t, "connected", Status{State: StateConnected}.String())
	assert.Equal(t, "reconnecting:3", Status{State: StateReconnecting, Attempt: 3}.String())
	assert.Equal(t, "auth_error", Status{State: StateAuthError}.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestTransitions(t *testing.T) {
	legal := [][2]State{
		{StateDisconnected, StateConnecting},
		{StateConnecting, StateAuthenticating},
		{StateAuthenticating, StateConnected},
		{StateAuthenticating, StateAuthError},
		{StateConnected, StateReconnecting},
		{StateReconnecting, StateConnecting},
		{StateConnecting, StateFailed},
		{StateFailed, StateConnecting},
		{StateAuthError, StateConnecting},
		{StateConnected, StateDisconnected},
	}
	for _, tr := range legal {
		assert.True(t, canTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	illegal := [][2]State{
		{StateDisconnected, StateConnected},
		{StateDisconnected, StateAuthenticating},
		{StateReconnecting, StateConnected},
		{StateConnected, StateAuthError},
		{StateFailed, StateReconnecting},
		{StateAuthError, StateReconnecting},
	}
	for _, tr := range illegal {
		assert.False(t, canTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}
