package connstate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"redial/pkg/core"
)

func TestState_ZeroValue(t *testing.T) {
	var s State
	assert.Equal(t, core.StateDisconnected, s.Load())
}

func TestState_StoreReturnsPrevious(t *testing.T) {
	var s State

	prev := s.Store(core.StateConnecting)
	assert.Equal(t, core.StateDisconnected, prev)

	prev = s.Store(core.StateConnected)
	assert.Equal(t, core.StateConnecting, prev)
	assert.Equal(t, core.StateConnected, s.Load())
}

func TestState_CompareAndSwap(t *testing.T) {
	var s State
	s.Store(core.StateConnected)

	assert.False(t, s.CompareAndSwap(core.StateDisconnected, core.StateReconnecting))
	assert.Equal(t, core.StateConnected, s.Load())

	assert.True(t, s.CompareAndSwap(core.StateConnected, core.StateDisconnected))
	assert.Equal(t, core.StateDisconnected, s.Load())
}
