package connstate

import (
	"sync/atomic"

	"redial/pkg/core"
)

// State provides atomic access to a core.ConnectionState value.
// The zero value holds core.StateDisconnected.
type State struct {
	state atomic.Int32
}

// Load returns the current connection state.
func (s *State) Load() core.ConnectionState {
	return core.ConnectionState(s.state.Load())
}

// Store sets the connection state and returns the previous one.
func (s *State) Store(state core.ConnectionState) core.ConnectionState {
	return core.ConnectionState(s.state.Swap(int32(state)))
}

// CompareAndSwap atomically compares the current state with old and swaps to new if equal.
// It returns true if the swap was performed.
func (s *State) CompareAndSwap(old, new core.ConnectionState) bool {
	return s.state.CompareAndSwap(int32(old), int32(new))
}
