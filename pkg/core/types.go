package core

import (
	"fmt"
	"time"
)

// ConnectionState represents where a session is in its connect/reconnect lifecycle.
type ConnectionState int32

// Connection states. Exactly one is active at a time for a session.
const (
	// StateDisconnected indicates there is no connection and no retry in progress.
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates the initial connection is being established.
	StateConnecting
	// StateConnected indicates the transport reported a live connection.
	StateConnected
	// StateReconnecting indicates at least one reconnect attempt in the current episode failed.
	StateReconnecting
)

var stateNames = [...]string{
	"disconnected",
	"connecting",
	"connected",
	"reconnecting",
}

// String returns the lowercase name of the state.
func (s ConnectionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// It accepts the names produced by String.
func (s *ConnectionState) UnmarshalText(data []byte) error {
	name := string(data)
	for i, n := range stateNames {
		if n == name {
			*s = ConnectionState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", name)
}

// Snapshot is a point-in-time copy of the observable fields of a reconnect session.
type Snapshot struct {
	Session           string          `json:"session"`
	State             ConnectionState `json:"state"`
	ReconnectCount    int             `json:"reconnect_count"`
	TotalAttempts     int             `json:"total_attempts"`
	LastReconnectTime *time.Time      `json:"last_reconnect_time,omitempty"`
	IsConnected       bool            `json:"is_connected"`
	Exhausted         bool            `json:"exhausted"`
}
