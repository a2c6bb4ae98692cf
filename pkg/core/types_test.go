package core

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionState_String(t *testing.T) {
	tests := []struct {
		state ConnectionState
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateReconnecting, "reconnecting"},
		{ConnectionState(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestConnectionState_UnmarshalText(t *testing.T) {
	var s ConnectionState
	require.NoError(t, s.UnmarshalText([]byte("reconnecting")))
	assert.Equal(t, StateReconnecting, s)

	assert.Error(t, s.UnmarshalText([]byte("flapping")))
	assert.Equal(t, StateReconnecting, s)
}

func TestSnapshot_JSON(t *testing.T) {
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Session:           "s1",
		State:             StateConnected,
		ReconnectCount:    2,
		TotalAttempts:     3,
		LastReconnectTime: &at,
		IsConnected:       true,
	}

	data, err := sonic.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"connected"`)
	assert.Contains(t, string(data), `"reconnect_count":2`)
	assert.Contains(t, string(data), `"last_reconnect_time":"2026-10-18T12:00:00Z"`)

	var decoded Snapshot
	require.NoError(t, sonic.Unmarshal(data, &decoded))
	assert.Equal(t, StateConnected, decoded.State)
	require.NotNil(t, decoded.LastReconnectTime)
	assert.True(t, at.Equal(*decoded.LastReconnectTime))

	data, err = sonic.Marshal(Snapshot{State: StateDisconnected})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "last_reconnect_time")
}
