// Package transport provides the connections a reconnect session drives.
//
// A Transport exposes the capabilities the state machine consumes: the initial
// connection, a reconnect attempt, and two broadcast signals. The disconnect
// signal fires whenever the connection drops. The leave signal fires once,
// when the caller abandons the session, and is closed for good afterwards.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"redial/pkg/broadcast"
	"redial/pkg/core"
)

// Transport is what the reconnect state machine consumes.
type Transport interface {
	// Establish brings up the initial connection. It blocks until connected,
	// failed, or ctx is done.
	Establish(ctx context.Context) error
	// Reconnect makes a single attempt to restore the connection.
	Reconnect(ctx context.Context) error
	// DisconnectSignal fires whenever the connection drops.
	DisconnectSignal() *broadcast.Signal
	// LeaveSignal is closed once the session is abandoned.
	LeaveSignal() *broadcast.Signal
}

// Controller is the user-facing side of a transport: the actions a UI dispatches.
type Controller interface {
	// Disconnect drops the connection, firing the disconnect signal.
	Disconnect() error
	// Leave abandons the session for good, firing the leave signal.
	Leave()
}

// Link is a Transport that can also be controlled.
type Link interface {
	Transport
	Controller
}

// New builds the link selected by config.Transport, wrapped in a Guarded
// decorator when the guard configuration enables one.
func New(config *core.Config, logger zerolog.Logger) (Link, error) {
	var link Link
	switch config.Transport {
	case core.TransportSimulated, "":
		sim := NewSimulated(config.Simulated)
		sim.SetLogger(logger)
		link = sim
	case core.TransportWebSocket:
		ws := NewWebSocket(config.WebSocket)
		ws.SetLogger(logger)
		link = ws
	case core.TransportHTTP:
		probe := NewHTTPProbe(config.HTTP)
		probe.SetLogger(logger)
		link = probe
	default:
		return nil, fmt.Errorf("unknown transport %q", config.Transport)
	}

	if config.Guard.CircuitBreakerEnabled || config.Guard.RateLimitAttempts > 0 {
		guarded := NewGuarded(link, config.Guard)
		guarded.SetLogger(logger)
		link = guarded
	}
	return link, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
