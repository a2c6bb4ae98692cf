package transport

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"redial/pkg/broadcast"
	"redial/pkg/core"
)

// Simulated is an in-process transport whose connection comes up after a fixed
// delay and whose reconnect attempts succeed at random with a fixed probability.
type Simulated struct {
	config     core.SimulatedConfig
	disconnect *broadcast.Signal
	leave      *broadcast.Signal
	logger     zerolog.Logger

	mu   sync.Mutex
	rand func() float64

	connected atomic.Bool
	attempts  atomic.Int64
}

// NewSimulated creates a simulated transport.
func NewSimulated(config core.SimulatedConfig) *Simulated {
	return &Simulated{
		config:     config,
		disconnect: broadcast.New(),
		leave:      broadcast.New(),
		logger:     zerolog.Nop(),
		rand:       rand.Float64,
	}
}

// SetLogger configures the logger for the transport.
func (s *Simulated) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// SetRand replaces the random source used to decide attempt outcomes.
// f must return values in [0,1).
func (s *Simulated) SetRand(f func() float64) {
	s.mu.Lock()
	s.rand = f
	s.mu.Unlock()
}

// Establish waits ConnectDelay and reports the connection as up.
func (s *Simulated) Establish(ctx context.Context) error {
	if s.leave.Closed() {
		return core.ErrTransportClosed
	}
	if err := sleep(ctx, s.config.ConnectDelay); err != nil {
		return err
	}
	s.connected.Store(true)
	s.logger.Info().Msg("simulated connection established")
	return nil
}

// Reconnect decides the outcome up front, waits AttemptDelay, and then either
// marks the connection up or fails with core.ErrAttemptRejected.
func (s *Simulated) Reconnect(ctx context.Context) error {
	if s.leave.Closed() {
		return core.ErrTransportClosed
	}
	n := s.attempts.Add(1)

	s.mu.Lock()
	success := s.rand() < s.config.SuccessRate
	s.mu.Unlock()

	if err := sleep(ctx, s.config.AttemptDelay); err != nil {
		return err
	}

	if !success {
		s.connected.Store(false)
		return fmt.Errorf("simulated attempt %d: %w", n, core.ErrAttemptRejected)
	}
	s.connected.Store(true)
	return nil
}

// Disconnect marks the connection down and fires the disconnect signal.
func (s *Simulated) Disconnect() error {
	s.connected.Store(false)
	s.disconnect.Fire()
	s.logger.Info().Msg("simulated disconnect")
	return nil
}

// Leave fires the leave signal. Later attempts fail with core.ErrTransportClosed.
func (s *Simulated) Leave() {
	if s.leave.Close() {
		s.connected.Store(false)
		s.logger.Info().Msg("left session")
	}
}

// DisconnectSignal fires on every dropped connection.
func (s *Simulated) DisconnectSignal() *broadcast.Signal { return s.disconnect }

// LeaveSignal is closed by Leave.
func (s *Simulated) LeaveSignal() *broadcast.Signal { return s.leave }

// Connected reports the transport-side view of the connection.
func (s *Simulated) Connected() bool {
	return s.connected.Load()
}

// Attempts returns how many reconnect attempts were started.
func (s *Simulated) Attempts() int64 {
	return s.attempts.Load()
}
