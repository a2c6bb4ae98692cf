// Package reconnect implements the connection session state machine.
//
// A Manager drives one session over a transport. After Init it waits for the
// initial connection, then reacts to every disconnect with a retry sequence:
// wait the reconnect interval, make one attempt, and repeat until an attempt
// succeeds or the attempt budget is spent. The budget is MaxReconnectAttempts+1
// failed attempts for the whole session, shared by every disconnect episode;
// ResetReconnectCount refills it. Exhausting the budget is silent apart from the
// optional exhaustion hook; the session then stops reacting to disconnects. The transport's leave signal, or Destroy, tears the
// session down at once, including an in-flight wait or attempt.
//
// All transitions happen on a single goroutine. Effects of a wait or attempt
// that completes after teardown are discarded.
package reconnect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"redial/pkg/core"
	"redial/pkg/transport"
)

// Observer is notified of session events. Calls are made from the session's
// goroutine, outside its lock, in the order the events happen.
type Observer interface {
	StateChanged(session string, from, to core.ConnectionState)
	// AttemptFinished reports one reconnect attempt; err is nil on success and a
	// *core.ReconnectError otherwise.
	AttemptFinished(session string, attempt int, err error)
	Exhausted(session string, snapshot core.Snapshot)
}

// Manager is a single reconnect session. Its exported methods are safe for
// concurrent use.
type Manager struct {
	id        string
	transport transport.Transport
	logger    zerolog.Logger
	now       func() time.Time

	mu                sync.RWMutex
	state             core.ConnectionState
	reconnectCount    int
	totalAttempts     int
	lastReconnectTime time.Time
	reconnected       bool
	exhausted         bool
	episodes          int

	interval       time.Duration
	maxAttempts    int
	attemptTimeout time.Duration

	initialized bool
	active      bool
	closed      bool
	cancel      context.CancelFunc
	stopped     chan struct{}
	done        chan struct{}

	observer    Observer
	onExhausted func(core.Snapshot)
	watchers    map[uint64]chan core.Snapshot
	nextWatcher uint64
}

// New creates a session over t. The configuration is validated; only its
// reconnect fields are used here.
func New(config *core.Config, t transport.Transport) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if t == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &Manager{
		id:             uuid.NewString(),
		transport:      t,
		logger:         zerolog.Nop(),
		now:            time.Now,
		state:          core.StateDisconnected,
		interval:       config.ReconnectInterval,
		maxAttempts:    config.MaxReconnectAttempts,
		attemptTimeout: config.AttemptTimeout,
		stopped:        make(chan struct{}),
		done:           make(chan struct{}),
		watchers:       make(map[uint64]chan core.Snapshot),
	}, nil
}

// SetLogger configures the logger. Every entry carries the session ID.
func (m *Manager) SetLogger(logger zerolog.Logger) {
	m.logger = logger.With().Str("session", m.id).Logger()
}

// SetObserver registers o for session events. It must be called before Init.
func (m *Manager) SetObserver(o Observer) {
	m.mu.Lock()
	m.observer = o
	m.mu.Unlock()
}

// OnExhausted registers fn to be called once an episode runs out of attempts.
func (m *Manager) OnExhausted(fn func(core.Snapshot)) {
	m.mu.Lock()
	m.onExhausted = fn
	m.mu.Unlock()
}

// ID returns the session identifier.
func (m *Manager) ID() string {
	return m.id
}

// Init starts the session: it subscribes to the transport's signals and starts
// the run loop, then returns without waiting for the connection. ctx only
// bounds Init itself; the session lives until leave or Destroy.
func (m *Manager) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return core.ErrSessionClosed
	}
	if m.initialized {
		m.mu.Unlock()
		return core.ErrAlreadyInitialized
	}
	m.initialized = true
	m.active = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel

	disc, unsubDisc := m.transport.DisconnectSignal().Subscribe()
	leave, unsubLeave := m.transport.LeaveSignal().Subscribe()

	from := m.state
	m.state = core.StateConnecting
	m.publishLocked()
	observer := m.observer
	m.mu.Unlock()

	if observer != nil && from != core.StateConnecting {
		observer.StateChanged(m.id, from, core.StateConnecting)
	}

	go func() {
		defer unsubLeave()
		select {
		case <-leave:
			if m.teardown() {
				m.logger.Info().Msg("left session, reconnect stopped")
			}
		case <-runCtx.Done():
		}
	}()

	go m.run(runCtx, disc, unsubDisc)

	m.logger.Debug().
		Dur("interval", m.ReconnectInterval()).
		Int("max_attempts", m.MaxReconnectAttempts()).
		Msg("session initialized")
	return nil
}

// Destroy tears the session down. It is idempotent and may follow a leave.
// It does not wait for an in-flight attempt; see Done.
func (m *Manager) Destroy() {
	if m.teardown() {
		m.logger.Info().Msg("session destroyed")
	}
}

// Done is closed when the run loop has exited, either after teardown or once
// an episode is exhausted. It is never closed for a session that was not
// initialized.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) teardown() bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.closed = true
	m.active = false
	cancel := m.cancel
	close(m.stopped)
	for id, ch := range m.watchers {
		close(ch)
		delete(m.watchers, id)
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

func (m *Manager) run(ctx context.Context, disc <-chan struct{}, unsubscribe func()) {
	defer close(m.done)
	defer unsubscribe()

	if err := m.transport.Establish(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Error().Err(err).Msg("initial connection failed")
		if !m.beginEpisode() {
			return
		}
		if !m.retry(ctx, disc) {
			return
		}
	} else {
		if !m.apply(func() { m.state = core.StateConnected }) {
			return
		}
		m.logger.Info().Msg("connected")
	}

	// Disconnects reported before the connection was up belong to no episode.
	select {
	case <-disc:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-disc:
			if !m.beginEpisode() {
				return
			}
			if !m.retry(ctx, disc) {
				return
			}
		}
	}
}

func (m *Manager) beginEpisode() bool {
	var episode int
	ok := m.apply(func() {
		m.episodes++
		episode = m.episodes
		m.state = core.StateDisconnected
	})
	if ok {
		m.logger.Warn().Int("episode", episode).Msg("disconnected")
	}
	return ok
}

// retry runs one retry sequence. It returns true when the connection was
// restored and false when the session is over, by teardown or exhaustion.
func (m *Manager) retry(ctx context.Context, disc <-chan struct{}) bool {
	m.mu.RLock()
	budget := m.maxAttempts + 1 - m.reconnectCount
	episode := m.episodes
	timeout := m.attemptTimeout
	m.mu.RUnlock()

	for attempt := 1; attempt <= budget; attempt++ {
		wait := m.ReconnectInterval()
		m.logger.Info().
			Dur("wait", wait).
			Int("episode", episode).
			Int("attempt", attempt).
			Msg("attempting reconnect")

		if !m.idle(ctx, wait, disc) {
			return false
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := m.transport.Reconnect(attemptCtx)
		cancel()

		if err == nil {
			if !m.apply(func() {
				m.lastReconnectTime = m.now()
				m.reconnected = true
				m.state = core.StateConnected
			}) {
				return false
			}
			m.notifyAttempt(attempt, nil)
			m.logger.Info().
				Int("episode", episode).
				Int("attempt", attempt).
				Msg("reconnected successfully")
			return true
		}

		rerr := core.NewReconnectError(m.id, episode, attempt, err)
		if !m.apply(func() {
			m.reconnectCount++
			m.totalAttempts++
			m.state = core.StateReconnecting
		}) {
			return false
		}
		m.notifyAttempt(attempt, rerr)
		m.logger.Error().
			Err(err).
			Str("type", rerr.Type.String()).
			Int("episode", episode).
			Int("attempt", attempt).
			Msg("reconnect failed")
	}

	var failed int
	if !m.apply(func() {
		m.exhausted = true
		m.active = false
		m.state = core.StateDisconnected
		failed = m.reconnectCount
	}) {
		return false
	}

	snap := m.Snapshot()
	m.logger.Warn().
		Int("episode", episode).
		Int("failed_attempts", failed).
		Msg("reconnect attempts exhausted")

	m.mu.RLock()
	observer, hook := m.observer, m.onExhausted
	m.mu.RUnlock()
	if observer != nil {
		observer.Exhausted(m.id, snap)
	}
	if hook != nil {
		hook(snap)
	}
	return false
}

// idle waits d. Disconnects reported meanwhile are dropped: the session is
// already disconnected. It returns false if the session ended first.
func (m *Manager) idle(ctx context.Context, d time.Duration, disc <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return true
		case <-ctx.Done():
			return false
		case <-disc:
			m.logger.Debug().Msg("disconnect ignored while reconnecting")
		}
	}
}

// apply runs fn under the lock if the session is still active, publishes the
// resulting snapshot and reports a state change to the observer. It returns
// false, without running fn, after teardown.
func (m *Manager) apply(fn func()) bool {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return false
	}
	from := m.state
	fn()
	to := m.state
	m.publishLocked()
	observer := m.observer
	m.mu.Unlock()

	if observer != nil && from != to {
		observer.StateChanged(m.id, from, to)
	}
	return true
}

func (m *Manager) notifyAttempt(attempt int, err error) {
	m.mu.RLock()
	observer := m.observer
	m.mu.RUnlock()
	if observer != nil {
		observer.AttemptFinished(m.id, attempt, err)
	}
}

// ConnectionState returns the current state.
func (m *Manager) ConnectionState() core.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ReconnectCount returns the number of failed attempts since construction or
// the last ResetReconnectCount. A successful reconnect does not reset it.
func (m *Manager) ReconnectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reconnectCount
}

// TotalAttempts returns the number of failed attempts over the session lifetime.
func (m *Manager) TotalAttempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalAttempts
}

// LastReconnectTime returns when the last successful reconnect happened.
// ok is false if no reconnect has succeeded yet.
func (m *Manager) LastReconnectTime() (t time.Time, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastReconnectTime, m.reconnected
}

// Exhausted reports whether an episode ran out of attempts.
func (m *Manager) Exhausted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exhausted
}

// Active reports whether the session is still reacting to disconnects: it has
// been initialized, not torn down, and has not exhausted its attempts.
func (m *Manager) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Snapshot returns a consistent copy of the observable fields.
func (m *Manager) Snapshot() core.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() core.Snapshot {
	snap := core.Snapshot{
		Session:        m.id,
		State:          m.state,
		ReconnectCount: m.reconnectCount,
		TotalAttempts:  m.totalAttempts,
		IsConnected:    m.state == core.StateConnected,
		Exhausted:      m.exhausted,
	}
	if m.reconnected {
		t := m.lastReconnectTime
		snap.LastReconnectTime = &t
	}
	return snap
}

// ReconnectInterval returns the wait before each attempt.
func (m *Manager) ReconnectInterval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.interval
}

// MaxReconnectAttempts returns the configured attempt budget.
func (m *Manager) MaxReconnectAttempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxAttempts
}

// SetReconnectInterval changes the wait before each attempt. Callers should
// only change it while no retry sequence is running; the next wait uses it.
func (m *Manager) SetReconnectInterval(interval time.Duration) {
	m.mu.Lock()
	m.interval = interval
	m.mu.Unlock()
}

// SetMaxReconnectAttempts changes the attempt budget. A running retry sequence
// keeps the budget it started with.
func (m *Manager) SetMaxReconnectAttempts(attempts int) {
	m.mu.Lock()
	m.maxAttempts = attempts
	m.mu.Unlock()
}

// ResetReconnectCount sets the reconnect count back to zero, which gives the
// next episode the full attempt budget again. TotalAttempts is kept.
func (m *Manager) ResetReconnectCount() {
	m.mu.Lock()
	m.reconnectCount = 0
	m.publishLocked()
	m.mu.Unlock()
}

// Watch returns a channel carrying the current snapshot followed by a new one
// after every change. A slow reader only sees the latest snapshot. The channel
// is closed when ctx is done or the session is torn down.
func (m *Manager) Watch(ctx context.Context) <-chan core.Snapshot {
	ch := make(chan core.Snapshot, 1)

	m.mu.Lock()
	ch <- m.snapshotLocked()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch
	}
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = ch
	stopped := m.stopped
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		m.mu.Lock()
		if c, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(c)
		}
		m.mu.Unlock()
	}()
	return ch
}

func (m *Manager) publishLocked() {
	if len(m.watchers) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for _, ch := range m.watchers {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Replace the unread snapshot with the newer one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
