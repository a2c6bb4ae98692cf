// Package broadcast provides a notification channel with many listeners.
//
// A Signal carries no payload. Fire wakes every current subscriber without
// blocking the caller; a subscriber that has not consumed the previous
// notification simply keeps one pending notification. Close fires the signal
// permanently: every current and future subscriber channel is closed.
package broadcast

import (
	"sync"
	"sync/atomic"
)

// Signal is a payload-free broadcast channel. The zero value is not usable; use New.
type Signal struct {
	mu     sync.Mutex
	subs   map[uint64]chan struct{}
	nextID uint64
	closed bool
	fired  atomic.Int64
}

// New creates an open Signal with no subscribers.
func New() *Signal {
	return &Signal{
		subs: make(map[uint64]chan struct{}),
	}
}

// Subscribe registers a listener. The returned channel receives one value per Fire
// (coalesced while unread) and is closed by Close. The returned func removes the
// listener; it is safe to call more than once.
func (s *Signal) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Fire notifies every current subscriber. It never blocks and is a no-op after Close.
func (s *Signal) Fire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.fired.Add(1)
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close fires the signal for good. It returns false if the signal was already closed.
func (s *Signal) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	s.fired.Add(1)
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	return true
}

// Closed reports whether Close has been called.
func (s *Signal) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Fired returns how many times the signal has been fired, Close included.
func (s *Signal) Fired() int64 {
	return s.fired.Load()
}

// Subscribers returns the number of registered listeners.
func (s *Signal) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
