package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func received(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

func TestSignal_FireReachesAllSubscribers(t *testing.T) {
	s := New()
	a, _ := s.Subscribe()
	b, _ := s.Subscribe()

	s.Fire()

	assert.True(t, received(a))
	assert.True(t, received(b))
	assert.Equal(t, int64(1), s.Fired())
}

func TestSignal_FireCoalescesWhileUnread(t *testing.T) {
	s := New()
	ch, _ := s.Subscribe()

	s.Fire()
	s.Fire()
	s.Fire()

	assert.True(t, received(ch))
	assert.False(t, received(ch))
	assert.Equal(t, int64(3), s.Fired())
}

func TestSignal_Unsubscribe(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	assert.Equal(t, 1, s.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, s.Subscribers())

	s.Fire()
	assert.False(t, received(ch))
}

func TestSignal_Close(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()

	assert.True(t, s.Close())
	assert.False(t, s.Close())
	assert.True(t, s.Closed())

	_, ok := <-ch
	assert.False(t, ok)
	cancel()

	late, _ := s.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribers after close see a closed channel")

	s.Fire()
	assert.Equal(t, int64(1), s.Fired())
}
