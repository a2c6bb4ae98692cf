package reconnect

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redial/pkg/core"
)

type countingSource struct {
	reads atomic.Int32
}

func (c *countingSource) Snapshot() core.Snapshot {
	n := c.reads.Add(1)
	return core.Snapshot{Session: "src", ReconnectCount: int(n)}
}

func TestNewPoller_DefaultPeriod(t *testing.T) {
	p := NewPoller(&countingSource{}, 0)
	assert.Equal(t, DefaultPollPeriod, p.period)
	assert.Equal(t, "src", p.Latest().Session)
}

func TestPoller_StartStop(t *testing.T) {
	src := &countingSource{}
	p := NewPoller(src, 2*time.Millisecond)

	p.Start(context.Background())
	p.Start(context.Background())

	require.Eventually(t, func() bool { return p.Polls() >= 3 }, time.Second, time.Millisecond)

	p.Stop()
	p.Stop()

	stopped := p.Polls()
	latest := p.Latest()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, stopped, p.Polls())
	assert.Equal(t, latest, p.Latest())
	assert.Equal(t, int(src.reads.Load()), latest.ReconnectCount)
}

func TestPoller_StopsWithContext(t *testing.T) {
	p := NewPoller(&countingSource{}, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	require.Eventually(t, func() bool { return p.Polls() >= 1 }, time.Second, time.Millisecond)

	cancel()
	time.Sleep(10 * time.Millisecond)
	polls := p.Polls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, polls, p.Polls())

	p.Stop()
}

func TestPoller_TracksManager(t *testing.T) {
	tr := newMockTransport()
	m := newSession(t, tr, 5*time.Millisecond, 1)

	p := NewPoller(m, 2*time.Millisecond)
	p.Start(context.Background())
	defer p.Stop()

	assert.Equal(t, m.ID(), p.Latest().Session)

	startConnected(t, m)
	tr.disconnect.Fire()
	waitDone(t, m)

	require.Eventually(t, func() bool {
		snap := p.Latest()
		return snap.Exhausted && snap.ReconnectCount == 2
	}, time.Second, time.Millisecond)
	assert.False(t, p.Latest().IsConnected)
}
