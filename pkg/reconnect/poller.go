package reconnect

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"redial/pkg/core"
)

// DefaultPollPeriod is how often a Poller copies the session state.
const DefaultPollPeriod = 100 * time.Millisecond

// SnapshotSource is anything that can report its current state.
type SnapshotSource interface {
	Snapshot() core.Snapshot
}

// Poller copies a source's snapshot at a fixed period, for consumers that
// render on their own schedule rather than subscribing through Watch.
type Poller struct {
	source SnapshotSource
	period time.Duration
	latest atomic.Pointer[core.Snapshot]
	polls  atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller over source. A non-positive period means
// DefaultPollPeriod.
func NewPoller(source SnapshotSource, period time.Duration) *Poller {
	if period <= 0 {
		period = DefaultPollPeriod
	}
	p := &Poller{source: source, period: period}
	snap := source.Snapshot()
	p.latest.Store(&snap)
	return p
}

// Start begins polling until ctx is done or Stop is called. Calling Start on a
// running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(ctx, p.done)
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	p.poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	snap := p.source.Snapshot()
	p.latest.Store(&snap)
	p.polls.Add(1)
}

// Stop ends polling and waits for the loop to exit. The last snapshot stays
// available through Latest.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Latest returns the most recently copied snapshot.
func (p *Poller) Latest() core.Snapshot {
	return *p.latest.Load()
}

// Polls returns how many times the source has been read since creation.
func (p *Poller) Polls() int64 {
	return p.polls.Load()
}
