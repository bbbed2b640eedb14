package playback

import (
	"sync"
	"time"
)

// DefaultPositionInterval is the minimum spacing between throttled
// position notifications.
const DefaultPositionInterval = 250 * time.Millisecond

// PositionStore holds the playback position separately from the event
// stream. Engine status ticks arrive many times per second; the store
// keeps the latest value always readable while throttling how often
// subscribers are woken.
type PositionStore struct {
	mu       sync.Mutex
	pos      time.Duration
	lastSent time.Time
	interval time.Duration
	subs     map[chan time.Duration]struct{}
	closed   bool
}

// NewPositionStore creates a store that notifies subscribers at most
// once per interval. Non-positive intervals fall back to the default.
func NewPositionStore(interval time.Duration) *PositionStore {
	if interval <= 0 {
		interval = DefaultPositionInterval
	}
	return &PositionStore{
		interval: interval,
		subs:     make(map[chan time.Duration]struct{}),
	}
}

// Get returns the last stored position.
func (p *PositionStore) Get() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

// Set stores the position and notifies subscribers if enough time has
// passed since the last notification. The stored value is always
// updated so Get never lags.
func (p *PositionStore) Set(pos time.Duration) {
	p.mu.Lock()
	p.pos = pos
	now := time.Now()
	if now.Sub(p.lastSent) < p.interval {
		p.mu.Unlock()
		return
	}
	p.lastSent = now
	targets := p.targetsLocked()
	p.mu.Unlock()

	p.send(targets, pos)
}

// Force stores the position and notifies subscribers unconditionally.
// Used on seeks and track starts, where a stale displayed position is
// worse than an extra wakeup.
func (p *PositionStore) Force(pos time.Duration) {
	p.mu.Lock()
	p.pos = pos
	p.lastSent = time.Now()
	targets := p.targetsLocked()
	p.mu.Unlock()

	p.send(targets, pos)
}

// Subscribe registers a position listener. Slow consumers drop updates
// instead of blocking the engine's status callback.
func (p *PositionStore) Subscribe() <-chan time.Duration {
	ch := make(chan time.Duration, 16)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		close(ch)
		return ch
	}
	p.subs[ch] = struct{}{}
	p.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener registered with Subscribe.
func (p *PositionStore) Unsubscribe(ch <-chan time.Duration) {
	p.mu.Lock()
	for sub := range p.subs {
		if sub == ch {
			delete(p.subs, sub)
			close(sub)
			break
		}
	}
	p.mu.Unlock()
}

// Close closes all subscriber channels.
func (p *PositionStore) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for sub := range p.subs {
		close(sub)
	}
	p.subs = make(map[chan time.Duration]struct{})
	p.mu.Unlock()
}

func (p *PositionStore) targetsLocked() []chan time.Duration {
	if p.closed || len(p.subs) == 0 {
		return nil
	}
	targets := make([]chan time.Duration, 0, len(p.subs))
	for sub := range p.subs {
		targets = append(targets, sub)
	}
	return targets
}

func (p *PositionStore) send(targets []chan time.Duration, pos time.Duration) {
	for _, ch := range targets {
		select {
		case ch <- pos:
		default:
		}
	}
}
