// internal/player/coordinator.go
package player

import (
	"sync"
	"time"
)

// Coordinator guarantees last-load-wins semantics across overlapping
// asynchronous track loads. Each load mints a monotonically increasing
// session id; a handle may only be registered under the latest id, and
// registering (or minting) tears down every handle that is not the
// active one. At most one handle is ever tracked.
type Coordinator struct {
	mu      sync.Mutex
	latest  uint64
	handles map[uint64]Handle
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		handles: make(map[uint64]Handle),
	}
}

// StartSession mints a new session id and tears down every tracked
// handle. The returned id tags the caller's in-flight work.
func (c *Coordinator) StartSession() uint64 {
	c.mu.Lock()
	c.latest++
	id := c.latest
	stale := c.takeAllLocked()
	c.mu.Unlock()

	for _, h := range stale {
		Teardown(h)
	}
	return id
}

// Register stores handle under the given session. If the session has
// been superseded the handle is torn down immediately and false is
// returned; the caller must not treat it as playing. Any other tracked
// handle is torn down defensively.
func (c *Coordinator) Register(session uint64, handle Handle) bool {
	c.mu.Lock()
	if session != c.latest {
		c.mu.Unlock()
		Teardown(handle)
		return false
	}
	stale := c.takeAllLocked()
	c.handles[session] = handle
	c.mu.Unlock()

	for _, h := range stale {
		Teardown(h)
	}
	return true
}

// IsActive reports whether session is the latest minted id.
func (c *Coordinator) IsActive(session uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return session == c.latest
}

// ActiveHandle returns the handle registered under the latest session,
// or nil if none has been registered yet.
func (c *Coordinator) ActiveHandle() Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handles[c.latest]
}

// PauseActive pauses the active handle if one is registered.
func (c *Coordinator) PauseActive() {
	if h := c.ActiveHandle(); h != nil {
		h.Pause()
	}
}

// PlayActive starts the active handle if one is registered.
func (c *Coordinator) PlayActive() {
	if h := c.ActiveHandle(); h != nil {
		h.Play()
	}
}

// SeekActive seeks the active handle if one is registered.
func (c *Coordinator) SeekActive(pos time.Duration) {
	if h := c.ActiveHandle(); h != nil {
		h.SeekTo(pos)
	}
}

// StopAll tears down every tracked handle without minting a session.
// Used on shutdown.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	stale := c.takeAllLocked()
	c.mu.Unlock()

	for _, h := range stale {
		Teardown(h)
	}
}

// takeAllLocked removes and returns every tracked handle. Teardown is
// the caller's job, outside the lock: a handle's Pause or Destroy may
// fire its status callback, which re-enters the coordinator.
func (c *Coordinator) takeAllLocked() []Handle {
	if len(c.handles) == 0 {
		return nil
	}
	stale := make([]Handle, 0, len(c.handles))
	for id, h := range c.handles {
		stale = append(stale, h)
		delete(c.handles, id)
	}
	return stale
}

// Teardown stops and destroys a handle. A misbehaving engine must never
// block the next track from playing, so panics from either call are
// swallowed.
func Teardown(h Handle) {
	safely(h.Pause)
	safely(h.Destroy)
}

func safely(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
