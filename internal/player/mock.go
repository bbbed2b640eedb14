// internal/player/mock.go
package player

import (
	"sync"
	"time"
)

// Mock is a test double for Handle.
type Mock struct {
	mu           sync.Mutex
	playing      bool
	destroyed    bool
	position     time.Duration
	duration     time.Duration
	playCalls    int
	pauseCalls   int
	destroyCalls int
	seekCalls    []time.Duration
	panicOnStop  bool
	onStatus     func(Status)
}

// NewMock creates a new mock handle for testing.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Play() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playCalls++
	if !m.destroyed {
		m.playing = true
	}
}

func (m *Mock) Pause() {
	m.mu.Lock()
	m.pauseCalls++
	panicking := m.panicOnStop
	m.playing = false
	m.mu.Unlock()
	if panicking {
		panic("pause on disposed engine")
	}
}

func (m *Mock) SeekTo(pos time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekCalls = append(m.seekCalls, pos)
	m.position = pos
}

func (m *Mock) Destroy() {
	m.mu.Lock()
	m.destroyCalls++
	panicking := m.panicOnStop
	m.destroyed = true
	m.playing = false
	m.mu.Unlock()
	if panicking {
		panic("destroy on disposed engine")
	}
}

func (m *Mock) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Mock) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *Mock) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// Test helpers

// SetOnStatus wires the status callback a factory would normally attach.
func (m *Mock) SetOnStatus(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = fn
}

// SetPanicOnStop makes Pause and Destroy panic, simulating an engine
// whose native resource was already disposed.
func (m *Mock) SetPanicOnStop(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicOnStop = v
}

func (m *Mock) SetDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

func (m *Mock) SetPlaying(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = v
}

// Report pushes a status snapshot through the attached callback, as the
// real engine's ticker would.
func (m *Mock) Report(st Status) {
	m.mu.Lock()
	fn := m.onStatus
	m.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (m *Mock) PlayCalls() int    { m.mu.Lock(); defer m.mu.Unlock(); return m.playCalls }
func (m *Mock) PauseCalls() int   { m.mu.Lock(); defer m.mu.Unlock(); return m.pauseCalls }
func (m *Mock) DestroyCalls() int { m.mu.Lock(); defer m.mu.Unlock(); return m.destroyCalls }
func (m *Mock) Destroyed() bool   { m.mu.Lock(); defer m.mu.Unlock(); return m.destroyed }

func (m *Mock) SeekCalls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.seekCalls))
	copy(out, m.seekCalls)
	return out
}

// Verify Mock implements Handle at compile time.
var _ Handle = (*Mock)(nil)
