package playback

import "sync"

const subscriptionBuffer = 32

// Subscription is a registered event listener. Events are delivered on
// a buffered channel; a subscriber that falls behind loses events
// rather than blocking playback.
type Subscription struct {
	ch     chan Event
	once   sync.Once
	cancel func()
}

// Events returns the channel events are delivered on. The channel is
// closed when the subscription is cancelled or the service shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Cancel unregisters the subscription and closes its channel.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		close(s.ch)
	})
}

type subscribers struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newSubscribers() *subscribers {
	return &subscribers{subs: make(map[*Subscription]struct{})}
}

func (s *subscribers) add() *Subscription {
	sub := &Subscription{ch: make(chan Event, subscriptionBuffer)}
	sub.cancel = func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// publish fans the event out without blocking. Full channels drop.
func (s *subscribers) publish(ev Event) {
	s.mu.Lock()
	targets := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[*Subscription]struct{})
	s.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
}
