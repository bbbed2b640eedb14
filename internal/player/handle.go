// internal/player/handle.go
package player

import (
	"context"
	"time"
)

// Status is a snapshot reported through a handle's status callback on
// position, duration or play-state changes and on natural completion.
type Status struct {
	Position time.Duration
	Duration time.Duration
	Playing  bool
	Finished bool
}

// Handle is one attached instance of the underlying audio engine.
// Implementations may become ready asynchronously after construction;
// the ShouldPlay predicate is consulted at that point.
type Handle interface {
	Play()
	Pause()
	SeekTo(pos time.Duration)
	Destroy()
	Position() time.Duration
	Duration() time.Duration
	IsPlaying() bool
}

// HandleOptions configure a handle at construction time.
type HandleOptions struct {
	// OnStatus is invoked on position/duration/playing changes and once
	// with Finished set when the track ends naturally. May be nil.
	OnStatus func(Status)

	// ShouldPlay is consulted when the handle becomes ready; when it
	// returns false the handle starts paused. May be nil (autoplay).
	ShouldPlay func() bool
}

// Factory constructs a handle bound to a stream URL. Construction may
// block on network or decoder setup; the context bounds that work.
type Factory func(ctx context.Context, url string, opts HandleOptions) (Handle, error)
