package playback

import (
	"time"

	"github.com/gulldan/subsonic-player-sub000/internal/errmsg"
	"github.com/gulldan/subsonic-player-sub000/internal/playlist"
)

// State is the coarse playback state.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Event is a playback notification pushed to subscribers.
type Event interface {
	isPlaybackEvent()
}

// StateChange signals a transition between stopped, playing and paused.
type StateChange struct {
	Previous State
	Current  State
}

// TrackChange signals that a different track became current. Previous
// is nil when playback starts from nothing.
type TrackChange struct {
	Previous *Track
	Current  *Track
	Index    int
}

// QueueChange signals that the queue contents or index changed. Tracks
// is the active order (the shuffled projection while shuffle is on).
type QueueChange struct {
	Tracks []Track
	Index  int
}

// ModeChange signals a repeat or shuffle mode flip.
type ModeChange struct {
	RepeatMode playlist.RepeatMode
	Shuffle    bool
}

// PositionChange signals an explicit seek. Continuous position updates
// flow through the PositionStore instead.
type PositionChange struct {
	Position time.Duration
}

// Error signals a failed operation together with its classification.
type Error struct {
	Op    errmsg.Op
	Track *Track
	Err   error
	Kind  errmsg.Kind
}

func (StateChange) isPlaybackEvent()    {}
func (TrackChange) isPlaybackEvent()    {}
func (QueueChange) isPlaybackEvent()    {}
func (ModeChange) isPlaybackEvent()     {}
func (PositionChange) isPlaybackEvent() {}
func (Error) isPlaybackEvent()          {}
