// Package playback is the client-side playback core: it owns the queue,
// coordinates asynchronous track loads with last-load-wins semantics,
// tracks play intent versus actual engine state, and publishes events.
package playback

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gulldan/subsonic-player-sub000/internal/player"
	"github.com/gulldan/subsonic-player-sub000/internal/playlist"
)

// Catalog resolves tracks to playable streams and records plays. The
// subsonic client satisfies it.
type Catalog interface {
	StreamURL(id string) string
	Scrobble(ctx context.Context, id string) error
	NowPlaying(ctx context.Context, id string) error
}

// Scrobbler mirrors plays to an external service such as Last.fm.
// Failures are logged and swallowed; scrobbling never affects playback.
type Scrobbler interface {
	NowPlaying(t Track) error
	Scrobble(t Track, startedAt time.Time) error
}

// Service is the playback facade. All methods are safe for concurrent
// use and all of them return quickly; track loading happens on
// background goroutines.
type Service interface {
	// Transport.
	Play(track playlist.Track)
	PlayFrom(tracks []playlist.Track, index int)
	PlayAll(tracks []playlist.Track)
	ShuffleAndPlay(tracks []playlist.Track)
	PlayRandom()
	Pause()
	Resume()
	TogglePlayPause()
	Next()
	Previous()
	SeekTo(pos time.Duration)
	Retry()

	// Queue editing.
	AddToQueue(track playlist.Track)
	RemoveFromQueue(index int)
	MoveInQueue(from, to int)
	ClearQueue()
	RestoreQueue(tracks []playlist.Track, index int, repeat playlist.RepeatMode, shuffle bool)

	// Modes.
	ToggleShuffle() bool
	SetShuffle(enabled bool)
	Shuffle() bool
	CycleRepeatMode() playlist.RepeatMode
	SetRepeatMode(mode playlist.RepeatMode)
	RepeatMode() playlist.RepeatMode

	// Queries.
	State() State
	IsPlaying() bool
	IsLoading() bool
	CurrentTrack() *Track
	Duration() time.Duration
	LoadError() error
	LoadErrorMessage() string
	QueueTracks() []Track
	QueueCanonical() []Track
	QueueIndex() int
	QueueLen() int

	// Position updates flow through a dedicated store so their
	// frequency never competes with state events.
	Position() *PositionStore

	Subscribe() *Subscription
	Close() error
}

// Options configures a Service. Factory and Catalog are required for
// playback; everything else has a usable default.
type Options struct {
	Factory   player.Factory
	Catalog   Catalog
	Scrobbler Scrobbler

	Queue       *playlist.Queue
	Coordinator *player.Coordinator
	Position    *PositionStore
	Logger      *log.Logger
	Rand        func() float64
}

type service struct {
	mu sync.Mutex

	queue     *playlist.Queue
	coord     *player.Coordinator
	factory   player.Factory
	catalog   Catalog
	scrobbler Scrobbler
	pos       *PositionStore
	log       *log.Logger
	rnd       func() float64

	// loadSeq guards the window between minting a session and touching
	// shared state: a newer load supersedes all observable effects of
	// older ones, including their loading-flag reset.
	loadSeq   atomic.Uint64
	advancing atomic.Bool

	current   *playlist.Track
	duration  time.Duration
	intent    bool // the user wants audio
	playing   bool // the engine is actually producing audio
	loading   bool
	loadErr   error
	scrobbled bool
	startedAt time.Time

	subs   *subscribers
	closed bool
}

var _ Service = (*service)(nil)

// New creates a playback service.
func New(opts Options) Service {
	if opts.Queue == nil {
		opts.Queue = playlist.NewQueue()
	}
	if opts.Coordinator == nil {
		opts.Coordinator = player.NewCoordinator()
	}
	if opts.Position == nil {
		opts.Position = NewPositionStore(0)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	opts.Queue.SetRand(opts.Rand)

	return &service{
		queue:     opts.Queue,
		coord:     opts.Coordinator,
		factory:   opts.Factory,
		catalog:   opts.Catalog,
		scrobbler: opts.Scrobbler,
		pos:       opts.Position,
		log:       opts.Logger,
		rnd:       opts.Rand,
		subs:      newSubscribers(),
	}
}

func (s *service) Position() *PositionStore {
	return s.pos
}

func (s *service) Subscribe() *Subscription {
	return s.subs.add()
}

// Close stops playback and releases every handle and subscriber.
func (s *service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.intent = false
	s.playing = false
	s.mu.Unlock()

	// Invalidate in-flight loads before tearing handles down.
	s.loadSeq.Add(1)
	s.coord.StopAll()
	s.subs.closeAll()
	s.pos.Close()
	return nil
}

// stateLocked derives the coarse state from the playing flag and the
// presence of a current track.
func (s *service) stateLocked() State {
	switch {
	case s.playing:
		return StatePlaying
	case s.current != nil:
		return StatePaused
	default:
		return StateStopped
	}
}

func (s *service) currentCopyLocked() *Track {
	if s.current == nil {
		return nil
	}
	t := fromPlaylist(*s.current)
	return &t
}

func (s *service) emitStateIfChanged(prev, cur State) {
	if prev != cur {
		s.subs.publish(StateChange{Previous: prev, Current: cur})
	}
}

func (s *service) emitQueueLocked() QueueChange {
	return QueueChange{
		Tracks: fromPlaylistSlice(s.queue.Tracks()),
		Index:  s.queue.CurrentIndex(),
	}
}
