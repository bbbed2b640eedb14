package playback

import (
	"time"

	"github.com/gulldan/subsonic-player-sub000/internal/errmsg"
	"github.com/gulldan/subsonic-player-sub000/internal/playlist"
)

// previousRestartThreshold: beyond this position, Previous restarts the
// current track instead of going back a track.
const previousRestartThreshold = 3 * time.Second

// Play starts the given track. If it is already in the queue the index
// jumps to it; otherwise the queue is replaced with just this track.
func (s *service) Play(track playlist.Track) {
	s.mu.Lock()
	s.intent = true
	if idx := s.queue.IndexOf(track.ID); idx >= 0 {
		s.queue.SetCurrent(idx)
	} else {
		s.queue.Replace([]playlist.Track{track}, 0)
	}
	ev := s.emitQueueLocked()
	s.mu.Unlock()

	s.subs.publish(ev)
	s.loadAndPlay(track)
}

// PlayFrom replaces the queue with tracks and starts playback at index.
// An empty slice is a complete no-op.
func (s *service) PlayFrom(tracks []playlist.Track, index int) {
	if len(tracks) == 0 {
		return
	}

	s.mu.Lock()
	s.intent = true
	track := s.queue.Replace(tracks, index)
	ev := s.emitQueueLocked()
	s.mu.Unlock()

	s.subs.publish(ev)
	if track != nil {
		s.loadAndPlay(*track)
	}
}

// PlayAll replaces the queue with tracks and starts from the first.
func (s *service) PlayAll(tracks []playlist.Track) {
	s.PlayFrom(tracks, 0)
}

// ShuffleAndPlay replaces the queue with tracks, enables shuffle and
// starts from a randomly chosen track, which is pinned to the front of
// the shuffled order.
func (s *service) ShuffleAndPlay(tracks []playlist.Track) {
	if len(tracks) == 0 {
		return
	}

	s.mu.Lock()
	s.intent = true
	idx, _ := playlist.ResolveRandom(len(tracks), -1, s.rnd)
	s.queue.SetShuffle(false)
	s.queue.Replace(tracks, idx)
	s.queue.SetShuffle(true)
	track := s.queue.Current()
	var picked playlist.Track
	if track != nil {
		picked = *track
	}
	mode := ModeChange{RepeatMode: s.queue.RepeatMode(), Shuffle: true}
	ev := s.emitQueueLocked()
	s.mu.Unlock()

	s.subs.publish(mode)
	s.subs.publish(ev)
	if track != nil {
		s.loadAndPlay(picked)
	}
}

// PlayRandom jumps to a random track in the queue, never the current
// one while more than one track is queued.
func (s *service) PlayRandom() {
	s.mu.Lock()
	idx, ok := playlist.ResolveRandom(s.queue.Len(), s.queue.CurrentIndex(), s.rnd)
	var picked *playlist.Track
	var ev QueueChange
	if ok {
		s.intent = true
		if t := s.queue.SetCurrent(idx); t != nil {
			c := *t
			picked = &c
		}
		ev = s.emitQueueLocked()
	}
	s.mu.Unlock()

	if picked == nil {
		return
	}
	s.subs.publish(ev)
	s.loadAndPlay(*picked)
}

// Pause clears play intent and pauses the engine if one is active.
func (s *service) Pause() {
	s.mu.Lock()
	prev := s.stateLocked()
	s.intent = false
	s.playing = false
	cur := s.stateLocked()
	s.mu.Unlock()

	s.coord.PauseActive()
	s.emitStateIfChanged(prev, cur)
}

// Resume restores play intent. With a live handle it just unpauses;
// without one (a previous load failed or was torn down) it reloads the
// current queue track.
func (s *service) Resume() {
	hasHandle := s.coord.ActiveHandle() != nil

	s.mu.Lock()
	prev := s.stateLocked()
	s.intent = true
	var reload *playlist.Track
	if hasHandle {
		s.playing = true
	} else if t := s.queue.Current(); t != nil {
		c := *t
		reload = &c
	}
	cur := s.stateLocked()
	s.mu.Unlock()

	if hasHandle {
		s.coord.PlayActive()
		s.emitStateIfChanged(prev, cur)
		return
	}
	if reload != nil {
		s.loadAndPlay(*reload)
	}
}

// TogglePlayPause flips between playing and paused. The engine's own
// report wins over our intent flag when the two disagree.
func (s *service) TogglePlayPause() {
	if h := s.coord.ActiveHandle(); h != nil {
		if h.IsPlaying() {
			s.Pause()
		} else {
			s.Resume()
		}
		return
	}
	s.Resume()
}

// Next skips forward. At the end of the queue with repeat off this is a
// no-op; playback keeps running.
func (s *service) Next() {
	s.mu.Lock()
	next, ok := playlist.ResolveNext(s.queue.Len(), s.queue.CurrentIndex(), s.queue.RepeatMode())
	var picked *playlist.Track
	var ev QueueChange
	if ok {
		s.intent = true
		if t := s.queue.SetCurrent(next); t != nil {
			c := *t
			picked = &c
		}
		ev = s.emitQueueLocked()
	}
	s.mu.Unlock()

	if picked == nil {
		return
	}
	s.subs.publish(ev)
	s.loadAndPlay(*picked)
}

// Previous restarts the current track when more than a few seconds in,
// otherwise steps back through the queue.
func (s *service) Previous() {
	if s.pos.Get() > previousRestartThreshold {
		s.SeekTo(0)
		return
	}

	s.mu.Lock()
	prevIdx, ok := playlist.ResolvePrevious(s.queue.Len(), s.queue.CurrentIndex(), s.queue.RepeatMode())
	var picked *playlist.Track
	var ev QueueChange
	if ok {
		s.intent = true
		if t := s.queue.SetCurrent(prevIdx); t != nil {
			c := *t
			picked = &c
		}
		ev = s.emitQueueLocked()
	}
	s.mu.Unlock()

	if picked == nil {
		// Nothing before this track; restart it instead.
		s.SeekTo(0)
		return
	}
	s.subs.publish(ev)
	s.loadAndPlay(*picked)
}

// SeekTo moves the play head. Negative positions clamp to zero. The
// position store is updated immediately so the UI does not snap back to
// the pre-seek position on the next engine tick.
func (s *service) SeekTo(pos time.Duration) {
	if pos < 0 {
		pos = 0
	}
	s.coord.SeekActive(pos)
	s.pos.Force(pos)
	s.subs.publish(PositionChange{Position: pos})
}

// Retry re-attempts loading the current queue track after a failure.
func (s *service) Retry() {
	s.mu.Lock()
	var picked *playlist.Track
	if t := s.queue.Current(); t != nil {
		s.intent = true
		c := *t
		picked = &c
	}
	s.mu.Unlock()

	if picked == nil {
		return
	}
	s.log.Debug("retrying track", "track", picked.ID)
	s.loadAndPlay(*picked)
}

// AddToQueue appends a track to the end of the queue.
func (s *service) AddToQueue(track playlist.Track) {
	s.mu.Lock()
	s.queue.Add(track)
	ev := s.emitQueueLocked()
	s.mu.Unlock()
	s.subs.publish(ev)
}

// RemoveFromQueue removes the track at index in the active order. The
// currently loaded audio keeps playing even if its queue entry goes.
func (s *service) RemoveFromQueue(index int) {
	s.mu.Lock()
	changed := s.queue.RemoveAt(index)
	ev := s.emitQueueLocked()
	s.mu.Unlock()
	if changed {
		s.subs.publish(ev)
	}
}

// MoveInQueue reorders the active queue.
func (s *service) MoveInQueue(from, to int) {
	s.mu.Lock()
	changed := s.queue.Move(from, to)
	ev := s.emitQueueLocked()
	s.mu.Unlock()
	if changed {
		s.subs.publish(ev)
	}
}

// ClearQueue collapses the queue to the current track (or empties it).
func (s *service) ClearQueue() {
	s.mu.Lock()
	s.queue.Clear()
	ev := s.emitQueueLocked()
	s.mu.Unlock()
	s.subs.publish(ev)
}

// RestoreQueue reinstates a persisted queue without starting playback.
func (s *service) RestoreQueue(tracks []playlist.Track, index int, repeat playlist.RepeatMode, shuffle bool) {
	s.mu.Lock()
	s.queue.SetRepeatMode(repeat)
	s.queue.Replace(tracks, index)
	s.queue.SetShuffle(shuffle)
	mode := ModeChange{RepeatMode: repeat, Shuffle: shuffle}
	ev := s.emitQueueLocked()
	s.mu.Unlock()

	s.subs.publish(mode)
	s.subs.publish(ev)
}

// ToggleShuffle flips shuffle and returns the new value. The queue
// order changes, so a queue event follows the mode event.
func (s *service) ToggleShuffle() bool {
	s.mu.Lock()
	enabled := s.queue.ToggleShuffle()
	mode := ModeChange{RepeatMode: s.queue.RepeatMode(), Shuffle: enabled}
	ev := s.emitQueueLocked()
	s.mu.Unlock()

	s.subs.publish(mode)
	s.subs.publish(ev)
	return enabled
}

// SetShuffle sets the shuffle flag explicitly.
func (s *service) SetShuffle(enabled bool) {
	s.mu.Lock()
	s.queue.SetShuffle(enabled)
	mode := ModeChange{RepeatMode: s.queue.RepeatMode(), Shuffle: s.queue.Shuffle()}
	ev := s.emitQueueLocked()
	s.mu.Unlock()

	s.subs.publish(mode)
	s.subs.publish(ev)
}

func (s *service) Shuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Shuffle()
}

// CycleRepeatMode advances off -> all -> one -> off.
func (s *service) CycleRepeatMode() playlist.RepeatMode {
	s.mu.Lock()
	mode := s.queue.CycleRepeat()
	ev := ModeChange{RepeatMode: mode, Shuffle: s.queue.Shuffle()}
	s.mu.Unlock()

	s.subs.publish(ev)
	return mode
}

func (s *service) SetRepeatMode(mode playlist.RepeatMode) {
	s.mu.Lock()
	s.queue.SetRepeatMode(mode)
	ev := ModeChange{RepeatMode: mode, Shuffle: s.queue.Shuffle()}
	s.mu.Unlock()

	s.subs.publish(ev)
}

func (s *service) RepeatMode() playlist.RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.RepeatMode()
}

func (s *service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *service) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *service) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *service) CurrentTrack() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentCopyLocked()
}

func (s *service) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *service) LoadError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// LoadErrorMessage returns the user-facing message for the last load
// failure, or "" when there is none.
func (s *service) LoadErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr == nil {
		return ""
	}
	return errmsg.Classify(s.loadErr).Message()
}

func (s *service) QueueTracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fromPlaylistSlice(s.queue.Tracks())
}

// QueueCanonical returns the unshuffled track order, for persistence.
func (s *service) QueueCanonical() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fromPlaylistSlice(s.queue.CanonicalTracks())
}

func (s *service) QueueIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.CurrentIndex()
}

func (s *service) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}
