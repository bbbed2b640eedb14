package playback

import (
	"context"
	"time"

	"github.com/gulldan/subsonic-player-sub000/internal/errmsg"
	"github.com/gulldan/subsonic-player-sub000/internal/player"
	"github.com/gulldan/subsonic-player-sub000/internal/playlist"
)

const scrobbleTimeout = 10 * time.Second

// loadAndPlay starts an asynchronous load of track. It mints a new
// session (tearing down whatever was playing), optimistically resets
// the presentation state, and hands the slow work to a goroutine.
func (s *service) loadAndPlay(track playlist.Track) {
	if s.factory == nil || s.catalog == nil {
		s.log.Warn("playback not wired, ignoring play request", "track", track.ID)
		return
	}

	session := s.coord.StartSession()
	load := s.loadSeq.Add(1)

	s.mu.Lock()
	s.loading = true
	s.loadErr = nil
	s.scrobbled = false
	s.playing = false
	s.duration = track.Duration
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.pos.Force(0)
	s.log.Debug("loading track", "track", track.ID, "title", track.Title, "session", session)

	go s.runLoad(session, load, track)
}

// superseded reports whether a newer load has started since load was
// issued. A superseded load must produce no observable effect at all,
// not even clearing the loading flag, which now belongs to the newer
// load.
func (s *service) superseded(load uint64) bool {
	return s.loadSeq.Load() != load
}

func (s *service) runLoad(session, load uint64, track playlist.Track) {
	url := s.catalog.StreamURL(track.ID)

	if s.superseded(load) {
		return
	}

	handle, err := s.factory(context.Background(), url, player.HandleOptions{
		OnStatus: func(st player.Status) {
			s.onStatus(session, track, st)
		},
		ShouldPlay: func() bool {
			return s.playIntent() && s.coord.IsActive(session)
		},
	})
	if err != nil {
		if s.superseded(load) || !s.coord.IsActive(session) {
			return
		}
		s.failLoad(track, err)
		return
	}

	// Re-check before registering: the factory may have taken a while
	// and a newer load could have started meanwhile.
	if s.superseded(load) || !s.coord.IsActive(session) {
		player.Teardown(handle)
		return
	}
	if !s.coord.Register(session, handle) {
		return
	}

	s.mu.Lock()
	prevState := s.stateLocked()
	prevTrack := s.currentCopyLocked()
	s.current = &track
	s.playing = s.intent
	s.loading = false
	s.loadErr = nil
	if d := handle.Duration(); d > 0 {
		s.duration = d
	}
	cur := s.currentCopyLocked()
	curState := s.stateLocked()
	index := s.queue.CurrentIndex()
	s.mu.Unlock()

	s.subs.publish(TrackChange{Previous: prevTrack, Current: cur, Index: index})
	s.emitStateIfChanged(prevState, curState)
	s.log.Info("track loaded", "track", track.ID, "title", track.Title, "playing", curState == StatePlaying)

	s.announceNowPlaying(track)
}

// failLoad records a load failure. The queue and index are left where
// the user put them so Retry can re-attempt the same track.
func (s *service) failLoad(track playlist.Track, err error) {
	kind := errmsg.Classify(err)

	s.mu.Lock()
	prev := s.stateLocked()
	s.loading = false
	s.playing = false
	s.loadErr = err
	cur := s.stateLocked()
	s.mu.Unlock()

	s.emitStateIfChanged(prev, cur)
	t := fromPlaylist(track)
	s.subs.publish(Error{Op: errmsg.OpLoadTrack, Track: &t, Err: err, Kind: kind})
	s.log.Error("track load failed", "track", track.ID, "kind", kind, "err", err)
}

func (s *service) playIntent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intent
}

// onStatus handles an engine status tick. Ticks from superseded
// sessions are dropped wholesale.
func (s *service) onStatus(session uint64, track playlist.Track, st player.Status) {
	if !s.coord.IsActive(session) {
		return
	}

	s.pos.Set(st.Position)

	var scrobbleNow bool
	s.mu.Lock()
	prev := s.stateLocked()
	if st.Duration > 0 {
		s.duration = st.Duration
	}
	s.playing = st.Playing
	if !s.scrobbled && st.Duration > 0 && st.Position >= st.Duration/2 {
		s.scrobbled = true
		scrobbleNow = true
	}
	startedAt := s.startedAt
	cur := s.stateLocked()
	s.mu.Unlock()

	s.emitStateIfChanged(prev, cur)

	if scrobbleNow {
		go s.submitScrobble(track, startedAt)
	}
	if st.Finished {
		s.handleTrackEnd()
	}
}

// handleTrackEnd advances the queue when a track finishes. A flurry of
// end notifications from the same handle triggers a single advance.
func (s *service) handleTrackEnd() {
	if !s.advancing.CompareAndSwap(false, true) {
		return
	}
	defer s.advancing.Store(false)

	s.mu.Lock()
	repeat := s.queue.RepeatMode()
	length := s.queue.Len()
	current := s.queue.CurrentIndex()
	s.mu.Unlock()

	if repeat == playlist.RepeatOne {
		// Replay in place without reloading.
		s.coord.SeekActive(0)
		s.pos.Force(0)
		s.coord.PlayActive()
		s.log.Debug("repeating current track")
		return
	}

	next, ok := playlist.ResolveNext(length, current, repeat)
	if !ok {
		s.mu.Lock()
		prev := s.stateLocked()
		s.intent = false
		s.playing = false
		cur := s.stateLocked()
		s.mu.Unlock()
		s.emitStateIfChanged(prev, cur)
		s.log.Debug("reached end of queue")
		return
	}

	s.mu.Lock()
	track := s.queue.SetCurrent(next)
	var ev QueueChange
	if track != nil {
		ev = s.emitQueueLocked()
	}
	s.mu.Unlock()

	if track == nil {
		return
	}
	s.subs.publish(ev)
	s.loadAndPlay(*track)
}

// announceNowPlaying tells the catalog and the scrobbler that the track
// started. Best effort on a background goroutine.
func (s *service) announceNowPlaying(track playlist.Track) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), scrobbleTimeout)
		defer cancel()
		if err := s.catalog.NowPlaying(ctx, track.ID); err != nil {
			s.log.Debug("now playing notification failed", "track", track.ID, "err", err)
		}
		if s.scrobbler != nil {
			if err := s.scrobbler.NowPlaying(fromPlaylist(track)); err != nil {
				s.log.Debug("scrobbler now playing failed", "track", track.ID, "err", err)
			}
		}
	}()
}

// submitScrobble records the play once half the track has been heard.
// Fired at most once per load; failures never touch playback state.
func (s *service) submitScrobble(track playlist.Track, startedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), scrobbleTimeout)
	defer cancel()
	if err := s.catalog.Scrobble(ctx, track.ID); err != nil {
		s.log.Warn(errmsg.Format(errmsg.OpScrobble, err), "track", track.ID)
	}
	if s.scrobbler != nil {
		if err := s.scrobbler.Scrobble(fromPlaylist(track), startedAt); err != nil {
			s.log.Debug("scrobbler submit failed", "track", track.ID, "err", err)
		}
	}
}
