package playback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gulldan/subsonic-player-sub000/internal/errmsg"
	"github.com/gulldan/subsonic-player-sub000/internal/player"
	"github.com/gulldan/subsonic-player-sub000/internal/playlist"
)

const (
	waitTimeout = 2 * time.Second
	waitTick    = 2 * time.Millisecond
)

type fakeCatalog struct {
	mu         sync.Mutex
	scrobbles  []string
	nowPlaying []string
}

func (c *fakeCatalog) StreamURL(id string) string {
	return "https://music.test/rest/stream?id=" + id
}

func (c *fakeCatalog) Scrobble(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrobbles = append(c.scrobbles, id)
	return nil
}

func (c *fakeCatalog) NowPlaying(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowPlaying = append(c.nowPlaying, id)
	return nil
}

func (c *fakeCatalog) scrobbleCount(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.scrobbles {
		if s == id {
			n++
		}
	}
	return n
}

// fakeEngine builds mock handles, optionally delaying or failing
// construction per track id.
type fakeEngine struct {
	mu      sync.Mutex
	delays  map[string]time.Duration
	errs    map[string]error
	handles []*fakeHandle
}

type fakeHandle struct {
	*player.Mock
	trackID string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		delays: make(map[string]time.Duration),
		errs:   make(map[string]error),
	}
}

func trackIDFromURL(url string) string {
	i := strings.LastIndex(url, "id=")
	if i < 0 {
		return url
	}
	return url[i+3:]
}

func (e *fakeEngine) factory(_ context.Context, url string, opts player.HandleOptions) (player.Handle, error) {
	id := trackIDFromURL(url)

	e.mu.Lock()
	delay := e.delays[id]
	err := e.errs[id]
	e.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}

	h := &fakeHandle{Mock: player.NewMock(), trackID: id}
	h.SetOnStatus(opts.OnStatus)
	if opts.ShouldPlay == nil || opts.ShouldPlay() {
		h.Play()
	}

	e.mu.Lock()
	e.handles = append(e.handles, h)
	e.mu.Unlock()
	return h, nil
}

func (e *fakeEngine) setDelay(id string, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delays[id] = d
}

func (e *fakeEngine) setErr(id string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[id] = err
}

func (e *fakeEngine) handleFor(id string) *fakeHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.handles) - 1; i >= 0; i-- {
		if e.handles[i].trackID == id {
			return e.handles[i]
		}
	}
	return nil
}

func (e *fakeEngine) handleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

func makeTracks(ids ...string) []playlist.Track {
	out := make([]playlist.Track, len(ids))
	for i, id := range ids {
		out[i] = playlist.Track{ID: id, Title: "Track " + id, Duration: 3 * time.Minute}
	}
	return out
}

func newTestService(t *testing.T) (Service, *fakeEngine, *fakeCatalog) {
	t.Helper()
	engine := newFakeEngine()
	catalog := &fakeCatalog{}
	svc := New(Options{
		Factory: engine.factory,
		Catalog: catalog,
	})
	t.Cleanup(func() { _ = svc.Close() })
	return svc, engine, catalog
}

func waitForTrack(t *testing.T, svc Service, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		ct := svc.CurrentTrack()
		return ct != nil && ct.ID == id && !svc.IsLoading()
	}, waitTimeout, waitTick, "track %s never became current", id)
}

func TestService_PlayAll(t *testing.T) {
	svc, engine, _ := newTestService(t)

	svc.PlayAll(makeTracks("a", "b", "c"))
	waitForTrack(t, svc, "a")

	assert.Equal(t, StatePlaying, svc.State())
	assert.Equal(t, 0, svc.QueueIndex())
	assert.Equal(t, 3, svc.QueueLen())
	require.NotNil(t, engine.handleFor("a"))
	assert.True(t, engine.handleFor("a").IsPlaying())
}

func TestService_PlayAll_EmptyIsNoop(t *testing.T) {
	svc, engine, _ := newTestService(t)

	svc.PlayAll(nil)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateStopped, svc.State())
	assert.Equal(t, 0, svc.QueueLen())
	assert.Zero(t, engine.handleCount(), "no load should have started")
}

func TestService_LastLoadWins(t *testing.T) {
	svc, engine, _ := newTestService(t)
	engine.setDelay("slow", 40*time.Millisecond)

	tracks := makeTracks("slow", "fast")
	svc.PlayFrom(tracks, 0) // slow
	// Let the slow load reach its factory before superseding it, so the
	// stale handle actually gets constructed and must be torn down.
	time.Sleep(10 * time.Millisecond)
	svc.PlayFrom(tracks, 1) // fast supersedes it

	waitForTrack(t, svc, "fast")

	// The slow handle finishes constructing after being superseded and
	// must be torn down exactly once, never surfacing as current.
	require.Eventually(t, func() bool {
		h := engine.handleFor("slow")
		return h != nil && h.Destroyed()
	}, waitTimeout, waitTick)

	slow := engine.handleFor("slow")
	assert.Equal(t, 1, slow.DestroyCalls())
	assert.Equal(t, "fast", svc.CurrentTrack().ID)
	assert.False(t, engine.handleFor("fast").Destroyed())
	assert.False(t, svc.IsLoading(), "loading flag belongs to the latest load")
}

func TestService_PauseDuringLoadHonored(t *testing.T) {
	svc, engine, _ := newTestService(t)
	engine.setDelay("a", 30*time.Millisecond)

	svc.PlayAll(makeTracks("a"))
	svc.Pause()

	waitForTrack(t, svc, "a")

	h := engine.handleFor("a")
	require.NotNil(t, h)
	assert.False(t, h.IsPlaying(), "handle should come up paused")
	assert.False(t, svc.IsPlaying())
	assert.Equal(t, StatePaused, svc.State())
}

func TestService_PauseResume(t *testing.T) {
	svc, engine, _ := newTestService(t)

	svc.PlayAll(makeTracks("a"))
	waitForTrack(t, svc, "a")

	svc.Pause()
	assert.False(t, svc.IsPlaying())
	h := engine.handleFor("a")
	assert.False(t, h.IsPlaying())

	svc.Resume()
	assert.True(t, svc.IsPlaying())
	assert.True(t, h.IsPlaying())
	assert.Equal(t, 1, engine.handleCount(), "resume with a live handle must not reload")
}

func TestService_TogglePlayPause(t *testing.T) {
	svc, engine, _ := newTestService(t)

	svc.PlayAll(makeTracks("a"))
	waitForTrack(t, svc, "a")

	svc.TogglePlayPause()
	assert.False(t, engine.handleFor("a").IsPlaying())
	svc.TogglePlayPause()
	assert.True(t, engine.handleFor("a").IsPlaying())
}

func TestService_PlayKeepsQueueWhenTrackPresent(t *testing.T) {
	svc, _, _ := newTestService(t)

	tracks := makeTracks("a", "b", "c")
	svc.PlayAll(tracks)
	waitForTrack(t, svc, "a")

	svc.Play(tracks[1])
	waitForTrack(t, svc, "b")

	assert.Equal(t, 3, svc.QueueLen(), "playing a queued track must not replace the queue")
	assert.Equal(t, 1, svc.QueueIndex())
}

func TestService_PlayReplacesQueueWhenTrackAbsent(t *testing.T) {
	svc, _, _ := newTestService(t)

	svc.PlayAll(makeTracks("a", "b"))
	waitForTrack(t, svc, "a")

	svc.Play(playlist.Track{ID: "x", Title: "Track x"})
	waitForTrack(t, svc, "x")

	assert.Equal(t, 1, svc.QueueLen())
	assert.Equal(t, 0, svc.QueueIndex())
}

func TestService_TrackEndAdvances(t *testing.T) {
	svc, engine, _ := newTestService(t)

	svc.PlayAll(makeTracks("a", "b"))
	waitForTrack(t, svc, "a")

	engine.handleFor("a").Report(player.Status{
		Position: 3 * time.Minute,
		Duration: 3 * time.Minute,
		Finished: true,
	})

	waitForTrack(t, svc, "b")
	assert.Equal(t, 1, svc.QueueIndex())
	assert.Equal(t, StatePlaying, svc.State())
}

func TestService_TrackEndStopsAtQueueEnd(t *testing.T) {
	svc, engine, _ := newTestService(t)

	svc.PlayAll(makeTracks("a"))
	waitForTrack(t, svc, "a")

	engine.handleFor("a").Report(player.Status{Finished: true})

	require.Eventually(t, func() bool { return !svc.IsPlaying() }, waitTimeout, waitTick)
	assert.Equal(t, 0, svc.QueueIndex(), "index stays on the last track")
	assert.Equal(t, 1, engine.handleCount(), "no new load at queue end")
}

func TestService_TrackEndRepeatAllWraps(t *testing.T) {
	svc, engine, _ := newTestService(t)
	svc.SetRepeatMode(playlist.RepeatAll)

	svc.PlayFrom(makeTracks("a", "b"), 1)
	waitForTrack(t, svc, "b")

	engine.handleFor("b").Report(player.Status{Finished: true})

	waitForTrack(t, svc, "a")
	assert.Equal(t, 0, svc.QueueIndex())
}

func TestService_TrackEndRepeatOneReplaysInPlace(t *testing.T) {
	svc, engine, _ := newTestService(t)
	svc.SetRepeatMode(playlist.RepeatOne)

	svc.PlayAll(makeTracks("a", "b"))
	waitForTrack(t, svc, "a")
	h := engine.handleFor("a")

	h.Report(player.Status{Finished: true})

	require.Eventually(t, func() bool {
		return len(h.SeekCalls()) == 1 && h.SeekCalls()[0] == 0
	}, waitTimeout, waitTick, "repeat-one should seek the same handle to zero")
	assert.Equal(t, 1, engine.handleCount(), "repeat-one must not reload")
	assert.Equal(t, 0, svc.QueueIndex())
	assert.True(t, h.IsPlaying())
}

func TestService_NextPrevious(t *testing.T) {
	svc, _, _ := newTestService(t)

	svc.PlayAll(makeTracks("a", "b", "c"))
	waitForTrack(t, svc, "a")

	svc.Next()
	waitForTrack(t, svc, "b")

	svc.Previous()
	waitForTrack(t, svc, "a")
}

func TestService_NextAtEndIsNoop(t *testing.T) {
	svc, engine, _ := newTestService(t)

	svc.PlayFrom(makeTracks("a", "b"), 1)
	waitForTrack(t, svc, "b")

	svc.Next()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "b", svc.CurrentTrack().ID)
	assert.Equal(t, 1, engine.handleCount())
	assert.True(t, svc.IsPlaying(), "playback keeps running")
}

func TestService_PreviousRestartsWhenPastThreshold(t *testing.T) {
	svc, engine, _ := newTestService(t)

	svc.PlayFrom(makeTracks("a", "b"), 1)
	waitForTrack(t, svc, "b")

	svc.Position().Force(10 * time.Second)
	svc.Previous()

	h := engine.handleFor("b")
	require.Eventually(t, func() bool { return len(h.SeekCalls()) == 1 }, waitTimeout, waitTick)
	assert.Equal(t, time.Duration(0), h.SeekCalls()[0])
	assert.Equal(t, "b", svc.CurrentTrack().ID, "restart, not step back")
	assert.Equal(t, time.Duration(0), svc.Position().Get())
}

func TestService_SeekToClampsNegative(t *testing.T) {
	svc, engine, _ := newTestService(t)

	svc.PlayAll(makeTracks("a"))
	waitForTrack(t, svc, "a")

	svc.SeekTo(-5 * time.Second)

	h := engine.handleFor("a")
	require.Len(t, h.SeekCalls(), 1)
	assert.Equal(t, time.Duration(0), h.SeekCalls()[0])
}

func TestService_LoadErrorAndRetry(t *testing.T) {
	svc, engine, _ := newTestService(t)
	loadErr := errmsg.WithKind(errmsg.KindAuth, errors.New("401 unauthorized"))
	engine.setErr("a", loadErr)

	sub := svc.Subscribe()
	defer sub.Cancel()

	svc.PlayAll(makeTracks("a", "b"))

	require.Eventually(t, func() bool { return svc.LoadError() != nil }, waitTimeout, waitTick)
	assert.False(t, svc.IsPlaying())
	assert.Equal(t, 0, svc.QueueIndex(), "failed load leaves the queue untouched")
	assert.Equal(t, errmsg.KindAuth.Message(), svc.LoadErrorMessage())

	var errEv *Error
	deadline := time.After(waitTimeout)
	for errEv == nil {
		select {
		case ev := <-sub.Events():
			if e, ok := ev.(Error); ok {
				errEv = &e
			}
		case <-deadline:
			t.Fatal("no error event received")
		}
	}
	assert.Equal(t, errmsg.KindAuth, errEv.Kind)
	assert.Equal(t, errmsg.OpLoadTrack, errEv.Op)
	require.NotNil(t, errEv.Track)
	assert.Equal(t, "a", errEv.Track.ID)

	// Fix the backend and retry the same track.
	engine.setErr("a", nil)
	svc.Retry()

	waitForTrack(t, svc, "a")
	assert.NoError(t, svc.LoadError())
	assert.True(t, svc.IsPlaying())
}

func TestService_ResumeReloadsAfterFailure(t *testing.T) {
	svc, engine, _ := newTestService(t)
	engine.setErr("a", errors.New("boom"))

	svc.PlayAll(makeTracks("a"))
	require.Eventually(t, func() bool { return svc.LoadError() != nil }, waitTimeout, waitTick)

	engine.setErr("a", nil)
	svc.Resume()

	waitForTrack(t, svc, "a")
	assert.True(t, svc.IsPlaying())
}

func TestService_ShuffleAndPlay(t *testing.T) {
	engine := newFakeEngine()
	svc := New(Options{
		Factory: engine.factory,
		Catalog: &fakeCatalog{},
		Rand:    func() float64 { return 0.95 },
	})
	t.Cleanup(func() { _ = svc.Close() })

	svc.ShuffleAndPlay(makeTracks("a", "b", "c"))

	// 0.95 * 3 picks canonical index 2, pinned first in the projection.
	waitForTrack(t, svc, "c")
	assert.True(t, svc.Shuffle())
	assert.Equal(t, 0, svc.QueueIndex())
	assert.Equal(t, 3, svc.QueueLen())
	assert.Equal(t, "c", svc.QueueTracks()[0].ID)
}

func TestService_ShuffleAndPlay_EmptyIsNoop(t *testing.T) {
	svc, engine, _ := newTestService(t)

	svc.ShuffleAndPlay(nil)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, engine.handleCount())
	assert.False(t, svc.Shuffle())
}

func TestService_PlayRandomAvoidsCurrent(t *testing.T) {
	engine := newFakeEngine()
	svc := New(Options{
		Factory: engine.factory,
		Catalog: &fakeCatalog{},
		Rand:    func() float64 { return 0.0 }, // would pick index 0
	})
	t.Cleanup(func() { _ = svc.Close() })

	svc.PlayAll(makeTracks("a", "b", "c"))
	waitForTrack(t, svc, "a")

	svc.PlayRandom()

	// Collision with the current index bumps to the next track.
	waitForTrack(t, svc, "b")
}

func TestService_HalfPlayScrobblesOnce(t *testing.T) {
	svc, engine, catalog := newTestService(t)

	svc.PlayAll(makeTracks("a"))
	waitForTrack(t, svc, "a")
	h := engine.handleFor("a")

	st := player.Status{Position: 95 * time.Second, Duration: 3 * time.Minute, Playing: true}
	h.Report(st)
	h.Report(st)
	st.Position = 2 * time.Minute
	h.Report(st)

	require.Eventually(t, func() bool { return catalog.scrobbleCount("a") == 1 }, waitTimeout, waitTick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, catalog.scrobbleCount("a"), "scrobble fires once per load")
}

func TestService_StaleStatusIgnored(t *testing.T) {
	svc, engine, _ := newTestService(t)

	svc.PlayAll(makeTracks("a", "b"))
	waitForTrack(t, svc, "a")
	stale := engine.handleFor("a")

	svc.Next()
	waitForTrack(t, svc, "b")

	svc.Position().Force(30 * time.Second)
	stale.Report(player.Status{Position: 5 * time.Second, Playing: true})

	assert.Equal(t, 30*time.Second, svc.Position().Get(), "stale tick must not move the position")
}

func TestService_QueueEditingEvents(t *testing.T) {
	svc, _, _ := newTestService(t)

	svc.PlayAll(makeTracks("a", "b", "c"))
	waitForTrack(t, svc, "a")

	sub := svc.Subscribe()
	defer sub.Cancel()

	svc.AddToQueue(playlist.Track{ID: "d"})
	assert.Equal(t, 4, svc.QueueLen())

	svc.MoveInQueue(3, 0)
	assert.Equal(t, 1, svc.QueueIndex(), "index follows the current track")

	svc.RemoveFromQueue(0)
	assert.Equal(t, 0, svc.QueueIndex())
	assert.Equal(t, 3, svc.QueueLen())

	svc.ClearQueue()
	assert.Equal(t, 1, svc.QueueLen())
	assert.Equal(t, "a", svc.QueueTracks()[0].ID)

	// Every edit above published a queue event.
	events := 0
	for {
		select {
		case ev := <-sub.Events():
			if _, ok := ev.(QueueChange); ok {
				events++
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, 4, events)
}

func TestService_RestoreQueueDoesNotPlay(t *testing.T) {
	svc, engine, _ := newTestService(t)

	svc.RestoreQueue(makeTracks("a", "b"), 1, playlist.RepeatAll, false)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, engine.handleCount())
	assert.Equal(t, StateStopped, svc.State())
	assert.Equal(t, 1, svc.QueueIndex())
	assert.Equal(t, playlist.RepeatAll, svc.RepeatMode())
}

func TestService_CycleRepeatMode(t *testing.T) {
	svc, _, _ := newTestService(t)

	assert.Equal(t, playlist.RepeatAll, svc.CycleRepeatMode())
	assert.Equal(t, playlist.RepeatOne, svc.CycleRepeatMode())
	assert.Equal(t, playlist.RepeatOff, svc.CycleRepeatMode())
}

func TestService_EventsOnPlay(t *testing.T) {
	svc, _, _ := newTestService(t)
	sub := svc.Subscribe()
	defer sub.Cancel()

	svc.PlayAll(makeTracks("a"))
	waitForTrack(t, svc, "a")

	var sawQueue, sawTrack, sawState bool
	deadline := time.After(waitTimeout)
	for !(sawQueue && sawTrack && sawState) {
		select {
		case ev := <-sub.Events():
			switch e := ev.(type) {
			case QueueChange:
				sawQueue = true
			case TrackChange:
				sawTrack = true
				require.NotNil(t, e.Current)
				assert.Equal(t, "a", e.Current.ID)
				assert.Nil(t, e.Previous)
			case StateChange:
				sawState = true
				assert.Equal(t, StatePlaying, e.Current)
			}
		case <-deadline:
			t.Fatalf("missing events: queue=%v track=%v state=%v", sawQueue, sawTrack, sawState)
		}
	}
}

func TestService_CloseTearsDown(t *testing.T) {
	svc, engine, _ := newTestService(t)

	svc.PlayAll(makeTracks("a"))
	waitForTrack(t, svc, "a")
	sub := svc.Subscribe()

	require.NoError(t, svc.Close())

	assert.True(t, engine.handleFor("a").Destroyed())
	_, open := <-sub.Events()
	assert.False(t, open, "subscriptions close on shutdown")
	require.NoError(t, svc.Close(), "Close is idempotent")
}
