package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gulldan/subsonic-player-sub000/internal/config"
	"github.com/gulldan/subsonic-player-sub000/internal/engine"
	"github.com/gulldan/subsonic-player-sub000/internal/errmsg"
	"github.com/gulldan/subsonic-player-sub000/internal/lastfm"
	"github.com/gulldan/subsonic-player-sub000/internal/playback"
	"github.com/gulldan/subsonic-player-sub000/internal/playlist"
	"github.com/gulldan/subsonic-player-sub000/internal/state"
	"github.com/gulldan/subsonic-player-sub000/internal/subsonic"
)

func main() {
	var (
		lastfmAuth = flag.Bool("lastfm-auth", false, "link a Last.fm account and exit")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if err := run(logger, *lastfmAuth); err != nil {
		logger.Error(errmsg.Format(errmsg.OpInitialize, err))
		os.Exit(1)
	}
}

func run(logger *log.Logger, lastfmAuth bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stateMgr, err := state.Open()
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer stateMgr.Close()

	if lastfmAuth {
		return runLastfmAuth(logger, cfg, stateMgr)
	}

	if !cfg.HasServerConfig() {
		return errors.New("server not configured: set [server] url, username and password in config.toml")
	}

	client := subsonic.New(cfg.Server.URL, cfg.Server.Username, cfg.Server.Password, cfg.Server.ClientName)

	ctx := context.Background()
	if err := client.Ping(ctx); err != nil {
		logger.Warn(errmsg.Format(errmsg.OpCatalogPing, err))
	}

	playerCfg := cfg.GetPlayerConfig()
	svc := playback.New(playback.Options{
		Factory:   engine.Factory(),
		Catalog:   client,
		Scrobbler: buildScrobbler(logger, cfg, stateMgr),
		Position:  playback.NewPositionStore(time.Duration(playerCfg.PositionIntervalMs) * time.Millisecond),
		Logger:    logger.WithPrefix("playback"),
	})
	defer svc.Close()

	restoreOrSeed(ctx, logger, svc, stateMgr, client, playerCfg.StartupQueueSize)

	sub := svc.Subscribe()
	defer sub.Cancel()
	go persistLoop(logger, sub, svc, stateMgr)

	svc.Resume()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig)

	if err := stateMgr.SaveQueueNow(snapshot(svc)); err != nil {
		logger.Warn(errmsg.Format(errmsg.OpQueuePersist, err))
	}
	return nil
}

// restoreOrSeed reinstates the saved queue, or fills it with random
// tracks from the server on a fresh start.
func restoreOrSeed(ctx context.Context, logger *log.Logger, svc playback.Service, stateMgr *state.Manager, client *subsonic.Client, seedSize int) {
	saved, err := stateMgr.GetQueue()
	if err != nil {
		logger.Warn(errmsg.Format(errmsg.OpQueueRestore, err))
	} else if saved != nil && len(saved.Tracks) > 0 {
		svc.RestoreQueue(saved.Tracks, saved.CurrentIndex, saved.RepeatMode, saved.Shuffle)
		logger.Info("queue restored", "tracks", len(saved.Tracks), "index", saved.CurrentIndex)
		return
	}

	songs, err := client.GetRandomSongs(ctx, seedSize)
	if err != nil {
		logger.Warn(errmsg.Format(errmsg.OpCatalogSearch, err))
		return
	}
	tracks := make([]playlist.Track, 0, len(songs))
	for _, s := range songs {
		tracks = append(tracks, s.Track())
	}
	if len(tracks) == 0 {
		logger.Info("server returned no tracks to seed the queue")
		return
	}
	svc.RestoreQueue(tracks, 0, playlist.RepeatOff, false)
	logger.Info("queue seeded with random tracks", "tracks", len(tracks))
}

// persistLoop saves a queue snapshot on every queue or mode change and
// logs playback events.
func persistLoop(logger *log.Logger, sub *playback.Subscription, svc playback.Service, stateMgr *state.Manager) {
	for ev := range sub.Events() {
		switch e := ev.(type) {
		case playback.QueueChange, playback.ModeChange:
			stateMgr.SaveQueue(snapshot(svc))
		case playback.TrackChange:
			stateMgr.SaveQueue(snapshot(svc))
			if e.Current != nil {
				logger.Info("now playing", "artist", e.Current.Artist, "title", e.Current.Title)
			}
		case playback.StateChange:
			logger.Debug("state changed", "from", e.Previous, "to", e.Current)
		case playback.Error:
			logger.Warn(errmsg.Format(e.Op, e.Err), "kind", e.Kind, "message", e.Kind.Message())
		}
	}
}

// snapshot captures the canonical queue order for persistence. The
// shuffled projection is rebuilt on restore; only the current track
// survives a restart, pinned first.
func snapshot(svc playback.Service) state.QueueState {
	canonical := svc.QueueCanonical()

	var currentID string
	active := svc.QueueTracks()
	if qi := svc.QueueIndex(); qi >= 0 && qi < len(active) {
		currentID = active[qi].ID
	}

	tracks := make([]playlist.Track, len(canonical))
	index := -1
	for i, t := range canonical {
		tracks[i] = playlist.Track{
			ID:       t.ID,
			Title:    t.Title,
			Artist:   t.Artist,
			Album:    t.Album,
			CoverArt: t.CoverArt,
			Duration: t.Duration,
			Starred:  t.Starred,
			Rating:   t.Rating,
		}
		if t.ID == currentID && index < 0 {
			index = i
		}
	}

	return state.QueueState{
		CurrentIndex: index,
		RepeatMode:   svc.RepeatMode(),
		Shuffle:      svc.Shuffle(),
		Tracks:       tracks,
	}
}

// lastfmScrobbler adapts the Last.fm client to the playback service.
type lastfmScrobbler struct {
	client *lastfm.Client
}

func (s *lastfmScrobbler) NowPlaying(t playback.Track) error {
	return s.client.UpdateNowPlaying(lastfm.ScrobbleTrack{
		Artist:   t.Artist,
		Track:    t.Title,
		Album:    t.Album,
		Duration: t.Duration,
	})
}

func (s *lastfmScrobbler) Scrobble(t playback.Track, startedAt time.Time) error {
	return s.client.Scrobble(lastfm.ScrobbleTrack{
		Artist:    t.Artist,
		Track:     t.Title,
		Album:     t.Album,
		Duration:  t.Duration,
		Timestamp: startedAt,
	})
}

func buildScrobbler(logger *log.Logger, cfg *config.Config, stateMgr *state.Manager) playback.Scrobbler {
	if !cfg.HasLastfmConfig() {
		return nil
	}
	session, err := stateMgr.GetLastfmSession()
	if err != nil || session == nil {
		logger.Info("lastfm configured but not linked; run with -lastfm-auth")
		return nil
	}

	client := lastfm.New(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret)
	client.SetSessionKey(session.SessionKey)
	logger.Info("lastfm scrobbling enabled", "user", session.Username)
	return &lastfmScrobbler{client: client}
}

// runLastfmAuth walks the desktop authorization flow: open the
// authorize page, wait for the local callback, store the session.
func runLastfmAuth(logger *log.Logger, cfg *config.Config, stateMgr *state.Manager) error {
	if !cfg.HasLastfmConfig() {
		return errors.New("lastfm not configured: set [lastfm] api_key and api_secret in config.toml")
	}

	client := lastfm.New(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret)
	token, err := client.GetToken()
	if err != nil {
		return err
	}

	authServer, err := lastfm.StartAuthServer()
	if err != nil {
		return err
	}
	defer authServer.Shutdown()

	authURL := client.GetAuthURL(token)
	logger.Info("authorize this application in your browser", "url", authURL)
	if err := lastfm.OpenBrowser(authURL); err != nil {
		logger.Warn("could not open browser, visit the URL manually", "err", err)
	}

	select {
	case received := <-authServer.TokenChan():
		if received != "" {
			token = received
		}
	case <-time.After(5 * time.Minute):
		return errors.New("lastfm authorization timed out")
	}

	username, sessionKey, err := client.GetSession(token)
	if err != nil {
		return err
	}
	if err := stateMgr.SaveLastfmSession(username, sessionKey); err != nil {
		return err
	}

	logger.Info("lastfm account linked", "user", username)
	return nil
}
