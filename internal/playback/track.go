package playback

import (
	"time"

	"github.com/gulldan/subsonic-player-sub000/internal/playlist"
)

// Track is the presentation copy of a queue track handed out by the
// service. Callers get values, never pointers into the queue.
type Track struct {
	ID       string
	Title    string
	Artist   string
	Album    string
	CoverArt string
	Duration time.Duration
	Starred  bool
	Rating   int
}

func fromPlaylist(t playlist.Track) Track {
	return Track{
		ID:       t.ID,
		Title:    t.Title,
		Artist:   t.Artist,
		Album:    t.Album,
		CoverArt: t.CoverArt,
		Duration: t.Duration,
		Starred:  t.Starred,
		Rating:   t.Rating,
	}
}

func fromPlaylistSlice(tracks []playlist.Track) []Track {
	out := make([]Track, len(tracks))
	for i, t := range tracks {
		out[i] = fromPlaylist(t)
	}
	return out
}
