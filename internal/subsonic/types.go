package subsonic

import (
	"time"

	"github.com/gulldan/subsonic-player-sub000/internal/playlist"
)

// Song is a track entry as returned by the Subsonic API.
type Song struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Artist     string     `json:"artist"`
	Album      string     `json:"album"`
	CoverArt   string     `json:"coverArt"`
	Duration   int        `json:"duration"` // seconds
	BitRate    int        `json:"bitRate"`
	Suffix     string     `json:"suffix"`
	Starred    *time.Time `json:"starred"`
	UserRating int        `json:"userRating"`
}

// Track converts the API entry into a queue track.
func (s Song) Track() playlist.Track {
	return playlist.Track{
		ID:       s.ID,
		Title:    s.Title,
		Artist:   s.Artist,
		Album:    s.Album,
		CoverArt: s.CoverArt,
		Duration: time.Duration(s.Duration) * time.Second,
		Starred:  s.Starred != nil,
		Rating:   s.UserRating,
	}
}

// apiError is the error element of a failed subsonic-response.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type songList struct {
	Song []Song `json:"song"`
}

// envelope is the outer subsonic-response wrapper.
type envelope struct {
	Response struct {
		Status      string    `json:"status"`
		Version     string    `json:"version"`
		Error       *apiError `json:"error"`
		Song        *Song     `json:"song"`
		RandomSongs *songList `json:"randomSongs"`
	} `json:"subsonic-response"`
}
