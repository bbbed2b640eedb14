package state

import (
	"database/sql"
	"errors"
	"time"

	dbutil "github.com/gulldan/subsonic-player-sub000/internal/db"
	"github.com/gulldan/subsonic-player-sub000/internal/playlist"
)

// QueueState is the persisted queue snapshot: the canonical track order
// plus index and modes.
type QueueState struct {
	CurrentIndex int
	RepeatMode   playlist.RepeatMode
	Shuffle      bool
	Tracks       []playlist.Track
}

func getQueue(db *sql.DB) (*QueueState, error) {
	var currentIndex, repeatMode int
	var shuffle bool
	row := db.QueryRow(`SELECT current_index, repeat_mode, shuffle FROM queue_state WHERE id = 1`)
	err := row.Scan(&currentIndex, &repeatMode, &shuffle)
	if errors.Is(err, sql.ErrNoRows) {
		return &QueueState{CurrentIndex: -1}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT track_id, title, artist, album, cover_art, duration_ms, starred, rating
		FROM queue_tracks
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []playlist.Track
	for rows.Next() {
		var t playlist.Track
		var artist, album, coverArt sql.NullString
		var durationMs int64
		var starred bool

		err := rows.Scan(&t.ID, &t.Title, &artist, &album, &coverArt, &durationMs, &starred, &t.Rating)
		if err != nil {
			return nil, err
		}

		t.Artist = dbutil.NullStringValue(artist)
		t.Album = dbutil.NullStringValue(album)
		t.CoverArt = dbutil.NullStringValue(coverArt)
		t.Duration = time.Duration(durationMs) * time.Millisecond
		t.Starred = starred
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueueState{
		CurrentIndex: currentIndex,
		RepeatMode:   playlist.RepeatMode(repeatMode),
		Shuffle:      shuffle,
		Tracks:       tracks,
	}, nil
}

func saveQueue(sqlDB *sql.DB, state QueueState) error {
	return dbutil.WithTx(sqlDB, func(tx *sql.Tx) error {
		// Clear existing queue
		_, err := tx.Exec(`DELETE FROM queue_tracks`)
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			INSERT INTO queue_state (id, current_index, repeat_mode, shuffle)
			VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				current_index = excluded.current_index,
				repeat_mode = excluded.repeat_mode,
				shuffle = excluded.shuffle
		`, state.CurrentIndex, int(state.RepeatMode), state.Shuffle)
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO queue_tracks (position, track_id, title, artist, album, cover_art, duration_ms, starred, rating)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range state.Tracks {
			_, err = stmt.Exec(i, t.ID, t.Title, t.Artist, t.Album, t.CoverArt,
				t.Duration.Milliseconds(), t.Starred, t.Rating)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
