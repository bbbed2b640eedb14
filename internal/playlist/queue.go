package playlist

import "math/rand"

// Queue holds the canonical track order plus an optional shuffled
// projection of it. The index always points into the active queue: the
// shuffled projection while shuffle is on, the canonical order otherwise.
// An index of -1 means nothing is playing.
type Queue struct {
	canonical []Track
	shuffled  []Track
	index     int
	shuffle   bool
	repeat    RepeatMode
	rnd       func() float64
}

// NewQueue creates a new empty queue.
func NewQueue() *Queue {
	return &Queue{
		index: -1,
		rnd:   rand.Float64,
	}
}

// SetRand replaces the random source. Used for deterministic tests.
func (q *Queue) SetRand(rnd func() float64) {
	q.rnd = rnd
}

func (q *Queue) active() []Track {
	if q.shuffle {
		return q.shuffled
	}
	return q.canonical
}

// Current returns the currently playing track, or nil if none.
func (q *Queue) Current() *Track {
	a := q.active()
	if q.index < 0 || q.index >= len(a) {
		return nil
	}
	return &a[q.index]
}

// CurrentIndex returns the index into the active queue (-1 if none).
func (q *Queue) CurrentIndex() int {
	return q.index
}

// SetCurrent moves the index to the given position in the active queue.
// Returns the track at that position, or nil if out of range.
func (q *Queue) SetCurrent(index int) *Track {
	if index < 0 || index >= len(q.active()) {
		return nil
	}
	q.index = index
	return q.Current()
}

// Tracks returns a copy of the active queue.
func (q *Queue) Tracks() []Track {
	a := q.active()
	result := make([]Track, len(a))
	copy(result, a)
	return result
}

// CanonicalTracks returns a copy of the canonical (unshuffled) order.
func (q *Queue) CanonicalTracks() []Track {
	result := make([]Track, len(q.canonical))
	copy(result, q.canonical)
	return result
}

// Len returns the number of tracks in the active queue.
func (q *Queue) Len() int {
	return len(q.active())
}

// IsEmpty returns true if the active queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return len(q.active()) == 0
}

// IndexOf returns the position of the track with the given id in the
// active queue, or -1 if absent.
func (q *Queue) IndexOf(id string) int {
	for i, t := range q.active() {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// RepeatMode returns the current repeat mode.
func (q *Queue) RepeatMode() RepeatMode {
	return q.repeat
}

// SetRepeatMode sets the repeat mode.
func (q *Queue) SetRepeatMode(mode RepeatMode) {
	q.repeat = mode
}

// CycleRepeat advances the repeat mode through off -> all -> one -> off
// and returns the new mode.
func (q *Queue) CycleRepeat() RepeatMode {
	q.repeat = q.repeat.Cycle()
	return q.repeat
}

// Shuffle returns whether shuffle is enabled.
func (q *Queue) Shuffle() bool {
	return q.shuffle
}

// ToggleShuffle flips the shuffle flag and returns the new value.
//
// Turning shuffle on builds a fresh projection with the current track
// pinned first so playback continues uninterrupted. Turning it off
// relocates the index to the current track's canonical position; if the
// track is no longer in the canonical queue the index is clamped into
// range rather than left dangling.
func (q *Queue) ToggleShuffle() bool {
	q.SetShuffle(!q.shuffle)
	return q.shuffle
}

// SetShuffle enables or disables shuffle. Enabling when already enabled
// reshuffles the projection.
func (q *Queue) SetShuffle(enabled bool) {
	if !enabled {
		if !q.shuffle {
			return
		}
		current := q.Current()
		q.shuffle = false
		q.shuffled = nil
		if current != nil {
			if idx := q.IndexOf(current.ID); idx >= 0 {
				q.index = idx
				return
			}
		}
		q.clampIndex()
		return
	}

	current := q.Current()
	q.shuffle = true
	if current != nil {
		q.rebuildShuffled(*current)
		q.index = 0
		return
	}
	q.shuffled = q.permute(q.canonical)
	q.clampIndex()
}

// rebuildShuffled sets the projection to pin followed by a random
// permutation of the remaining canonical tracks. The pinned track is
// matched by identity once so duplicates elsewhere survive.
func (q *Queue) rebuildShuffled(pin Track) {
	rest := make([]Track, 0, len(q.canonical))
	pinned := false
	for _, t := range q.canonical {
		if !pinned && t.Same(pin) {
			pinned = true
			continue
		}
		rest = append(rest, t)
	}
	q.shuffled = append([]Track{pin}, q.permute(rest)...)
}

// permute returns a Fisher-Yates permutation of tracks using the
// injected random source.
func (q *Queue) permute(tracks []Track) []Track {
	out := make([]Track, len(tracks))
	copy(out, tracks)
	for i := len(out) - 1; i > 0; i-- {
		j := int(q.rnd() * float64(i+1))
		if j > i {
			j = i
		}
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (q *Queue) clampIndex() {
	n := len(q.active())
	switch {
	case n == 0 || q.index < 0:
		q.index = -1
	case q.index >= n:
		q.index = n - 1
	}
}

// Replace swaps in a new canonical queue and moves the index to the
// given position. If shuffle is active, a fresh projection is built
// pinning the selected track first. Returns the selected track or nil
// if the new queue is empty.
func (q *Queue) Replace(tracks []Track, index int) *Track {
	q.canonical = make([]Track, len(tracks))
	copy(q.canonical, tracks)
	q.shuffled = nil

	if len(q.canonical) == 0 {
		q.index = -1
		return nil
	}
	if index < 0 || index >= len(q.canonical) {
		index = 0
	}

	if q.shuffle {
		q.rebuildShuffled(q.canonical[index])
		q.index = 0
	} else {
		q.index = index
	}
	return q.Current()
}

// Add appends a track to the canonical queue; while shuffled it is also
// appended to the end of the projection, not re-shuffled in.
func (q *Queue) Add(track Track) {
	q.canonical = append(q.canonical, track)
	if q.shuffle {
		q.shuffled = append(q.shuffled, track)
	}
}

// RemoveAt removes the track at the given position in the active queue.
// Out-of-range is a no-op. While shuffled, the matching track is also
// removed from the canonical queue by identity. If the removed position
// precedes the current index, the index is decremented so it keeps
// pointing at the same logical track.
func (q *Queue) RemoveAt(index int) bool {
	a := q.active()
	if index < 0 || index >= len(a) {
		return false
	}
	removed := a[index]

	if q.shuffle {
		q.shuffled = append(q.shuffled[:index], q.shuffled[index+1:]...)
		for i, t := range q.canonical {
			if t.Same(removed) {
				q.canonical = append(q.canonical[:i], q.canonical[i+1:]...)
				break
			}
		}
	} else {
		q.canonical = append(q.canonical[:index], q.canonical[index+1:]...)
	}

	if q.index > index {
		q.index--
	} else if q.index == index {
		// Removed the current track: the index now points at the next
		// one; clamp if we removed the tail.
		q.clampIndex()
	}
	return true
}

// Clear collapses both queues to just the current track, or empties them
// when nothing is playing.
func (q *Queue) Clear() {
	current := q.Current()
	if current == nil {
		q.canonical = nil
		q.shuffled = nil
		q.index = -1
		return
	}
	q.canonical = []Track{*current}
	if q.shuffle {
		q.shuffled = []Track{*current}
	} else {
		q.shuffled = nil
	}
	q.index = 0
}

// Move reorders the active queue, moving the track at from to position
// to. The index is adjusted so it continues to reference the same track.
// Returns false if either position is out of range.
func (q *Queue) Move(from, to int) bool {
	a := q.active()
	if from < 0 || from >= len(a) || to < 0 || to >= len(a) {
		return false
	}
	if from == to {
		return true
	}

	track := a[from]
	a = append(a[:from], a[from+1:]...)
	a = append(a[:to], append([]Track{track}, a[to:]...)...)
	if q.shuffle {
		q.shuffled = a
	} else {
		q.canonical = a
	}

	switch {
	case q.index == from:
		q.index = to
	case from < q.index && to >= q.index:
		q.index--
	case from > q.index && to <= q.index:
		q.index++
	}
	return true
}
