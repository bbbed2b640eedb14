package playlist

// ResolveNext returns the index that follows current, honoring the repeat
// mode. The second return value is false when there is no next track and
// playback should stop.
func ResolveNext(length, current int, mode RepeatMode) (int, bool) {
	if length == 0 {
		return 0, false
	}
	if current+1 < length {
		return current + 1, true
	}
	if mode == RepeatAll {
		return 0, true
	}
	return 0, false
}

// ResolvePrevious is the mirror image of ResolveNext: the index before
// current, wrapping to the last track when repeat-all is active.
func ResolvePrevious(length, current int, mode RepeatMode) (int, bool) {
	if length == 0 {
		return 0, false
	}
	if current > 0 {
		return current - 1, true
	}
	if mode == RepeatAll {
		return length - 1, true
	}
	return 0, false
}

// ResolveRandom picks a random index, avoiding an immediate replay of
// current when the queue has more than one track. rnd must return a value
// in [0, 1); it is injectable for deterministic tests.
func ResolveRandom(length, current int, rnd func() float64) (int, bool) {
	if length == 0 {
		return 0, false
	}
	if length == 1 {
		return 0, true
	}
	r := rnd()
	if r < 0 {
		r = 0
	}
	if r > 0.999999 {
		r = 0.999999
	}
	idx := int(r * float64(length))
	if idx == current {
		idx = (current + 1) % length
	}
	return idx, true
}
