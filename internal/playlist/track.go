package playlist

import "time"

// Track represents a single track from the remote catalog.
// Tracks are compared by ID; all other fields are display metadata.
type Track struct {
	ID       string
	Title    string
	Artist   string
	Album    string
	CoverArt string
	Duration time.Duration // 0 if the catalog did not report one
	Starred  bool
	Rating   int
}

// Same reports whether two tracks refer to the same catalog entry.
func (t Track) Same(other Track) bool {
	return t.ID == other.ID
}
