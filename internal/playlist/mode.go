package playlist

// RepeatMode defines the repeat behavior.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

// Cycle returns the next mode in the off -> all -> one -> off cycle.
func (m RepeatMode) Cycle() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// String returns the repeat mode name.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "Off"
	case RepeatAll:
		return "All"
	case RepeatOne:
		return "One"
	default:
		return "Unknown"
	}
}
