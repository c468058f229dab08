package domain

// SyncState is the maintainer's mode. Only Live routes stream events to the
// book; every other state buffers them.
type SyncState int

const (
	SyncStateBuffering SyncState = iota
	SyncStateFetching
	SyncStateSplicing
	SyncStateLive
)

func (s SyncState) String() string {
	switch s {
	case SyncStateBuffering:
		return "buffering"
	case SyncStateFetching:
		return "fetching"
	case SyncStateSplicing:
		return "splicing"
	case SyncStateLive:
		return "live"
	default:
		return "unknown"
	}
}

func (s SyncState) IsLive() bool {
	return s == SyncStateLive
}
