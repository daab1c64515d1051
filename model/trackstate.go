package model

// TrackState describes how far a tracking hypothesis has progressed toward a
// stable carrier/code lock. States form a total order from "no signal" to
// "fully locked"; a channel's aggregate state is the maximum over its live
// hypotheses.
type TrackState int

const (
	// TrackLossOfLock means the hypothesis has no usable lock. It is also
	// the aggregate state of a channel with zero live hypotheses.
	TrackLossOfLock TrackState = iota
	// TrackAcquired means the hypothesis is running from its coarse search
	// seed but has not yet closed its carrier loop.
	TrackAcquired
	// TrackCarrierLock means the carrier loop has converged.
	TrackCarrierLock
	// TrackBitLock means navigation bit boundaries have been identified.
	TrackBitLock
	// TrackFullTrack means carrier, code, and bit timing are all stable.
	TrackFullTrack
)

// trackStateRank fixes the total order explicitly rather than relying on
// declaration order, so reordering the constants above cannot silently change
// channel pruning behaviour.
var trackStateRank = map[TrackState]int{
	TrackLossOfLock:  0,
	TrackAcquired:    1,
	TrackCarrierLock: 2,
	TrackBitLock:     3,
	TrackFullTrack:   4,
}

// Rank returns the position of s in the lock ordering. Unknown values rank
// below TrackLossOfLock.
func (s TrackState) Rank() int {
	if r, ok := trackStateRank[s]; ok {
		return r
	}
	return -1
}

func (s TrackState) String() string {
	switch s {
	case TrackLossOfLock:
		return "lossOfLock"
	case TrackAcquired:
		return "acquired"
	case TrackCarrierLock:
		return "carrierLock"
	case TrackBitLock:
		return "bitLock"
	case TrackFullTrack:
		return "fullTrack"
	default:
		return "unknown"
	}
}

// MaxTrackState returns whichever of a or b is further along the lock
// ordering.
func MaxTrackState(a, b TrackState) TrackState {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
