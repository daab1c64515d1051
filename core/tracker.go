package core

import "github.com/zhufengGNSS/SDGPSR/model"

// Tracker is one tracking hypothesis: a single candidate carrier/code lock
// state machine for one satellite. The inner loop-filter and discriminator
// mathematics live behind this contract; the channel and receiver only feed
// packets and read state.
type Tracker interface {
	// ProcessSamples consumes one 1 ms packet. A false return means the
	// hypothesis has permanently lost lock and must be discarded by its
	// owner; that is a routine outcome, not an error.
	ProcessSamples(packet model.SamplePacket) bool

	// State reports the hypothesis's current lock state.
	State() model.TrackState

	// Sync realigns the hypothesis's internal phase and bit references so
	// parallel hypotheses can be compared like for like, and so transmit
	// times sampled across channels refer to the same epoch.
	Sync()

	// TransmitTime returns the satellite-clock timestamp of the most
	// recently processed sample, in seconds of GPS week. Meaningful only
	// at full track.
	TransmitTime() float64

	// SatellitePosition returns the satellite's ECEF position (metres) at
	// the given GPS time of week.
	SatellitePosition(timeOfWeek float64) model.Vec3

	// LatLong returns the satellite's sub-point as complex(latitude,
	// longitude) in degrees at the given GPS time of week.
	LatLong(timeOfWeek float64) complex128
}

// TrackerFactory builds one hypothesis seeded from a search result, with an
// additional carrier-frequency bias in Hz. The channel instantiates one
// hypothesis per rung of its frequency ladder.
type TrackerFactory func(fs float64, prn int, seed model.SearchResult, freqBiasHz float64) Tracker
