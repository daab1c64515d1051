package core

import (
	"context"

	"github.com/zhufengGNSS/SDGPSR/internal/logging"
	"github.com/zhufengGNSS/SDGPSR/model"
)

// The coarse search leaves residual carrier-frequency uncertainty finer than
// its grid step. Each channel therefore runs a ladder of hypotheses biased in
// 500 Hz steps around the seed and lets only the correctly biased one reach
// full lock.
const (
	hypothesisLadderHalfWidth = 4
	hypothesisLadderStepHz    = 500.0
)

// TrackingChannel owns the bank of live tracking hypotheses for one PRN. It
// is not safe for concurrent use; the receiver's worker goroutine is the only
// caller of its mutating methods.
type TrackingChannel struct {
	prn      int
	trackers []Tracker
	packets  uint64
	log      logging.Logger
}

// NewTrackingChannel seeds one hypothesis per rung of the frequency ladder,
// all sharing the search result's code-phase and frequency estimate.
func NewTrackingChannel(fs float64, prn int, seed model.SearchResult, factory TrackerFactory, log logging.Logger) *TrackingChannel {
	if log == nil {
		log = logging.Noop()
	}
	tc := &TrackingChannel{prn: prn, log: log}
	for i := -hypothesisLadderHalfWidth; i <= hypothesisLadderHalfWidth; i++ {
		tc.trackers = append(tc.trackers, factory(fs, prn, seed, float64(i)*hypothesisLadderStepHz))
	}
	return tc
}

// PRN returns the satellite this channel tracks.
func (tc *TrackingChannel) PRN() int {
	return tc.prn
}

// HypothesisCount returns the number of live hypotheses.
func (tc *TrackingChannel) HypothesisCount() int {
	return len(tc.trackers)
}

// State is the maximum lock state across all live hypotheses, or
// lossOfLock when none remain.
func (tc *TrackingChannel) State() model.TrackState {
	state := model.TrackLossOfLock
	for _, t := range tc.trackers {
		state = model.MaxTrackState(state, t.State())
	}
	return state
}

// ProcessSamples dispatches the packet to every live hypothesis, discards any
// that report permanent loss of lock, and returns whether the channel still
// holds at least one hypothesis.
//
// Once the aggregate state reaches full track with more than one survivor,
// the bank is collapsed: all survivors are synced, hypotheses short of full
// track are discarded, and if several full-track hypotheses remain the first
// in iteration order wins. The collapse favours availability over proving
// the discarded hypotheses wrong.
func (tc *TrackingChannel) ProcessSamples(packet model.SamplePacket) bool {
	kept := tc.trackers[:0]
	for _, t := range tc.trackers {
		if t.ProcessSamples(packet) {
			kept = append(kept, t)
		}
	}
	tc.trackers = kept
	tc.packets++

	if len(tc.trackers) > 1 && tc.State() == model.TrackFullTrack {
		tc.Sync()
		kept = tc.trackers[:0]
		for _, t := range tc.trackers {
			if t.State() == model.TrackFullTrack {
				kept = append(kept, t)
			}
		}
		tc.trackers = kept
		if len(tc.trackers) > 1 {
			tc.trackers = tc.trackers[:1]
		}
		tc.log.Debug(context.Background(), "hypothesis bank collapsed",
			logging.Int("prn", tc.prn),
			logging.Int("packets", int(tc.packets)),
		)
	}

	return len(tc.trackers) > 0
}

// Sync realigns the internal references of every live hypothesis.
func (tc *TrackingChannel) Sync() {
	for _, t := range tc.trackers {
		t.Sync()
	}
}

// TransmitTime delegates to the first live hypothesis. Callers must gate on
// State() == fullTrack; with no hypotheses the defined fallback is 0.
func (tc *TrackingChannel) TransmitTime() float64 {
	if len(tc.trackers) == 0 {
		return 0
	}
	return tc.trackers[0].TransmitTime()
}

// SatellitePosition delegates to the first live hypothesis; the zero vector
// is the defined fallback for an empty bank.
func (tc *TrackingChannel) SatellitePosition(timeOfWeek float64) model.Vec3 {
	if len(tc.trackers) == 0 {
		return model.Vec3{}
	}
	return tc.trackers[0].SatellitePosition(timeOfWeek)
}

// LatLong delegates to the first live hypothesis.
func (tc *TrackingChannel) LatLong(timeOfWeek float64) complex128 {
	if len(tc.trackers) == 0 {
		return 0
	}
	return tc.trackers[0].LatLong(timeOfWeek)
}
