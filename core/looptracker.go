package core

import (
	"math"
	"math/cmplx"

	"github.com/zhufengGNSS/SDGPSR/model"
)

// OrbitSource supplies satellite positions for trackers. The default tracker
// runs from an acquisition-grade orbit source (almanac/TLE propagation)
// rather than decoding broadcast ephemeris from the navigation message.
type OrbitSource interface {
	SatellitePositionAt(prn int, timeOfWeek float64) model.Vec3
}

// Loop and lock-detector tuning. The discriminator forms follow the classic
// non-coherent DLL / Costas PLL arrangement.
const (
	dllGainChips    = 0.1  // code NCO correction per unit E-L discriminator
	pllPhaseGainHz  = 8.0  // carrier correction per unit phase error
	pllFreqGainHz   = 2.0  // carrier correction per unit frequency error
	lockThreshold   = 0.25 // normalised I/Q power split counted as "locked"
	lockPowerGain   = 10.0 // min prompt power over packet energy for lock
	carrierLockMs   = 50   // consecutive locked ms before carrier lock
	fullTrackMs     = 200  // locked ms after bit lock before full track
	lockLossMs      = 50   // consecutive unlocked ms before lossOfLock
	lockFailMs      = 250  // consecutive unlocked ms before self-discard
	bitEdgeMinCount = 8    // flips on one 20 ms offset before bit lock
)

// loopTracker is the default Tracker: carrier and code NCOs, prompt and
// early/late correlation against the PRN's C/A code, and a lock state
// machine driven by the prompt I/Q power split.
type loopTracker struct {
	prn          int
	fs           float64
	samplesPerMs int
	chips        []int8
	orbit        OrbitSource

	carrierFreqHz  float64
	carrierPhase   float64
	codePhase      float64 // code start offset within a packet, in samples
	prevCarrierErr float64

	state      model.TrackState
	goodMs     int
	badMs      int
	prevPrompt complex128

	msProcessed   int
	msSinceEdge   int
	bitSynced     bool
	prevPromptPos bool
	edgeHist      [20]int

	initialTOW float64
}

// LoopTrackerOption tweaks the default tracker factory.
type LoopTrackerOption func(*loopTracker)

// WithInitialTimeOfWeek provides coarse-time assistance: the GPS time of week
// of the first processed packet. Transmit times are maintained relative to it
// from the packet count and code phase.
func WithInitialTimeOfWeek(tow float64) LoopTrackerOption {
	return func(t *loopTracker) { t.initialTOW = tow }
}

// NewLoopTrackerFactory returns a TrackerFactory producing loop trackers
// backed by the given orbit source.
func NewLoopTrackerFactory(orbit OrbitSource, opts ...LoopTrackerOption) TrackerFactory {
	return func(fs float64, prn int, seed model.SearchResult, freqBiasHz float64) Tracker {
		chips, err := CACode(prn)
		if err != nil {
			chips = make([]int8, CACodeLength)
			for i := range chips {
				chips[i] = 1
			}
		}
		t := &loopTracker{
			prn:           prn,
			fs:            fs,
			samplesPerMs:  int(math.Round(fs * 1e-3)),
			chips:         chips,
			orbit:         orbit,
			carrierFreqHz: seed.FreqOffsetHz + freqBiasHz,
			codePhase:     float64(seed.CodePhase),
			state:         model.TrackAcquired,
			prevPromptPos: true,
		}
		for _, opt := range opts {
			opt(t)
		}
		return t
	}
}

func (t *loopTracker) ProcessSamples(packet model.SamplePacket) bool {
	n := t.samplesPerMs
	if len(packet) < n {
		n = len(packet)
	}
	if n == 0 {
		return t.state != model.TrackLossOfLock
	}

	chipsPerSample := CACodeRateHz / t.fs
	halfChipSamples := 0.5 / chipsPerSample
	phaseStep := 2 * math.Pi * t.carrierFreqHz / t.fs

	var prompt, early, late complex128
	energy := 0.0
	for i := 0; i < n; i++ {
		carrier := cmplx.Exp(complex(0, -(t.carrierPhase + phaseStep*float64(i))))
		v := packet[i] * carrier
		energy += real(v)*real(v) + imag(v)*imag(v)
		prompt += v * complex(float64(t.chipAt(float64(i))), 0)
		early += v * complex(float64(t.chipAt(float64(i)+halfChipSamples)), 0)
		late += v * complex(float64(t.chipAt(float64(i)-halfChipSamples)), 0)
	}
	t.carrierPhase = math.Mod(t.carrierPhase+phaseStep*float64(n), 2*math.Pi)

	t.updateLoops(prompt, early, late)
	t.updateLockState(prompt, energy)

	t.msProcessed++
	t.msSinceEdge++
	return t.badMs < lockFailMs
}

// chipAt returns the replica chip for sample offset i given the current code
// phase estimate.
func (t *loopTracker) chipAt(i float64) int8 {
	samples := math.Mod(i-t.codePhase, float64(t.samplesPerMs))
	if samples < 0 {
		samples += float64(t.samplesPerMs)
	}
	idx := int(samples * CACodeRateHz / t.fs)
	if idx >= CACodeLength {
		idx = CACodeLength - 1
	}
	return t.chips[idx]
}

func (t *loopTracker) updateLoops(prompt, early, late complex128) {
	// Non-coherent early minus late power discriminator.
	e := cmplx.Abs(early)
	l := cmplx.Abs(late)
	if e+l > 0 {
		// The early arm correlates the code one half chip ahead, so it
		// grows when the phase estimate runs late; the correction must
		// pull the estimate back, not push it on.
		codeErr := (e - l) / (e + l)
		t.codePhase -= dllGainChips * codeErr * (t.fs / CACodeRateHz)
		t.codePhase = math.Mod(t.codePhase, float64(t.samplesPerMs))
		if t.codePhase < 0 {
			t.codePhase += float64(t.samplesPerMs)
		}
	}

	// Costas discriminator, insensitive to nav-bit sign flips.
	ip, qp := real(prompt), imag(prompt)
	if ip != 0 {
		carrierErr := math.Atan(qp/ip) / math.Pi
		freqErr := carrierErr - t.prevCarrierErr
		if freqErr > 0.5 {
			freqErr -= 1
		} else if freqErr < -0.5 {
			freqErr += 1
		}
		t.carrierFreqHz += pllPhaseGainHz*carrierErr + pllFreqGainHz*freqErr
		t.prevCarrierErr = carrierErr
	}
}

func (t *loopTracker) updateLockState(prompt complex128, energy float64) {
	ip, qp := real(prompt), imag(prompt)
	power := ip*ip + qp*qp

	// An uncorrelated replica averages a prompt power of one packet energy;
	// real correlation multiplies it by the spreading gain. Requiring a
	// margin over the uncorrelated level keeps the I/Q split test from
	// declaring lock on nothing.
	locked := false
	if power > lockPowerGain*energy && power > 0 {
		// At lock the Costas loop drives signal power into I; noise
		// splits evenly between I and Q.
		locked = (ip*ip-qp*qp)/power > lockThreshold
	}

	if locked {
		t.goodMs++
		t.badMs = 0
	} else {
		t.goodMs = 0
		t.badMs++
	}

	t.trackBitEdges(ip)

	switch {
	case t.badMs >= lockLossMs:
		t.state = model.TrackLossOfLock
	case t.bitSynced && t.goodMs >= fullTrackMs:
		t.state = model.TrackFullTrack
	case t.bitSynced && t.goodMs >= carrierLockMs:
		t.state = model.TrackBitLock
	case t.goodMs >= carrierLockMs:
		t.state = model.TrackCarrierLock
	case t.state == model.TrackLossOfLock && t.goodMs > 0:
		t.state = model.TrackAcquired
	}

	t.prevPrompt = prompt
}

// trackBitEdges histograms prompt-I sign flips over the 20 ms nav-bit period.
// A dominant flip offset marks the bit boundary.
func (t *loopTracker) trackBitEdges(ip float64) {
	pos := ip >= 0
	if pos != t.prevPromptPos {
		t.edgeHist[t.msProcessed%20]++
	}
	t.prevPromptPos = pos

	if t.bitSynced {
		return
	}
	best, second, bestIdx := 0, 0, 0
	for i, c := range t.edgeHist {
		if c > best {
			second = best
			best = c
			bestIdx = i
		} else if c > second {
			second = c
		}
	}
	if best >= bitEdgeMinCount && best >= 4*second {
		t.bitSynced = true
		t.msSinceEdge = (t.msProcessed - bestIdx) % 20
	}
}

func (t *loopTracker) State() model.TrackState {
	return t.state
}

// Sync realigns the bit-phase reference so hypotheses compared after a
// consensus round, or channels sampled for a navigation solve, measure from
// the same epoch.
func (t *loopTracker) Sync() {
	t.msSinceEdge = 0
	t.prevPrompt = 0
	t.prevCarrierErr = 0
}

func (t *loopTracker) TransmitTime() float64 {
	return t.initialTOW + float64(t.msProcessed)*1e-3 + t.codePhase/t.fs
}

func (t *loopTracker) SatellitePosition(timeOfWeek float64) model.Vec3 {
	if t.orbit == nil {
		return model.Vec3{}
	}
	return t.orbit.SatellitePositionAt(t.prn, timeOfWeek)
}

func (t *loopTracker) LatLong(timeOfWeek float64) complex128 {
	lla := ECEFToLLA(t.SatellitePosition(timeOfWeek))
	return complex(lla.LatDeg, lla.LonDeg)
}
