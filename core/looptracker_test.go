package core

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/zhufengGNSS/SDGPSR/model"
)

// bitModulatedPacket builds one millisecond of the PRN's code at zero carrier
// offset and code phase, scaled by the nav-bit sign for that millisecond.
func bitModulatedPacket(t *testing.T, prn, ms int) model.SamplePacket {
	t.Helper()
	chips, err := CACode(prn)
	if err != nil {
		t.Fatalf("CACode(%d): %v", prn, err)
	}
	bit := 1.0
	if (ms/20)%2 == 1 {
		bit = -1
	}
	n := int(math.Round(testFs * 1e-3))
	packet := make(model.SamplePacket, n)
	chipsPerSample := CACodeRateHz / testFs
	for i := 0; i < n; i++ {
		packet[i] = complex(bit*float64(chips[int(float64(i)*chipsPerSample)%CACodeLength]), 0)
	}
	return packet
}

// rfSim generates a phase-continuous stream of 1 ms packets: the PRN's code
// delayed by a fixed sample count, 20 ms alternating nav bits, a carrier at a
// fixed offset, and optional white noise.
type rfSim struct {
	chips   []int8
	delay   int
	freqHz  float64
	noise   float64
	rng     *rand.Rand
	ms      int
	samples int
}

func newRFSim(t *testing.T, prn, delay int, freqHz, noise float64) *rfSim {
	t.Helper()
	chips, err := CACode(prn)
	if err != nil {
		t.Fatalf("CACode(%d): %v", prn, err)
	}
	return &rfSim{
		chips:  chips,
		delay:  delay,
		freqHz: freqHz,
		noise:  noise,
		rng:    rand.New(rand.NewSource(1)),
	}
}

func (s *rfSim) packet() model.SamplePacket {
	n := int(math.Round(testFs * 1e-3))
	bit := 1.0
	if (s.ms/20)%2 == 1 {
		bit = -1
	}
	chipsPerSample := CACodeRateHz / testFs
	p := make(model.SamplePacket, n)
	for i := 0; i < n; i++ {
		src := ((i-s.delay)%n + n) % n
		chip := float64(s.chips[int(float64(src)*chipsPerSample)%CACodeLength])
		phase := 2 * math.Pi * s.freqHz * float64(s.samples+i) / testFs
		p[i] = complex(bit*chip, 0) * cmplx.Exp(complex(0, phase))
		if s.noise > 0 {
			p[i] += complex(s.rng.NormFloat64()*s.noise, s.rng.NormFloat64()*s.noise)
		}
	}
	s.samples += n
	s.ms++
	return p
}

func newSeededTracker(opts ...LoopTrackerOption) Tracker {
	factory := NewLoopTrackerFactory(nil, opts...)
	return factory(testFs, 9, model.SearchResult{PRN: 9, CodePhase: 0, FreqOffsetHz: 0, Found: true}, 0)
}

func TestLoopTrackerReachesFullTrack(t *testing.T) {
	tr := newSeededTracker()
	if got := tr.State(); got != model.TrackAcquired {
		t.Fatalf("initial state = %v, want acquired", got)
	}

	for ms := 0; ms < 400; ms++ {
		if !tr.ProcessSamples(bitModulatedPacket(t, 9, ms)) {
			t.Fatalf("tracker gave up at ms %d on a clean signal", ms)
		}
	}
	if got := tr.State(); got != model.TrackFullTrack {
		t.Errorf("state after 400 ms of clean signal = %v, want fullTrack", got)
	}
}

func TestLoopTrackerStateProgression(t *testing.T) {
	tr := newSeededTracker()

	reached := map[model.TrackState]int{}
	for ms := 0; ms < 400; ms++ {
		tr.ProcessSamples(bitModulatedPacket(t, 9, ms))
		state := tr.State()
		if _, seen := reached[state]; !seen {
			reached[state] = ms
		}
	}

	carrier, haveCarrier := reached[model.TrackCarrierLock]
	full, haveFull := reached[model.TrackFullTrack]
	if !haveCarrier || !haveFull {
		t.Fatalf("missing states, reached %v", reached)
	}
	if carrier >= full {
		t.Errorf("carrier lock at ms %d not before full track at ms %d", carrier, full)
	}
}

func TestLoopTrackerPullInFromImperfectSeed(t *testing.T) {
	// Acquisition hands over a code phase quantised to one sample and a
	// frequency quantised to the doppler grid. Seed the tracker two samples
	// (one chip) early and 150 Hz low on a noisy signal and require the
	// loops to pull both errors in and reach full track.
	const (
		prn   = 9
		delay = 2
		freq  = 150.0
	)
	sim := newRFSim(t, prn, delay, freq, 0.5)
	tr := newSeededTracker()

	for ms := 0; ms < 2500; ms++ {
		if !tr.ProcessSamples(sim.packet()) {
			t.Fatalf("tracker gave up at ms %d while pulling in", ms)
		}
	}
	if got := tr.State(); got != model.TrackFullTrack {
		t.Fatalf("state after pull-in = %v, want fullTrack", got)
	}

	lt := tr.(*loopTracker)
	if math.Abs(lt.codePhase-delay) > 1.0 {
		t.Errorf("code phase converged to %.3f samples, want %d within one sample", lt.codePhase, delay)
	}
	if math.Abs(lt.carrierFreqHz-freq) > 25 {
		t.Errorf("carrier converged to %.1f Hz, want near %.0f", lt.carrierFreqHz, freq)
	}
}

func TestLoopTrackerRejectsUncorrelatedSignal(t *testing.T) {
	// A strong signal carrying the wrong PRN produces cross-correlation
	// prompt power well under the spreading gain. The lock detector must
	// never call that locked, and the tracker must discard itself.
	sim := newRFSim(t, 5, 0, 0, 0)
	tr := newSeededTracker() // tracks PRN 9

	alive := true
	ms := 0
	for ; ms < 400 && alive; ms++ {
		alive = tr.ProcessSamples(sim.packet())
	}
	if alive {
		t.Fatal("tracker held on to an uncorrelated signal for 400 ms")
	}
	if got := tr.State(); got != model.TrackLossOfLock {
		t.Errorf("state on wrong code = %v, want lossOfLock", got)
	}
}

func TestLoopTrackerLosesLockOnSilence(t *testing.T) {
	tr := newSeededTracker()

	// Lock first, then cut the signal.
	for ms := 0; ms < 100; ms++ {
		tr.ProcessSamples(bitModulatedPacket(t, 9, ms))
	}
	silence := make(model.SamplePacket, int(math.Round(testFs*1e-3)))

	alive := true
	for ms := 0; ms < 300 && alive; ms++ {
		alive = tr.ProcessSamples(silence)
	}
	if alive {
		t.Error("tracker should self-discard after sustained silence")
	}
	if got := tr.State(); got != model.TrackLossOfLock {
		t.Errorf("state after silence = %v, want lossOfLock", got)
	}
}

func TestLoopTrackerTransmitTime(t *testing.T) {
	const tow = 345600.0
	tr := newSeededTracker(WithInitialTimeOfWeek(tow))

	for ms := 0; ms < 50; ms++ {
		tr.ProcessSamples(bitModulatedPacket(t, 9, ms))
	}
	got := tr.TransmitTime()
	// 50 ms elapsed plus a sub-millisecond code phase term.
	if got < tow+0.050 || got > tow+0.051 {
		t.Errorf("transmit time = %.6f, want within [%.3f, %.3f]", got, tow+0.050, tow+0.051)
	}
}

func TestLoopTrackerSatellitePositionWithoutOrbit(t *testing.T) {
	tr := newSeededTracker()
	if got := tr.SatellitePosition(0); got != (model.Vec3{}) {
		t.Errorf("position without orbit source = %+v, want zero vector", got)
	}
}

type fixedOrbit struct {
	pos model.Vec3
}

func (f fixedOrbit) SatellitePositionAt(int, float64) model.Vec3 { return f.pos }

func TestLoopTrackerOrbitDelegation(t *testing.T) {
	want := LLAToECEF(model.LLA{LatDeg: 30, LonDeg: 60, AltM: 20200e3})
	factory := NewLoopTrackerFactory(fixedOrbit{pos: want})
	tr := factory(testFs, 4, model.SearchResult{PRN: 4}, 0)

	if got := tr.SatellitePosition(0); got != want {
		t.Errorf("SatellitePosition = %+v, want %+v", got, want)
	}
	ll := tr.LatLong(0)
	if math.Abs(real(ll)-30) > 1e-6 || math.Abs(imag(ll)-60) > 1e-6 {
		t.Errorf("LatLong = (%.7f, %.7f), want (30, 60)", real(ll), imag(ll))
	}
}
