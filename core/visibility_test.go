package core

import (
	"testing"
	"time"

	"github.com/zhufengGNSS/SDGPSR/model"
)

const (
	issTLE1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issTLE2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

func issAlmanac() []AlmanacEntry {
	return []AlmanacEntry{{PRN: 1, TLE1: issTLE1, TLE2: issTLE2}}
}

func tleEpoch() time.Time {
	return time.Date(2021, 10, 2, 14, 11, 0, 0, time.UTC)
}

func TestPositionECEFPlausibleRadius(t *testing.T) {
	p := NewVisibilityPredictor(issAlmanac(), tleEpoch())
	pos := p.PositionECEF(1, tleEpoch())

	// LEO altitude: geocentric radius between 6690 and 6830 km.
	r := pos.Norm()
	if r < 6.69e6 || r > 6.83e6 {
		t.Errorf("geocentric radius = %.0f m, outside LEO band", r)
	}
}

func TestPositionECEFUnknownPRN(t *testing.T) {
	p := NewVisibilityPredictor(issAlmanac(), tleEpoch())
	if got := p.PositionECEF(9, tleEpoch()); got != (model.Vec3{}) {
		t.Errorf("unknown PRN position = %+v, want zero vector", got)
	}
}

func TestSatellitePositionAtMatchesWeekEpoch(t *testing.T) {
	epoch := tleEpoch()
	p := NewVisibilityPredictor(issAlmanac(), epoch)

	const tow = 7200.0
	want := p.PositionECEF(1, epoch.Add(2*time.Hour))
	got := p.SatellitePositionAt(1, tow)
	if got != want {
		t.Errorf("SatellitePositionAt = %+v, want %+v", got, want)
	}
}

func TestVisiblePRNsElevationMask(t *testing.T) {
	p := NewVisibilityPredictor(issAlmanac(), tleEpoch())
	observer := LLAToECEF(model.LLA{LatDeg: 48.0, LonDeg: 11.0})

	// A fully open mask admits everything in the almanac, an impossible
	// mask admits nothing.
	if got := p.VisiblePRNs(tleEpoch(), observer, -90); len(got) != 1 || got[0] != 1 {
		t.Errorf("open mask visible = %v, want [1]", got)
	}
	if got := p.VisiblePRNs(tleEpoch(), observer, 90); len(got) != 0 {
		t.Errorf("closed mask visible = %v, want none", got)
	}
}

func TestNewVisibilityPredictorSkipsEmptyTLEs(t *testing.T) {
	entries := []AlmanacEntry{
		{PRN: 1, TLE1: issTLE1, TLE2: issTLE2},
		{PRN: 2},
	}
	p := NewVisibilityPredictor(entries, tleEpoch())
	if got := p.PositionECEF(2, tleEpoch()); got != (model.Vec3{}) {
		t.Errorf("entry without TLE should be skipped, got %+v", got)
	}
}
