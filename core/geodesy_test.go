package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhufengGNSS/SDGPSR/model"
)

func TestLLAToECEFKnownPoints(t *testing.T) {
	// Equator at the prime meridian, on the ellipsoid surface.
	p := LLAToECEF(model.LLA{})
	assert.InDelta(t, 6378137.0, p.X, 1e-3)
	assert.InDelta(t, 0.0, p.Y, 1e-3)
	assert.InDelta(t, 0.0, p.Z, 1e-3)

	// North pole: only Z, at the semi-minor axis.
	p = LLAToECEF(model.LLA{LatDeg: 90})
	assert.InDelta(t, 0.0, p.X, 1e-3)
	assert.InDelta(t, 0.0, p.Y, 1e-3)
	assert.InDelta(t, 6356752.314, p.Z, 1e-2)
}

func TestECEFToLLARoundTrip(t *testing.T) {
	points := []model.LLA{
		{LatDeg: 0, LonDeg: 0, AltM: 0},
		{LatDeg: 45.0, LonDeg: 7.65, AltM: 300},
		{LatDeg: -33.86, LonDeg: 151.21, AltM: 50},
		{LatDeg: 64.13, LonDeg: -21.82, AltM: 10},
		{LatDeg: -75.1, LonDeg: 123.35, AltM: 3200},
	}
	for _, want := range points {
		got := ECEFToLLA(LLAToECEF(want))
		assert.InDelta(t, want.LatDeg, got.LatDeg, 1e-7, "latitude of %+v", want)
		assert.InDelta(t, want.LonDeg, got.LonDeg, 1e-7, "longitude of %+v", want)
		assert.InDelta(t, want.AltM, got.AltM, 1e-2, "altitude of %+v", want)
	}
}

func TestECEFToLLAPoles(t *testing.T) {
	got := ECEFToLLA(model.Vec3{Z: 6356752.314})
	assert.InDelta(t, 90.0, got.LatDeg, 1e-6)

	got = ECEFToLLA(model.Vec3{Z: -6356752.314})
	assert.InDelta(t, -90.0, got.LatDeg, 1e-6)
}
