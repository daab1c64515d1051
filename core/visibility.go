package core

import (
	"math"
	"sort"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/zhufengGNSS/SDGPSR/model"
)

// AlmanacEntry maps a PRN to the two-line element set used for coarse orbit
// propagation. TLE accuracy is far below broadcast-ephemeris accuracy but is
// ample for acquisition assistance: deciding which satellites are worth
// searching for, and seeding acquisition-grade satellite positions.
type AlmanacEntry struct {
	PRN  int
	TLE1 string
	TLE2 string
}

// VisibilityPredictor propagates almanac orbits with SGP4 to predict which
// PRNs are above an observer's horizon, and doubles as the coarse orbit
// source for trackers that have not yet decoded broadcast ephemeris.
type VisibilityPredictor struct {
	sats map[int]satellite.Satellite

	// WeekEpoch is the UTC start of the current GPS week, used to map a
	// time of week onto a propagation instant.
	WeekEpoch time.Time
}

// NewVisibilityPredictor parses the almanac entries. Entries whose TLE fails
// to parse are skipped; prediction then simply omits those PRNs.
func NewVisibilityPredictor(entries []AlmanacEntry, weekEpoch time.Time) *VisibilityPredictor {
	p := &VisibilityPredictor{
		sats:      make(map[int]satellite.Satellite, len(entries)),
		WeekEpoch: weekEpoch,
	}
	for _, e := range entries {
		if e.TLE1 == "" || e.TLE2 == "" {
			continue
		}
		p.sats[e.PRN] = satellite.TLEToSat(e.TLE1, e.TLE2, satellite.GravityWGS72)
	}
	return p
}

// PositionECEF propagates the PRN's orbit to t and returns its ECEF position
// in metres. Unknown PRNs return the zero vector.
func (p *VisibilityPredictor) PositionECEF(prn int, t time.Time) model.Vec3 {
	sat, ok := p.sats[prn]
	if !ok {
		return model.Vec3{}
	}

	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	// go-satellite works in kilometres; the receiver works in metres.
	const kmToM = 1000.0
	return model.Vec3{X: posECEF.X * kmToM, Y: posECEF.Y * kmToM, Z: posECEF.Z * kmToM}
}

// SatellitePositionAt implements OrbitSource over GPS time of week.
func (p *VisibilityPredictor) SatellitePositionAt(prn int, timeOfWeek float64) model.Vec3 {
	t := p.WeekEpoch.Add(time.Duration(timeOfWeek * float64(time.Second)))
	return p.PositionECEF(prn, t)
}

// VisiblePRNs returns the PRNs whose elevation from the observer exceeds
// minElevationDeg at time t, sorted ascending. Feeding the result to the
// receiver's target list avoids burning acquisition time on satellites below
// the horizon.
func (p *VisibilityPredictor) VisiblePRNs(t time.Time, observer model.Vec3, minElevationDeg float64) []int {
	var prns []int
	for prn := range p.sats {
		if elevationDegrees(observer, p.PositionECEF(prn, t)) >= minElevationDeg {
			prns = append(prns, prn)
		}
	}
	sort.Ints(prns)
	return prns
}

// elevationDegrees returns the elevation angle of the target as seen from the
// observer, in degrees. 0 = geometric horizon, 90 = overhead.
func elevationDegrees(observer, target model.Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	r := observer.Norm()
	if vNorm == 0 || r == 0 {
		return 90
	}

	// Local zenith at the observer is its normalised position vector.
	cosZenith := observer.Dot(v) / (r * vNorm)
	if cosZenith > 1 {
		cosZenith = 1
	} else if cosZenith < -1 {
		cosZenith = -1
	}
	return 90 - math.Acos(cosZenith)*180/math.Pi
}
