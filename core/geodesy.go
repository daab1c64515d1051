package core

import (
	"math"

	"github.com/zhufengGNSS/SDGPSR/model"
)

// WGS84 ellipsoid parameters.
const (
	wgs84SemiMajorM  = 6378137.0
	wgs84Flattening  = 1.0 / 298.257223563
	wgs84OmegaEDotRS = 7.2921151467e-5 // Earth rotation rate (rad/s)
)

// ECEFToLLA converts a WGS84 ECEF position in metres to geodetic latitude,
// longitude (degrees), and ellipsoidal altitude (metres). The latitude is
// found by fixed-point iteration on the ellipsoid normal.
func ECEFToLLA(p model.Vec3) model.LLA {
	e2 := wgs84Flattening * (2.0 - wgs84Flattening)
	r2 := p.X*p.X + p.Y*p.Y
	v := wgs84SemiMajorM

	z := p.Z
	zk := 0.0
	var sinLat float64
	for math.Abs(z-zk) >= 1e-4 {
		zk = z
		sinLat = z / math.Sqrt(r2+z*z)
		v = wgs84SemiMajorM / math.Sqrt(1.0-e2*sinLat*sinLat)
		z = p.Z + v*e2*sinLat
	}

	var lat float64
	switch {
	case r2 > 1e-12:
		lat = math.Atan(z / math.Sqrt(r2))
	case p.Z > 0:
		lat = math.Pi / 2
	default:
		lat = -math.Pi / 2
	}

	lon := 0.0
	if r2 > 1e-12 {
		lon = math.Atan2(p.Y, p.X)
	}

	return model.LLA{
		LatDeg: lat * 180 / math.Pi,
		LonDeg: lon * 180 / math.Pi,
		AltM:   math.Sqrt(r2+z*z) - v,
	}
}

// LLAToECEF converts a geodetic position to WGS84 ECEF metres.
func LLAToECEF(p model.LLA) model.Vec3 {
	lat := p.LatDeg * math.Pi / 180
	lon := p.LonDeg * math.Pi / 180
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	e2 := wgs84Flattening * (2.0 - wgs84Flattening)
	v := wgs84SemiMajorM / math.Sqrt(1.0-e2*sinLat*sinLat)

	return model.Vec3{
		X: (v + p.AltM) * cosLat * cosLon,
		Y: (v + p.AltM) * cosLat * sinLon,
		Z: (v*(1.0-e2) + p.AltM) * sinLat,
	}
}
