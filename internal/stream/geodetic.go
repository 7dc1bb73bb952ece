package stream

import "math"

// WGS84 ellipsoid.
const (
	wgs84A  = 6378137.0
	wgs84F  = 1 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

// Geodetic is a latitude/longitude in degrees with height in metres.
type Geodetic struct {
	Lat, Lon, H float64
}

// GeodeticFix is an agent position reported as a geodetic coordinate,
// together with the origin of the local scene frame.
type GeodeticFix struct {
	Position Geodetic
	Origin   Geodetic
}

// ENU converts the fix into east/north/up metres relative to its origin.
func (f GeodeticFix) ENU() (east, north, up float64) {
	x, y, z := f.Position.ecef()
	x0, y0, z0 := f.Origin.ecef()
	dx, dy, dz := x-x0, y-y0, z-z0

	sinLat, cosLat := math.Sincos(radians(f.Origin.Lat))
	sinLon, cosLon := math.Sincos(radians(f.Origin.Lon))

	east = -sinLon*dx + cosLon*dy
	north = -sinLat*cosLon*dx - sinLat*sinLon*dy + cosLat*dz
	up = cosLat*cosLon*dx + cosLat*sinLon*dy + sinLat*dz
	return east, north, up
}

// Local maps the fix into scene units, metresPerUnit metres to one unit.
func (f GeodeticFix) Local(metresPerUnit float64) AgentPosition {
	if metresPerUnit <= 0 {
		metresPerUnit = 1
	}
	e, n, u := f.ENU()
	return AgentPosition{X: e / metresPerUnit, Y: n / metresPerUnit, Z: u / metresPerUnit, HasZ: true}
}

func (g Geodetic) ecef() (x, y, z float64) {
	sinLat, cosLat := math.Sincos(radians(g.Lat))
	sinLon, cosLon := math.Sincos(radians(g.Lon))
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	x = (n + g.H) * cosLat * cosLon
	y = (n + g.H) * cosLat * sinLon
	z = (n*(1-wgs84E2) + g.H) * sinLat
	return x, y, z
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
