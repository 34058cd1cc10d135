package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for all distance math.
const EarthRadiusMeters = 6371009.0

// ErrInvalidCoordinate is returned when a latitude or longitude is out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a WGS84 point in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that the coordinate lies within the valid degree ranges.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, c.Latitude)
	}
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, c.Longitude)
	}
	return nil
}

// Box is an axis-aligned latitude/longitude rectangle.
type Box struct {
	SouthWest Coordinate `json:"south_west"`
	NorthEast Coordinate `json:"north_east"`
}

// LongitudeRange is a closed interval of longitudes within [-180, 180].
type LongitudeRange struct {
	Min float64
	Max float64
}

// LongitudeRanges returns the box's longitude span as one or two ranges
// within [-180, 180]. A box whose edges run past ±180 (as BoundingBox
// produces near the antimeridian), or whose west edge is east of its east
// edge, is split at the antimeridian.
func (b Box) LongitudeRanges() []LongitudeRange {
	west, east := b.SouthWest.Longitude, b.NorthEast.Longitude
	if east < west {
		east += 360
	}
	switch {
	case east-west >= 360:
		return []LongitudeRange{{Min: -180, Max: 180}}
	case west < -180:
		return []LongitudeRange{{Min: west + 360, Max: 180}, {Min: -180, Max: east}}
	case east > 180:
		return []LongitudeRange{{Min: west, Max: 180}, {Min: -180, Max: east - 360}}
	}
	return []LongitudeRange{{Min: west, Max: east}}
}

// Contains reports whether c lies inside the box, edges included.
func (b Box) Contains(c Coordinate) bool {
	if c.Latitude < b.SouthWest.Latitude || c.Latitude > b.NorthEast.Latitude {
		return false
	}
	for _, r := range b.LongitudeRanges() {
		if c.Longitude >= r.Min && c.Longitude <= r.Max {
			return true
		}
	}
	return false
}

// Distance returns the haversine great-circle distance between a and b in meters.
func Distance(a, b Coordinate) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := lat2 - lat1
	dLon := toRadians(b.Longitude) - toRadians(a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	// Rounding can push h a hair past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BoundingBox approximates the square that encloses a circle of radiusMeters
// around center. Longitude span is corrected by cos(latitude), so accuracy
// degrades near the poles. Longitudes are not wrapped: near the antimeridian
// an edge may lie past ±180; Box.LongitudeRanges splits such a box.
func BoundingBox(center Coordinate, radiusMeters float64) (southWest, northEast Coordinate) {
	angular := radiusMeters / EarthRadiusMeters
	dLat := toDegrees(angular)

	cosLat := math.Cos(toRadians(center.Latitude))
	dLon := 180.0
	if cosLat > 1e-12 {
		dLon = math.Min(180, toDegrees(angular/cosLat))
	}

	southWest = Coordinate{Latitude: center.Latitude - dLat, Longitude: center.Longitude - dLon}
	northEast = Coordinate{Latitude: center.Latitude + dLat, Longitude: center.Longitude + dLon}
	return southWest, northEast
}

// BoxAround is BoundingBox packaged as a Box.
func BoxAround(center Coordinate, radiusMeters float64) Box {
	sw, ne := BoundingBox(center, radiusMeters)
	return Box{SouthWest: sw, NorthEast: ne}
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }
