package domain

import "math"

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// kmPerDegree is the coarse degrees-to-km factor of the bounding-box prefilter.
// It is slightly below the true meridian length (~111.19 km), so the latitude
// span always over-covers.
const kmPerDegree = 111.0

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// HaversineKm returns the great-circle distance between two WGS-84 points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// BoundingBox is an axis-aligned lat/lon window. Bounds are inclusive.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Contains reports whether the point falls inside the box.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// BoundingBoxAround returns a box that contains every point within radiusKm of
// (lat, lon). It is a superset filter: callers still need HaversineKm.
//
// The longitude span is the wider of radius/(111*cos(lat)) and the exact
// spherical-cap bound, because points poleward of the centre can sit further
// east or west than the naive span allows. Boxes that reach a pole or cross the
// antimeridian cover all longitudes.
func BoundingBoxAround(lat, lon, radiusKm float64) BoundingBox {
	latDelta := radiusKm / kmPerDegree
	box := BoundingBox{
		MinLat: math.Max(lat-latDelta, -90),
		MaxLat: math.Min(lat+latDelta, 90),
		MinLon: -180,
		MaxLon: 180,
	}

	angular := radiusKm / EarthRadiusKm
	if math.Abs(lat)+degrees(angular) >= 90 || angular >= math.Pi/2 {
		return box
	}

	cosLat := math.Cos(radians(lat))
	lonDelta := radiusKm / (kmPerDegree * cosLat)
	if ratio := math.Sin(angular) / cosLat; ratio < 1 {
		lonDelta = math.Max(lonDelta, degrees(math.Asin(ratio)))
	} else {
		return box
	}

	if lon-lonDelta < -180 || lon+lonDelta > 180 {
		return box
	}
	box.MinLon = lon - lonDelta
	box.MaxLon = lon + lonDelta
	return box
}
