package lanegraph

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const (
	earthRadius = 6370.986884258304
	pi180       = math.Pi / 180.0
	pi180Rev    = 180.0 / math.Pi
)

// GeoPoint representation of point on Earth
type GeoPoint struct {
	Lat float64
	Lon float64
}

// String returns pretty printed value for GeoPoint
func (gp GeoPoint) String() string {
	return fmt.Sprintf("Lon: %f | Lat: %f", gp.Lon, gp.Lat)
}

// degreesToRadians deg = r * pi / 180
func degreesToRadians(d float64) float64 {
	return d * pi180
}

// radiansTodegrees r = deg  * 180 / pi
func radiansTodegrees(d float64) float64 {
	return d * pi180Rev
}

// greatCircleDistance returns distance between two geo-points (kilometers)
func greatCircleDistance(p, q GeoPoint) float64 {
	lat1 := degreesToRadians(p.Lat)
	lon1 := degreesToRadians(p.Lon)
	lat2 := degreesToRadians(q.Lat)
	lon2 := degreesToRadians(q.Lon)
	diffLat := lat2 - lat1
	diffLon := lon2 - lon1
	a := math.Pow(math.Sin(diffLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(diffLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	ans := c * earthRadius
	return ans
}

// getSphericalLength returns length for given line (kilometers)
func getSphericalLength(line []GeoPoint) float64 {
	totalLength := 0.0
	if len(line) < 2 {
		return totalLength
	}
	for i := 1; i < len(line); i++ {
		totalLength += greatCircleDistance(line[i-1], line[i])
	}
	return totalLength
}

// findCentroid returns center point for given line (not middle point)
func findCentroid(line []GeoPoint) GeoPoint {
	totalPoints := len(line)
	if totalPoints == 1 {
		return line[0]
	}
	x, y, z := 0.0, 0.0, 0.0
	for i := 0; i < totalPoints; i++ {
		longitude := degreesToRadians(line[i].Lon)
		latitude := degreesToRadians(line[i].Lat)
		c1 := math.Cos(latitude)
		x += c1 * math.Cos(longitude)
		y += c1 * math.Sin(longitude)
		z += math.Sin(latitude)
	}

	x /= float64(totalPoints)
	y /= float64(totalPoints)
	z /= float64(totalPoints)

	centralLongitude := math.Atan2(y, x)
	centralSquareRoot := math.Sqrt(x*x + y*y)
	centralLatitude := math.Atan2(z, centralSquareRoot)

	return GeoPoint{
		Lon: radiansTodegrees(centralLongitude),
		Lat: radiansTodegrees(centralLatitude),
	}
}

// pointOnSegmentByFraction returns a point on given segment assuming knowledge about fraction
func pointOnSegmentByFraction(p, q GeoPoint, fraction float64) GeoPoint {
	return GeoPoint{
		Lon: (1-fraction)*p.Lon + (fraction * q.Lon),
		Lat: (1-fraction)*p.Lat + (fraction * q.Lat),
	}
}

// projectLocal converts a geographic line to a planar line in meters
// using an equirectangular projection around the given reference
// latitude. Good enough at lane scale; the near/crossing thresholds
// expect planar meters.
func projectLocal(line []GeoPoint, refLat float64) orb.LineString {
	cosRef := math.Cos(degreesToRadians(refLat))
	projected := make(orb.LineString, 0, len(line))
	for _, pt := range line {
		x := earthRadius * 1000.0 * degreesToRadians(pt.Lon) * cosRef
		y := earthRadius * 1000.0 * degreesToRadians(pt.Lat)
		projected = append(projected, orb.Point{x, y})
	}
	return projected
}
