// Package geo maps coordinates onto the coarse grid used to group nearby clients.
package geo

import (
	"math"
	"strconv"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by DistanceMeters.
	EarthRadiusMeters = 6371e3

	// gridScale is the number of cells per degree (0.01° cells, ~1.1 km at the equator).
	gridScale = 100

	// floorEpsilon absorbs binary representation error so that 77.60*100 floors to 7760.
	floorEpsilon = 1e-9
)

// AreaKey returns the grid cell key for a coordinate pair. Coordinates are floored
// to two decimal places, so every point inside the same 0.01° cell maps to the same key.
// Cells shrink in east-west extent away from the equator.
func AreaKey(lat, lon float64) string {
	return formatCell(Floor(lat)) + "," + formatCell(Floor(lon))
}

// Floor truncates a coordinate down to the grid resolution.
func Floor(v float64) float64 {
	return math.Floor(v*gridScale+floorEpsilon) / gridScale
}

// CellOrigin returns the south-west corner of the cell containing the coordinate.
func CellOrigin(lat, lon float64) (float64, float64) {
	return Floor(lat), Floor(lon)
}

func formatCell(v float64) string {
	if v == 0 {
		// normalise -0
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DistanceMeters returns the great-circle distance between two coordinates
// using the haversine formula.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}
