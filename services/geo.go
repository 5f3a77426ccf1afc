package services

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Dzmitry-Rybak/natours/models"
)

const (
	earthRadiusKm    = 6378.1
	earthRadiusMiles = 3963.2

	metersToMiles = 0.000621371
	metersToKm    = 0.001
)

var ErrInvalidLatLng = errors.New("Please provide latitude and longitude in the format lat,lng.")

func earthRadius(unit string) float64 {
	if unit == "mi" {
		return earthRadiusMiles
	}
	return earthRadiusKm
}

// RadiusFromDistance converts a distance to radians for $centerSphere.
func RadiusFromDistance(distance float64, unit string) float64 {
	return distance / earthRadius(unit)
}

// DistanceMultiplier converts $geoNear meters to the requested unit.
func DistanceMultiplier(unit string) float64 {
	if unit == "mi" {
		return metersToMiles
	}
	return metersToKm
}

// ParseLatLng parses "lat,lng".
func ParseLatLng(s string) (lat, lng float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidLatLng
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, ErrInvalidLatLng
	}
	lng, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || lng < -180 || lng > 180 {
		return 0, 0, ErrInvalidLatLng
	}
	return lat, lng, nil
}

// HaversineDistance returns the great circle distance in the given unit.
func HaversineDistance(lat1, lng1, lat2, lng2 float64, unit string) float64 {
	const rad = math.Pi / 180
	sinLat := math.Sin((lat2 - lat1) * rad / 2)
	sinLng := math.Sin((lng2 - lng1) * rad / 2)
	h := sinLat*sinLat + math.Cos(lat1*rad)*math.Cos(lat2*rad)*sinLng*sinLng
	return 2 * earthRadius(unit) * math.Asin(math.Sqrt(math.Min(1, h)))
}

// SortByDistance orders tours by how close their start is to lat,lng.
// Tours without a start location go last.
func SortByDistance(tours []models.Tour, lat, lng float64) {
	dist := func(t *models.Tour) float64 {
		if t.StartLocation == nil || len(t.StartLocation.Coordinates) != 2 {
			return math.Inf(1)
		}
		c := t.StartLocation.Coordinates
		return HaversineDistance(lat, lng, c[1], c[0], "km")
	}
	sort.SliceStable(tours, func(i, j int) bool {
		return dist(&tours[i]) < dist(&tours[j])
	})
}
