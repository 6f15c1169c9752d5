// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"fmt"
	"math"
	"time"

	"github.com/geoclued/geoclued/internal/vartype"
)

// EarthRadiusKm is the sphere radius used for great-circle distance,
// matching the value the spec calls out explicitly rather than the
// more common WGS-84 mean radius.
const EarthRadiusKm = 6372.795

// Location is an immutable-ish geographic fix. It is replaced wholesale
// on every new reading, never mutated in place once published.
type Location struct {
	Latitude    float64
	Longitude   float64
	Accuracy    vartype.VarFloat64 // metres, or unset for UNKNOWN
	Altitude    vartype.VarFloat64 // metres, or unset for UNKNOWN
	Timestamp   time.Time
	Description string
	Speed       vartype.VarFloat64 // m/s, derived, or unset for UNKNOWN
	Heading     vartype.VarFloat64 // degrees, derived, or unset for UNKNOWN
}

// New constructs a Location from latitude, longitude and accuracy,
// timestamped now. Latitude/longitude out of range or a negative
// accuracy are rejected.
func New(lat, lon, accuracyMeters float64) (*Location, error) {
	return NewWithDescription(lat, lon, accuracyMeters, "")
}

// NewWithDescription is New plus a free-text description field.
func NewWithDescription(lat, lon, accuracyMeters float64, description string) (*Location, error) {
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("latitude %f out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("longitude %f out of range [-180, 180]", lon)
	}
	if accuracyMeters < 0 {
		return nil, fmt.Errorf("accuracy %f must be non-negative or unset", accuracyMeters)
	}

	loc := &Location{
		Latitude:    lat,
		Longitude:   lon,
		Description: description,
		Timestamp:   time.Now(),
	}
	loc.Accuracy.Set(accuracyMeters)
	return loc, nil
}

// AccuracyMeters returns the accuracy in metres, or 0 with ok=false
// when unset (UNKNOWN).
func (l *Location) AccuracyMeters() (float64, bool) {
	return l.Accuracy.Value(), l.Accuracy.IsSet()
}

// DistanceTo computes the great-circle distance to other in kilometres
// using the spherical law of cosines, ignoring altitude. It is
// symmetric and zero for identical coordinates.
func (l *Location) DistanceTo(other *Location) float64 {
	if l.Latitude == other.Latitude && l.Longitude == other.Longitude {
		return 0
	}

	lat1 := l.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLon := (other.Longitude - l.Longitude) * math.Pi / 180

	cosAngle := math.Sin(lat1)*math.Sin(lat2) + math.Cos(lat1)*math.Cos(lat2)*math.Cos(dLon)
	// Clamp for float rounding at the antipodes/identical points.
	cosAngle = math.Max(-1, math.Min(1, cosAngle))
	return math.Acos(cosAngle) * EarthRadiusKm
}

// DistanceMeters is DistanceTo expressed in metres, the unit the merge
// rule and threshold filtering operate in.
func (l *Location) DistanceMeters(other *Location) float64 {
	return l.DistanceTo(other) * 1000
}

// SetSpeedFromPrev computes Speed as metres-distance over seconds-elapsed
// relative to prev. Speed becomes UNKNOWN when prev is nil or the
// timestamps coincide.
func (l *Location) SetSpeedFromPrev(prev *Location) {
	elapsed := l.elapsedSeconds(prev)
	if elapsed <= 0 {
		l.Speed.Reset()
		return
	}
	l.Speed.Set(l.DistanceMeters(prev) / elapsed)
}

// SetHeadingFromPrev computes Heading via the standard initial-bearing
// (forward azimuth) formula relative to prev. Heading becomes UNKNOWN
// when prev is nil, the timestamps coincide, or the two fixes are
// coincident (bearing is undefined at zero distance).
func (l *Location) SetHeadingFromPrev(prev *Location) {
	elapsed := l.elapsedSeconds(prev)
	if elapsed <= 0 || (l.Latitude == prev.Latitude && l.Longitude == prev.Longitude) {
		l.Heading.Reset()
		return
	}

	lat1 := prev.Latitude * math.Pi / 180
	lat2 := l.Latitude * math.Pi / 180
	dLon := (l.Longitude - prev.Longitude) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	bearing := math.Atan2(y, x) * 180 / math.Pi
	l.Heading.Set(math.Mod(bearing+360, 360))
}

func (l *Location) elapsedSeconds(prev *Location) float64 {
	if prev == nil {
		return 0
	}
	return l.Timestamp.Sub(prev.Timestamp).Seconds()
}
