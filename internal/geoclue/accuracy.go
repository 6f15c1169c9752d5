// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import "strings"

// AccuracyLevel is a total order over how precisely a source or client
// can be served. Numeric gaps between constants are intentional and
// must be preserved by anyone adding levels; only the ordering is load
// bearing, not the literal values.
type AccuracyLevel uint

const (
	AccuracyNone         AccuracyLevel = 0
	AccuracyCountry      AccuracyLevel = 1
	AccuracyCity         AccuracyLevel = 4
	AccuracyNeighborhood AccuracyLevel = 5
	AccuracyStreet       AccuracyLevel = 6
	AccuracyExact        AccuracyLevel = 8
)

// String renders the canonical name of the level, for logging.
func (a AccuracyLevel) String() string {
	switch a {
	case AccuracyNone:
		return "none"
	case AccuracyCountry:
		return "country"
	case AccuracyCity:
		return "city"
	case AccuracyNeighborhood:
		return "neighborhood"
	case AccuracyStreet:
		return "street"
	case AccuracyExact:
		return "exact"
	default:
		return "unknown"
	}
}

// Accuracy buckets in metres, used to coerce provider string tags and
// coarse-grained sources into a numeric radius.
const (
	BucketStreet    = 1000.0
	BucketCity      = 15000.0
	BucketRegion    = 50000.0
	BucketCountry   = 300000.0
	BucketContinent = 3000000.0
)

// AccuracyMetersFromTag maps a provider-supplied string tag to a radius
// in metres. Unknown tags fall back to BucketContinent, the widest
// (least informative) bucket, rather than being rejected outright.
func AccuracyMetersFromTag(tag string) float64 {
	switch tag {
	case "street":
		return BucketStreet
	case "city":
		return BucketCity
	case "region":
		return BucketRegion
	case "country":
		return BucketCountry
	case "continent":
		return BucketContinent
	default:
		return BucketContinent
	}
}

// CoerceRequestedLevel applies the Locator constructor's rule: COUNTRY is
// coerced up to CITY because no source offers country-only accuracy.
func CoerceRequestedLevel(requested AccuracyLevel) AccuracyLevel {
	if requested == AccuracyCountry {
		return AccuracyCity
	}
	return requested
}

// ParseAccuracyLevel maps a config-file accuracy name (§6
// max-accuracy-level) to its AccuracyLevel, case-insensitively. ok is
// false for an unrecognised name.
func ParseAccuracyLevel(name string) (level AccuracyLevel, ok bool) {
	switch strings.ToLower(name) {
	case "none":
		return AccuracyNone, true
	case "country":
		return AccuracyCountry, true
	case "city":
		return AccuracyCity, true
	case "neighborhood", "neighbourhood":
		return AccuracyNeighborhood, true
	case "street":
		return AccuracyStreet, true
	case "exact":
		return AccuracyExact, true
	default:
		return AccuracyNone, false
	}
}
