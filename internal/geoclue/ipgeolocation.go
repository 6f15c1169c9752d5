// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import "fmt"

// ipGeolocationResponse covers the freegeoip-compatible response body
// IpSource consumes from its auto-detect query. Distinct from the
// Mozilla-shaped mozillaResponse WifiSource's CITY-bucket geoip
// fallback parses; the two are separate providers with separate wire
// formats (§9 design note (b)).
type ipGeolocationResponse struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Accuracy    string  `json:"accuracy,omitempty"`
	Street      string  `json:"street,omitempty"`
	City        string  `json:"city,omitempty"`
	RegionName  string  `json:"region_name,omitempty"`
	CountryName string  `json:"country_name,omitempty"`
	Continent   string  `json:"continent,omitempty"`
	ErrorCode   string  `json:"error_code,omitempty"`
	ErrorMsg    string  `json:"error_message,omitempty"`
}

// parseIPGeolocationResponse turns a decoded freegeoip-compatible
// response into a Location, coercing whichever locality hint is present
// into a numeric accuracy radius per §3's accuracy buckets.
func parseIPGeolocationResponse(resp *ipGeolocationResponse) (*Location, error) {
	if resp.ErrorCode != "" {
		switch resp.ErrorCode {
		case "INVALID_IP_ADDRESS", "INVALID_ENTRY":
			return nil, fmt.Errorf("%w: %s", ErrServerInvalidArguments, resp.ErrorMsg)
		default:
			return nil, fmt.Errorf("%w: %s", ErrServerInternal, resp.ErrorMsg)
		}
	}

	radius := ipAccuracyRadius(resp)
	return New(resp.Latitude, resp.Longitude, radius)
}

func ipAccuracyRadius(resp *ipGeolocationResponse) float64 {
	if resp.Accuracy != "" {
		return AccuracyMetersFromTag(resp.Accuracy)
	}
	switch {
	case resp.Street != "":
		return BucketStreet
	case resp.City != "":
		return BucketCity
	case resp.RegionName != "":
		return BucketRegion
	case resp.CountryName != "":
		return BucketCountry
	case resp.Continent != "":
		return BucketContinent
	default:
		return BucketContinent
	}
}
