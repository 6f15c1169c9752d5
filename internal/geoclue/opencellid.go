// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"net/url"
	"strconv"
)

// OpenCellIDCoverageRadius is the average coverage radius assumed for
// an OpenCellID cell lookup, used as the published location's accuracy
// since OpenCellID itself reports none.
const OpenCellIDCoverageRadius = 3000.0

// openCellIDResponse mirrors the provider's XML response shape:
// <rsp><cell lat="…" lon="…"/></rsp>.
type openCellIDResponse struct {
	Cell struct {
		Lat float64 `xml:"lat,attr"`
		Lon float64 `xml:"lon,attr"`
	} `xml:"cell"`
}

// buildOpenCellIDQuery URL-encodes the GET parameters for an OpenCellID
// cell lookup.
func buildOpenCellIDQuery(tower CellTower, apiKey string) url.Values {
	q := url.Values{}
	q.Set("mcc", strconv.FormatUint(uint64(tower.MCC), 10))
	q.Set("mnc", strconv.FormatUint(uint64(tower.MNC), 10))
	q.Set("lac", strconv.FormatUint(uint64(tower.LAC), 10))
	q.Set("cellid", strconv.FormatUint(uint64(tower.CellID), 10))
	q.Set("apiKey", apiKey)
	return q
}

// parseOpenCellIDResponse turns a decoded OpenCellID response into a
// Location at the assumed coverage radius.
func parseOpenCellIDResponse(resp *openCellIDResponse) (*Location, error) {
	if resp.Cell.Lat == 0 && resp.Cell.Lon == 0 {
		return nil, ErrServerNoMatches
	}
	return New(resp.Cell.Lat, resp.Cell.Lon, OpenCellIDCoverageRadius)
}
