// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import "encoding/json"

// mozillaRequest is the Mozilla Location Service compatible geolocate
// request body. An empty body ({}) is a pure geoip query.
type mozillaRequest struct {
	RadioType        string             `json:"radioType,omitempty"`
	CellTowers       []mozillaCellTower `json:"cellTowers,omitempty"`
	WifiAccessPoints []mozillaWifiAP    `json:"wifiAccessPoints,omitempty"`
}

type mozillaCellTower struct {
	CellID            uint `json:"cellId"`
	MobileCountryCode uint `json:"mobileCountryCode"`
	MobileNetworkCode uint `json:"mobileNetworkCode"`
	LocationAreaCode  uint `json:"locationAreaCode"`
}

type mozillaWifiAP struct {
	MacAddress     string `json:"macAddress"`
	SignalStrength int    `json:"signalStrength"`
}

// mozillaResponse covers both the successful and the error-shaped
// response body a geolocate endpoint may return.
type mozillaResponse struct {
	Location *struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64       `json:"accuracy"`
	Error    *mozillaError `json:"error,omitempty"`
}

type mozillaError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Errors  []struct {
		Reason string `json:"reason"`
	} `json:"errors"`
}

// classifyMozillaError maps a provider-reported error onto the three
// buckets named in §7; all three are treated as parse-error by
// publication policy (suppress + log) at the call site.
func classifyMozillaError(e *mozillaError) error {
	if e == nil {
		return nil
	}
	reason := ""
	if len(e.Errors) > 0 {
		reason = e.Errors[0].Reason
	}
	switch reason {
	case "invalidArgument", "parseError":
		return ErrServerInvalidArguments
	case "notFound":
		return ErrServerNoMatches
	default:
		return ErrServerInternal
	}
}

// buildMozillaRequest formats the WiFi/cell geolocate request body from
// the currently tracked BSS set and, optionally, the latest cell tower.
// Either array is omitted entirely when empty, per §6.
func buildMozillaRequest(tower *CellTower, tracked []BSS) ([]byte, error) {
	req := mozillaRequest{RadioType: "gsm"}
	if tower != nil {
		req.CellTowers = []mozillaCellTower{{
			CellID:            tower.CellID,
			MobileCountryCode: tower.MCC,
			MobileNetworkCode: tower.MNC,
			LocationAreaCode:  tower.LAC,
		}}
	}
	for _, bss := range tracked {
		req.WifiAccessPoints = append(req.WifiAccessPoints, mozillaWifiAP{
			MacAddress:     bss.BSSID,
			SignalStrength: int(bss.SignalDBm),
		})
	}
	return json.Marshal(req)
}

// parseMozillaResponse turns a decoded geolocate response into a
// Location, or a classified error when the provider reported a failure
// or returned no location at all.
func parseMozillaResponse(resp *mozillaResponse) (*Location, error) {
	if resp.Error != nil {
		return nil, classifyMozillaError(resp.Error)
	}
	if resp.Location == nil {
		return nil, ErrServerNoMatches
	}
	return New(resp.Location.Lat, resp.Location.Lng, resp.Accuracy)
}

// submissionItem is one entry of the crowdsource submission payload (§6).
type submissionItem struct {
	Lat       float64          `json:"lat"`
	Lon       float64          `json:"lon"`
	Accuracy  *float64         `json:"accuracy,omitempty"`
	Altitude  *float64         `json:"altitude,omitempty"`
	Time      string           `json:"time"`
	RadioType string           `json:"radioType,omitempty"`
	Wifi      []submissionWifi `json:"wifi,omitempty"`
	Cell      []submissionCell `json:"cell,omitempty"`
}

type submissionWifi struct {
	Key       string `json:"key"`
	Signal    int    `json:"signal"`
	Frequency uint   `json:"frequency"`
}

type submissionCell struct {
	Radio string `json:"radio"`
	CID   uint   `json:"cid"`
	MCC   uint   `json:"mcc"`
	MNC   uint   `json:"mnc"`
	LAC   uint   `json:"lac"`
}

type submissionBody struct {
	Items []submissionItem `json:"items"`
}

// buildSubmissionRequest formats the best-effort crowdsource submission
// body for loc, observed alongside the given BSS set and cell tower.
func buildSubmissionRequest(loc *Location, tracked []BSS, tower *CellTower) ([]byte, error) {
	item := submissionItem{
		Lat:       loc.Latitude,
		Lon:       loc.Longitude,
		Time:      loc.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		RadioType: "gsm",
	}
	if acc, ok := loc.AccuracyMeters(); ok {
		item.Accuracy = &acc
	}
	if alt := loc.Altitude; alt.IsSet() {
		v := alt.Value()
		item.Altitude = &v
	}
	for _, bss := range tracked {
		item.Wifi = append(item.Wifi, submissionWifi{
			Key:       bss.BSSID,
			Signal:    int(bss.SignalDBm),
			Frequency: bss.FrequencyKHz,
		})
	}
	if tower != nil {
		item.Cell = append(item.Cell, submissionCell{
			Radio: "gsm",
			CID:   tower.CellID,
			MCC:   tower.MCC,
			MNC:   tower.MNC,
			LAC:   tower.LAC,
		})
	}
	return json.Marshal(submissionBody{Items: []submissionItem{item}})
}
