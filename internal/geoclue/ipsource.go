// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"

	"github.com/geoclued/geoclued/internal/httpclient"
	"github.com/geoclued/geoclued/internal/logger"
)

// IpSource is the process-wide singleton querying a freegeoip-compatible
// geoip server with no IP argument (auto-detect by server, per
// gclue-ipclient.c's ip == NULL path): the server resolves the caller's
// own public address and returns the best locality hint it has.
// Unlike WifiSource's CITY-bucket fallback, which POSTs an empty object
// to the Mozilla-shaped geolocate endpoint (§8's worked example),
// IpSource is the separate, lower-priority freegeoip-style query
// geoclued issues when nothing else is available at all.
type IpSource struct {
	WebSource

	url string
}

// NewIpSource constructs the IpSource singleton.
func NewIpSource(name string, httpClient *httpclient.Client, log *logger.Logger, network NetworkEventSource, url string) *IpSource {
	s := &IpSource{url: url}
	s.WebSource = newWebSource(name, nil, httpClient, log, network, s)
	return s
}

// Start queries once on activation: the caller's apparent location from
// a geoip server rarely changes while the process runs, so unlike
// WifiSource/CellSource there is no event stream to re-trigger it.
func (s *IpSource) Start() bool {
	if !s.start() {
		return false
	}
	ctx := context.Background()
	s.startWeb(ctx)
	s.recomputeAvailableAccuracy()
	if s.network.Reachable() {
		s.Refresh(ctx)
	}
	return true
}

// Stop cancels any outstanding query.
func (s *IpSource) Stop() bool {
	if !s.stop() {
		return false
	}
	s.stopWeb()
	return true
}

func (s *IpSource) recomputeAvailableAccuracy() {
	if s.network.Reachable() {
		s.setAvailableAccuracyLevel(AccuracyCity)
		return
	}
	s.setAvailableAccuracyLevel(AccuracyNone)
}

// CreateQuery implements WebResponder: a bare GET with no query string,
// matching gclue_ipclient_new()'s auto-detect mode.
func (s *IpSource) CreateQuery() (*WebQuery, error) {
	return &WebQuery{
		Method: "GET",
		URL:    s.url,
		Target: new(ipGeolocationResponse),
		Decode: httpclient.JSONDecoder,
	}, nil
}

// ParseResponse implements WebResponder.
func (s *IpSource) ParseResponse(target any) (*Location, error) {
	return parseIPGeolocationResponse(target.(*ipGeolocationResponse))
}
