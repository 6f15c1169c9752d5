// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import "errors"

// Sentinel errors for the error kinds named in the error handling design.
// None of these are fatal to the process; every caller in this package
// logs and continues rather than propagating them further, except
// bus-name acquisition failure at startup which lives in cmd/geoclued.
var (
	// ErrNotInitialised is returned by CellSource.CreateQuery before any
	// cell tower fix has been reported.
	ErrNotInitialised = errors.New("source not initialised: no fix reported yet")

	// ErrParse wraps httpclient.ErrDecode when a WebSource's outbound
	// query response body could not be decoded.
	ErrParse = errors.New("failed to parse provider response")

	// ErrNetworkUnavailable means a refresh was requested while the network
	// is known to be unreachable; WebSource.Refresh logs it and is a no-op
	// until the next reachable transition.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrCancelled marks a query that was cancelled by the owning source's
	// Stop(), logged by WebSource.runQuery instead of propagated.
	ErrCancelled = errors.New("query cancelled")

	// ErrServerInvalidArguments, ErrServerNoMatches and ErrServerInternal are
	// the three buckets a provider-reported error is coerced into; all three
	// are treated identically to ErrParse by publication policy (suppress + log).
	ErrServerInvalidArguments = errors.New("provider reported invalid arguments")
	ErrServerNoMatches        = errors.New("provider reported no matches")
	ErrServerInternal         = errors.New("provider reported an internal error")

	// ErrDeviceAbsent signals no usable WiFi device; wraps the underlying
	// netlink error returned by collaborators.NewWifiPoller when no device
	// is present. collaborators.NewGPSDModem returns no error: it connects
	// to gpsd lazily.
	ErrDeviceAbsent = errors.New("no usable device")
)
