// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

// Registry holds the process-wide source singletons shared across
// every Locator (§5, "Shared resources"): two WifiSource buckets keyed
// by accuracy-cap, one CellSource, one ModemGpsSource, and one
// IpSource. Singletons are started on a child's first activation and
// stopped only after the last Locator referencing them deactivates;
// that reference counting lives in baseSource/Locator, not here —
// Registry only hands out the shared instances.
type Registry struct {
	wifiLow  *WifiSource // serves Locators capped at <= CITY (geoip-only)
	wifiHigh *WifiSource // serves Locators capped above CITY (supplicant-backed)
	cell     *CellSource
	modem    *ModemGpsSource
	ip       *IpSource // last-resort freegeoip fallback, every Locator
}

// NewRegistry wires modem as the shared submit source for both WiFi
// buckets. The cell source gets no submit source: CellSource does not
// implement Submitter, so it never submits.
func NewRegistry(wifiLow, wifiHigh *WifiSource, cell *CellSource, modem *ModemGpsSource, ip *IpSource) *Registry {
	if modem != nil {
		wifiLow.SetSubmitSource(modem)
		wifiHigh.SetSubmitSource(modem)
	}
	return &Registry{wifiLow: wifiLow, wifiHigh: wifiHigh, cell: cell, modem: modem, ip: ip}
}

// NewLocator builds a fresh Locator for one ClientService, over the
// shared singletons, picking the WiFi bucket matching requestedCap
// (§4.5: "Two singletons exist process-wide, keyed by accuracy-cap bucket").
// IpSource joins every Locator: it never exceeds CITY, so a Locator
// capped below CITY simply never activates it (the Locator only
// activates children whose level lies within (NONE, cap]).
func (r *Registry) NewLocator(name string, requestedCap AccuracyLevel) *Locator {
	level := CoerceRequestedLevel(requestedCap)
	wifi := r.wifiHigh
	if level <= AccuracyCity {
		wifi = r.wifiLow
	}

	children := make([]LocationSource, 0, 4)
	if wifi != nil {
		children = append(children, wifi)
	}
	if r.cell != nil {
		children = append(children, r.cell)
	}
	if r.modem != nil {
		children = append(children, r.modem)
	}
	if r.ip != nil {
		children = append(children, r.ip)
	}
	return NewLocator(name, level, children...)
}
