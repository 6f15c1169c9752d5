// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import "context"

// These types describe the external collaborators the spec treats as
// out of core scope: network-manager/wpa-supplicant and the
// ModemManager equivalent. The core only ever consumes the event
// streams below; it never talks to D-Bus, netlink or a modem directly
// except through a concrete implementation of these interfaces.

// BSS is a single observed WiFi access point.
type BSS struct {
	BSSID        string
	SSID         string
	SignalDBm    float64
	FrequencyKHz uint
}

// nomap reports whether ssid is empty or carries the opt-out suffix;
// either excludes a BSS from ever entering the tracked or ignored sets.
func (b BSS) nomap() bool {
	return b.SSID == "" || hasNomapSuffix(b.SSID)
}

func hasNomapSuffix(ssid string) bool {
	const suffix = "_nomap"
	return len(ssid) >= len(suffix) && ssid[len(ssid)-len(suffix):] == suffix
}

// WifiEventKind enumerates the supplicant events WifiSource reacts to.
type WifiEventKind int

const (
	WifiInterfaceAdded WifiEventKind = iota
	WifiInterfaceRemoved
	WifiBSSAdded
	WifiBSSRemoved
	WifiSignalChanged
)

// WifiEvent is one item of the supplicant event stream.
type WifiEvent struct {
	Kind      WifiEventKind
	Interface string
	BSS       BSS
}

// WifiEventSource is the supplicant collaborator WifiSource consumes.
type WifiEventSource interface {
	// HasDevice reports whether any WiFi interface is currently known.
	HasDevice() bool
	// Events streams supplicant events until ctx is done.
	Events(ctx context.Context) <-chan WifiEvent
}

// CellTower identifies a single observed cell.
type CellTower struct {
	MCC    uint
	MNC    uint
	LAC    uint
	CellID uint
}

// ModemEventKind enumerates the ModemManager-equivalent events CellSource
// and ModemGpsSource react to.
type ModemEventKind int

const (
	ModemFix3G ModemEventKind = iota
	ModemGPSFix
	ModemCapabilityChanged
)

// ModemEvent is one item of the modem event stream.
type ModemEvent struct {
	Kind      ModemEventKind
	CellTower CellTower
	GPSFix    *Location
	Has3G     bool
}

// ModemEventSource is the modem collaborator CellSource and
// ModemGpsSource consume.
type ModemEventSource interface {
	Events(ctx context.Context) <-chan ModemEvent
}

// NetworkEvent signals a reachability transition.
type NetworkEvent struct {
	Reachable bool
}

// NetworkEventSource is the network-manager collaborator WebSource consumes
// to decide when a refresh may proceed and when to retry after failure.
type NetworkEventSource interface {
	Reachable() bool
	Events(ctx context.Context) <-chan NetworkEvent
}
