// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import "testing"

func TestRegistryWiresModemAsSharedSubmitSource(t *testing.T) {
	wifiLow := NewWifiSource("wifi-low", nil, nil, nil, nil, AccuracyCity, "", "", "")
	wifiHigh := NewWifiSource("wifi-high", nil, nil, nil, nil, AccuracyExact, "", "", "")
	modem := NewModemGpsSource("modem", nil)

	NewRegistry(wifiLow, wifiHigh, nil, modem, nil)

	if wifiLow.submitSource != modem {
		t.Error("expected wifiLow's submit source to be wired to modem")
	}
	if wifiHigh.submitSource != modem {
		t.Error("expected wifiHigh's submit source to be wired to modem")
	}
}

func TestRegistryNewLocatorBucketSelection(t *testing.T) {
	wifiLow := NewWifiSource("wifi-low", nil, nil, nil, nil, AccuracyCity, "", "", "")
	wifiHigh := NewWifiSource("wifi-high", nil, nil, nil, nil, AccuracyExact, "", "", "")
	cell := NewCellSource("cell", nil, nil, nil, nil, "", "")
	modem := NewModemGpsSource("modem", nil)
	ip := NewIpSource("ip", nil, nil, nil, "")
	registry := NewRegistry(wifiLow, wifiHigh, cell, modem, ip)

	lowLocator := registry.NewLocator("client-a", AccuracyCity)
	if len(lowLocator.children) == 0 || lowLocator.children[0] != wifiLow {
		t.Error("expected a <=CITY request to pick the geoip-only wifi bucket")
	}

	highLocator := registry.NewLocator("client-b", AccuracyExact)
	if len(highLocator.children) == 0 || highLocator.children[0] != wifiHigh {
		t.Error("expected an above-CITY request to pick the supplicant-backed wifi bucket")
	}
}
