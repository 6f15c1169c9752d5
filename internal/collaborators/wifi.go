// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package collaborators provides the real implementations of the
// external-collaborator interfaces geoclue.WifiSource, CellSource and
// ModemGpsSource consume (§1's "out of scope" network-manager/
// wpa-supplicant and ModemManager equivalents): WiFi AP enumeration
// over netlink, GPS fixes over gpsd, and network reachability.
package collaborators

import (
	"context"
	"fmt"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/geoclued/geoclued/internal/geoclue"
	"github.com/geoclued/geoclued/internal/job"
	"github.com/geoclued/geoclued/internal/logger"
)

// wifiPollInterval is how often the station interface's AP list is
// re-scanned. The corpus has no netlink supplicant-signal subscription,
// so polling substitutes for push notification (Open Question d).
const wifiPollInterval = 30 * time.Second

// WifiPoller implements geoclue.WifiEventSource over
// github.com/mdlayher/wifi, the same library and BSSID/SSID filtering
// rule the teacher's ichnaea provider uses for access-point discovery.
type WifiPoller struct {
	client *wifi.Client
	log    *logger.Logger
}

// NewWifiPoller opens a netlink WiFi client. A nil return with a
// non-nil error means no WiFi device is usable on this host; callers
// should fall back to the ≤CITY geoip-only WifiSource in that case.
func NewWifiPoller(log *logger.Logger) (*WifiPoller, error) {
	client, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", geoclue.ErrDeviceAbsent, err)
	}
	return &WifiPoller{client: client, log: log}, nil
}

// HasDevice implements geoclue.WifiEventSource.
func (w *WifiPoller) HasDevice() bool {
	ifaces, err := w.stationInterfaces()
	if err != nil {
		return false
	}
	return len(ifaces) > 0
}

// Events implements geoclue.WifiEventSource: it polls AP lists and
// diffs them into the supplicant-shaped event stream WifiSource expects.
// Polling runs in singleton mode (a slow scan never overlaps the next
// tick) via internal/job.
func (w *WifiPoller) Events(ctx context.Context) <-chan geoclue.WifiEvent {
	out := make(chan geoclue.WifiEvent, 8)
	seen := make(map[string]geoclue.BSS)
	hadDevice := false

	w.poll(ctx, out, seen, &hadDevice)
	j := job.New(wifiPollInterval, func(taskCtx context.Context) {
		w.poll(taskCtx, out, seen, &hadDevice)
	})

	go func() {
		defer close(out)
		j.Start(ctx)
	}()

	return out
}

func (w *WifiPoller) poll(ctx context.Context, out chan<- geoclue.WifiEvent, seen map[string]geoclue.BSS, hadDevice *bool) {
	ifaces, err := w.stationInterfaces()
	if err != nil {
		w.log.Debug("failed to list wifi interfaces", logger.Err(err))
		return
	}

	hasDevice := len(ifaces) > 0
	if hasDevice != *hadDevice {
		*hadDevice = hasDevice
		kind := geoclue.WifiInterfaceRemoved
		if hasDevice {
			kind = geoclue.WifiInterfaceAdded
		}
		send(ctx, out, geoclue.WifiEvent{Kind: kind})
	}
	if !hasDevice {
		return
	}

	current := make(map[string]geoclue.BSS)
	for _, iface := range ifaces {
		aps, err := w.client.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			bss := geoclue.BSS{
				BSSID:        ap.BSSID.String(),
				SSID:         ap.SSID,
				SignalDBm:    float64(ap.Signal) / 100,
				FrequencyKHz: uint(ap.Frequency),
			}
			current[bss.BSSID] = bss
		}
	}

	for bssid, bss := range current {
		prev, existed := seen[bssid]
		if !existed {
			send(ctx, out, geoclue.WifiEvent{Kind: geoclue.WifiBSSAdded, BSS: bss})
			continue
		}
		if prev.SignalDBm != bss.SignalDBm {
			send(ctx, out, geoclue.WifiEvent{Kind: geoclue.WifiSignalChanged, BSS: bss})
		}
	}
	for bssid, bss := range seen {
		if _, stillPresent := current[bssid]; !stillPresent {
			send(ctx, out, geoclue.WifiEvent{Kind: geoclue.WifiBSSRemoved, BSS: bss})
		}
	}

	for k := range seen {
		delete(seen, k)
	}
	for k, v := range current {
		seen[k] = v
	}
}

func (w *WifiPoller) stationInterfaces() ([]*wifi.Interface, error) {
	ifaces, err := w.client.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]*wifi.Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		out = append(out, iface)
	}
	return out, nil
}

func send(ctx context.Context, out chan<- geoclue.WifiEvent, ev geoclue.WifiEvent) {
	select {
	case <-ctx.Done():
	case out <- ev:
	}
}
