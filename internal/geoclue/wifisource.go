// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/geoclued/geoclued/internal/httpclient"
	"github.com/geoclued/geoclued/internal/logger"
)

// coalesceWindow is the BSS-change coalescing window (§4.5): bursts of
// admissions within this window produce a single outbound query.
const coalesceWindow = time.Second

// wifiSignalThreshold is the admission/promotion boundary in dBm (§3).
const wifiSignalThreshold = -90.0

// WifiSource tracks nearby access points via a supplicant event stream,
// applies the BSS admission rules, and formats/parses Mozilla Location
// Service requests. Two singletons exist process-wide, keyed by
// accuracy-cap bucket (§4.5); a ≤CITY instance never opens the
// supplicant connection and behaves as a pure geoip client.
type WifiSource struct {
	WebSource

	events       WifiEventSource // nil for the ≤CITY geoip-only singleton
	requestedCap AccuracyLevel
	apiURL       string
	submitURL    string
	submitNick   string

	mu      sync.Mutex
	tracked map[string]BSS
	ignored map[string]BSS
	timer   *time.Timer
	runCtx  context.Context
}

// NewWifiSource constructs a WifiSource. events is nil for the
// ≤CITY bucket singleton, which never attempts supplicant discovery.
func NewWifiSource(name string, httpClient *httpclient.Client, log *logger.Logger, network NetworkEventSource, events WifiEventSource, requestedCap AccuracyLevel, apiURL, submitURL, submitNick string) *WifiSource {
	w := &WifiSource{
		events:       events,
		requestedCap: requestedCap,
		apiURL:       apiURL,
		submitURL:    submitURL,
		submitNick:   submitNick,
		tracked:      make(map[string]BSS),
		ignored:      make(map[string]BSS),
	}
	w.WebSource = newWebSource(name, nil, httpClient, log, network, w)
	return w
}

// Start begins supplicant event consumption (if any) and the shared
// WebSource submit-subscription logic. Idempotent.
func (w *WifiSource) Start() bool {
	if !w.start() {
		return false
	}
	w.mu.Lock()
	w.runCtx = context.Background()
	w.mu.Unlock()

	w.startWeb(w.runCtx)
	w.recomputeAvailableAccuracy()
	if w.events != nil {
		go w.consumeEvents(w.runCtx)
	}
	return true
}

// Stop cancels the outstanding query, detaches the submit source and
// the coalescing timer. Idempotent.
func (w *WifiSource) Stop() bool {
	if !w.stop() {
		return false
	}
	w.stopWeb()
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	return true
}

func (w *WifiSource) hasDevice() bool {
	return w.events != nil && w.events.HasDevice()
}

// recomputeAvailableAccuracy implements the §4.5 policy table.
func (w *WifiSource) recomputeAvailableAccuracy() {
	if !w.hasDevice() {
		if w.requestedCap >= AccuracyCity {
			w.setAvailableAccuracyLevel(AccuracyCity)
			w.scheduleRefresh()
		} else {
			w.setAvailableAccuracyLevel(AccuracyNone)
		}
		return
	}
	if w.network.Reachable() {
		w.setAvailableAccuracyLevel(AccuracyStreet)
	} else {
		w.setAvailableAccuracyLevel(AccuracyNone)
	}
}

func (w *WifiSource) consumeEvents(ctx context.Context) {
	ch := w.events.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			w.handleEvent(ev)
		}
	}
}

func (w *WifiSource) handleEvent(ev WifiEvent) {
	switch ev.Kind {
	case WifiInterfaceAdded, WifiInterfaceRemoved:
		w.recomputeAvailableAccuracy()
	case WifiBSSAdded:
		w.admitBSS(ev.BSS)
	case WifiBSSRemoved:
		w.mu.Lock()
		delete(w.tracked, ev.BSS.BSSID)
		delete(w.ignored, ev.BSS.BSSID)
		w.mu.Unlock()
	case WifiSignalChanged:
		w.signalChanged(ev.BSS)
	}
}

// admitBSS applies the bss-added admission rule (§4.5).
func (w *WifiSource) admitBSS(bss BSS) {
	if bss.nomap() {
		return
	}

	w.mu.Lock()
	if bss.SignalDBm <= wifiSignalThreshold {
		w.ignored[bss.BSSID] = bss
		w.mu.Unlock()
		return
	}
	w.tracked[bss.BSSID] = bss
	w.mu.Unlock()
	w.scheduleRefresh()
}

// signalChanged applies the signal-notify promotion rule for an
// ignored BSS crossing the threshold.
func (w *WifiSource) signalChanged(bss BSS) {
	w.mu.Lock()
	_, isIgnored := w.ignored[bss.BSSID]
	if !isIgnored {
		if _, isTracked := w.tracked[bss.BSSID]; isTracked {
			w.tracked[bss.BSSID] = bss
		}
		w.mu.Unlock()
		return
	}
	if bss.SignalDBm > wifiSignalThreshold {
		delete(w.ignored, bss.BSSID)
		w.tracked[bss.BSSID] = bss
		w.mu.Unlock()
		w.scheduleRefresh()
		return
	}
	w.ignored[bss.BSSID] = bss
	w.mu.Unlock()
}

// scheduleRefresh (re)arms the one-second coalescing timer, rescheduling
// it on every new admission per §5.
func (w *WifiSource) scheduleRefresh() {
	w.mu.Lock()
	ctx := w.runCtx
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(coalesceWindow, func() {
		if w.Active() {
			w.Refresh(ctx)
		}
	})
	w.mu.Unlock()
}

func (w *WifiSource) trackedSlice() []BSS {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]BSS, 0, len(w.tracked))
	for _, bss := range w.tracked {
		out = append(out, bss)
	}
	return out
}

// CreateQuery implements WebResponder. A ≤CITY-bucket geoip-only
// instance always sends the empty-body pure-geoip query.
func (w *WifiSource) CreateQuery() (*WebQuery, error) {
	var body []byte
	var err error
	if w.hasDevice() {
		body, err = buildMozillaRequest(nil, w.trackedSlice())
	} else {
		body, err = json.Marshal(struct{}{})
	}
	if err != nil {
		return nil, err
	}

	return &WebQuery{
		Method:  "POST",
		URL:     w.apiURL,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
		Target:  new(mozillaResponse),
		Decode:  httpclient.JSONDecoder,
	}, nil
}

// ParseResponse implements WebResponder.
func (w *WifiSource) ParseResponse(target any) (*Location, error) {
	return parseMozillaResponse(target.(*mozillaResponse))
}

// CreateSubmitQuery implements Submitter; it returns ok=false when no
// submission URL is configured, disabling submission entirely.
func (w *WifiSource) CreateSubmitQuery(loc *Location) (*WebQuery, bool) {
	if w.submitURL == "" {
		return nil, false
	}
	body, err := buildSubmissionRequest(loc, w.trackedSlice(), nil)
	if err != nil {
		return nil, false
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if w.submitNick != "" {
		headers["X-Nickname"] = w.submitNick
	}
	return &WebQuery{Method: "POST", URL: w.submitURL, Body: body, Headers: headers}, true
}
