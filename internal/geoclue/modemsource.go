// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"sync"
)

// ModemGpsSource reports native GPS fixes directly from the modem event
// stream. It is a first-class Locator child and, simultaneously, the
// typical submit source wired into WifiSource/CellSource (§4.7).
type ModemGpsSource struct {
	baseSource

	modem ModemEventSource

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewModemGpsSource constructs the ModemGpsSource singleton.
func NewModemGpsSource(name string, modem ModemEventSource) *ModemGpsSource {
	return &ModemGpsSource{
		baseSource: newBaseSource(name, nil),
		modem:      modem,
	}
}

// Start begins modem event consumption. Idempotent.
func (m *ModemGpsSource) Start() bool {
	if !m.start() {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.setAvailableAccuracyLevel(AccuracyExact)
	go m.consumeEvents(ctx)
	return true
}

// Stop halts modem event consumption. Idempotent.
func (m *ModemGpsSource) Stop() bool {
	if !m.stop() {
		return false
	}
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()
	m.setAvailableAccuracyLevel(AccuracyNone)
	return true
}

func (m *ModemGpsSource) consumeEvents(ctx context.Context) {
	ch := m.modem.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind != ModemGPSFix || ev.GPSFix == nil {
				continue
			}
			prev := m.Location()
			fix := ev.GPSFix
			fix.SetSpeedFromPrev(prev)
			fix.SetHeadingFromPrev(prev)
			m.setLocation(fix)
		}
	}
}
