// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package collaborators

import (
	"context"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/geoclued/geoclued/internal/geoclue"
	"github.com/geoclued/geoclued/internal/logger"
)

const (
	gpsdHost = "localhost"
	gpsdPort = "2947"
)

// GPSDModem implements geoclue.ModemEventSource over gpsd's TPV watch
// stream, the closest available analogue in the corpus to a modem's
// native GPS fix stream (Open Question d). It never reports
// ModemFix3G/ModemCapabilityChanged, since gpsd has no cell-tower
// concept; CellSource is instead fed by a separate collaborator when
// a 3G-capable modem is present (none in this corpus, so CellSource
// degrades to availableAccuracyLevel NONE absent one, per §4.6).
type GPSDModem struct {
	log *logger.Logger
}

// NewGPSDModem constructs a GPSDModem. Connection to gpsd is attempted
// lazily on Events, not at construction, so a host without gpsd
// running still starts geoclued successfully.
func NewGPSDModem(log *logger.Logger) *GPSDModem {
	return &GPSDModem{log: log}
}

// Events implements geoclue.ModemEventSource.
func (g *GPSDModem) Events(ctx context.Context) <-chan geoclue.ModemEvent {
	out := make(chan geoclue.ModemEvent, 4)

	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			if err := g.watch(ctx, out); err != nil {
				g.log.Debug("gpsd watch ended", logger.Err(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(30 * time.Second):
			}
		}
	}()

	return out
}

func (g *GPSDModem) watch(ctx context.Context, out chan<- geoclue.ModemEvent) error {
	addr := net.JoinHostPort(gpsdHost, gpsdPort)
	session, err := gpsd.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to dial gpsd: %w", err)
	}
	defer func() { _ = session.Close() }()

	session.AddFilter("TPV", func(r any) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok || tpv.Mode < gpsd.Mode2D {
			return
		}

		accuracy := horizontalAccuracy(tpv)
		loc, err := geoclue.New(tpv.Lat, tpv.Lon, accuracy)
		if err != nil {
			return
		}
		if tpv.Alt != 0 {
			loc.Altitude.Set(tpv.Alt)
		}

		select {
		case <-ctx.Done():
		case out <- geoclue.ModemEvent{Kind: geoclue.ModemGPSFix, GPSFix: loc}:
		}
	})

	done := session.Watch()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return fmt.Errorf("gpsd connection closed")
	}
}

// horizontalAccuracy mirrors internal/gpspoll's fix-quality fallback
// constants: prefer gpsd's reported horizontal error ellipse, fall
// back to a quality-dependent constant when gpsd doesn't report one.
func horizontalAccuracy(tpv *gpsd.TPVReport) float64 {
	if tpv.Epx > 0 && tpv.Epy > 0 {
		return math.Hypot(tpv.Epx, tpv.Epy)
	}
	switch tpv.Mode {
	case gpsd.Mode3D:
		return 10
	case gpsd.Mode2D:
		return 25
	default:
		return 1e6
	}
}
