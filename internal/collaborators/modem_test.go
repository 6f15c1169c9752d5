// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package collaborators

import (
	"testing"

	"github.com/stratoberry/go-gpsd"
)

func TestHorizontalAccuracyPrefersReportedEllipse(t *testing.T) {
	tpv := &gpsd.TPVReport{Mode: gpsd.Mode3D, Epx: 3, Epy: 4}
	if got, want := horizontalAccuracy(tpv), 5.0; got != want {
		t.Errorf("horizontalAccuracy() = %v, want %v", got, want)
	}
}

func TestHorizontalAccuracyFallsBackByFixMode(t *testing.T) {
	tests := []struct {
		name string
		mode gpsd.Mode
		want float64
	}{
		{"3D fix, no ellipse", gpsd.Mode3D, 10},
		{"2D fix, no ellipse", gpsd.Mode2D, 25},
		{"no fix", gpsd.NoFix, 1e6},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tpv := &gpsd.TPVReport{Mode: tc.mode}
			if got := horizontalAccuracy(tpv); got != tc.want {
				t.Errorf("horizontalAccuracy() = %v, want %v", got, tc.want)
			}
		})
	}
}
