// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package client

import (
	"log/slog"
	"testing"
	"time"

	"github.com/geoclued/geoclued/internal/busserver"
	"github.com/geoclued/geoclued/internal/geoclue"
	"github.com/geoclued/geoclued/internal/logger"
)

// fakeLocator is a minimal geoclue.LocationSource double so Service
// tests never depend on the real Locator/source hierarchy.
type fakeLocator struct {
	started int
	stopped int
	subs    []chan *geoclue.Location
}

func (f *fakeLocator) Name() string       { return "fake-locator" }
func (f *fakeLocator) Start() bool        { f.started++; return true }
func (f *fakeLocator) Stop() bool         { f.stopped++; return true }
func (f *fakeLocator) Active() bool       { return f.started > f.stopped }
func (f *fakeLocator) Location() *geoclue.Location { return nil }

func (f *fakeLocator) AvailableAccuracyLevel() geoclue.AccuracyLevel {
	return geoclue.AccuracyExact
}

func (f *fakeLocator) Subscribe() (<-chan *geoclue.Location, func()) {
	ch := make(chan *geoclue.Location, 4)
	f.subs = append(f.subs, ch)
	return ch, func() { close(ch) }
}

func (f *fakeLocator) push(loc *geoclue.Location) {
	for _, ch := range f.subs {
		ch <- loc
	}
}

// fakeCappedLocator additionally implements geoclue.AccuracyCapper, so
// tests can observe the cap client.Service reconfigures it with.
type fakeCappedLocator struct {
	fakeLocator
	cap geoclue.AccuracyLevel
}

func (f *fakeCappedLocator) SetCap(level geoclue.AccuracyLevel) { f.cap = level }
func (f *fakeCappedLocator) Cap() geoclue.AccuracyLevel          { return f.cap }

func testLogger() *logger.Logger {
	return logger.New(slog.LevelError)
}

const (
	peer    = busserver.Sender(":1.1")
	impostor = busserver.Sender(":1.2")
)

func TestServiceStartStopAccessControl(t *testing.T) {
	bus := busserver.NewFakeBus()
	loc := &fakeLocator{}
	svc := New(bus, testLogger(), "/org/freedesktop/GeoClue2/Manager/Client/0", peer, loc, geoclue.AccuracyExact, PolicyLookup{})

	if err := svc.Start(impostor); err == nil {
		t.Fatal("expected AccessDenied starting as a different peer")
	}
	if loc.started != 0 {
		t.Error("expected locator untouched by a denied Start")
	}

	if err := svc.Start(peer); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if svc.State() != StateActive {
		t.Errorf("State() = %v, want active", svc.State())
	}
	if loc.started != 1 {
		t.Errorf("expected locator started once, got %d", loc.started)
	}

	// Idempotent re-Start.
	if err := svc.Start(peer); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if loc.started != 1 {
		t.Errorf("expected second Start() not to re-start the locator, got %d starts", loc.started)
	}

	if err := svc.Stop(impostor); err == nil {
		t.Fatal("expected AccessDenied stopping as a different peer")
	}
	if err := svc.Stop(peer); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if svc.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", svc.State())
	}
	if loc.stopped != 1 {
		t.Errorf("expected locator stopped once, got %d", loc.stopped)
	}
}

func TestServiceDisposeTearsDownExports(t *testing.T) {
	bus := busserver.NewFakeBus()
	loc := &fakeLocator{}
	path := busserver.ObjectPath("/org/freedesktop/GeoClue2/Manager/Client/0")
	svc := New(bus, testLogger(), path, peer, loc, geoclue.AccuracyExact, PolicyLookup{})
	if err := svc.Export(); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	vanished := false
	svc.SetOnVanished(func() { vanished = true })

	if err := svc.Start(peer); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	svc.Dispose()

	if svc.State() != StateDisposed {
		t.Errorf("State() = %v, want disposed", svc.State())
	}
	if !vanished {
		t.Error("expected onVanished to fire")
	}
	if loc.stopped != 1 {
		t.Errorf("expected locator stopped on Dispose, got %d", loc.stopped)
	}
	if _, ok := bus.Object(path, clientInterface); ok {
		t.Error("expected client interface unexported after Dispose")
	}

	// Dispose is idempotent; the second call must not panic or re-fire.
	svc.Dispose()
}

func TestServiceOnLocationPublishesAndEmitsSignal(t *testing.T) {
	bus := busserver.NewFakeBus()
	loc := &fakeLocator{}
	path := busserver.ObjectPath("/org/freedesktop/GeoClue2/Manager/Client/0")
	svc := New(bus, testLogger(), path, peer, loc, geoclue.AccuracyExact, PolicyLookup{})
	if err := svc.Export(); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if err := svc.Start(peer); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	fix, _ := geoclue.New(1, 1, 10)
	loc.push(fix)

	deadline := time.After(time.Second)
	for {
		signals := bus.Signals()
		if len(signals) == 1 {
			sig := signals[0]
			if sig.Name != "LocationUpdated" {
				t.Fatalf("unexpected signal name %q", sig.Name)
			}
			if sig.Destination != peer {
				t.Errorf("expected signal delivered to owning peer, got %q", sig.Destination)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for LocationUpdated signal")
		case <-time.After(time.Millisecond):
		}
	}

	got, err := svc.props.Get(clientInterface, "Location", peer)
	if err != nil {
		t.Fatalf("Get(Location) error = %v", err)
	}
	if got.Value() == busserver.NoObjectPath {
		t.Error("expected Location property to point at the published object")
	}
}

func TestServiceRequestedAccuracyWriteReconfiguresLocatorCap(t *testing.T) {
	bus := busserver.NewFakeBus()
	loc := &fakeCappedLocator{}
	path := busserver.ObjectPath("/org/freedesktop/GeoClue2/Manager/Client/0")
	svc := New(bus, testLogger(), path, peer, loc, geoclue.AccuracyExact, PolicyLookup{})
	if err := svc.Export(); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if loc.cap != geoclue.AccuracyExact {
		t.Fatalf("expected initial cap to be Exact, got %v", loc.cap)
	}

	// COUNTRY is coerced up to CITY per §4.2, since no source offers
	// country-only accuracy.
	if err := svc.props.Set(clientInterface, "RequestedAccuracyLevel", busserver.MakeVariant(uint32(geoclue.AccuracyCountry)), peer); err != nil {
		t.Fatalf("Set(RequestedAccuracyLevel) error = %v", err)
	}
	if loc.cap != geoclue.AccuracyCity {
		t.Errorf("expected Locator cap coerced to City, got %v", loc.cap)
	}
}

func TestServiceMaxAccuracyPolicyClampsRequestedLevel(t *testing.T) {
	bus := busserver.NewFakeBus()
	loc := &fakeCappedLocator{}
	path := busserver.ObjectPath("/org/freedesktop/GeoClue2/Manager/Client/0")
	policy := PolicyLookup{
		MaxAccuracy: func(desktopID string) (geoclue.AccuracyLevel, bool) {
			if desktopID == "org.example.App" {
				return geoclue.AccuracyCity, true
			}
			return geoclue.AccuracyNone, false
		},
	}
	svc := New(bus, testLogger(), path, peer, loc, geoclue.AccuracyExact, policy)
	if err := svc.Export(); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	if err := svc.props.Set(clientInterface, "DesktopId", busserver.MakeVariant("org.example.App"), peer); err != nil {
		t.Fatalf("Set(DesktopId) error = %v", err)
	}
	if loc.cap != geoclue.AccuracyCity {
		t.Fatalf("expected cap clamped to City by config on DesktopId write, got %v", loc.cap)
	}

	if err := svc.props.Set(clientInterface, "RequestedAccuracyLevel", busserver.MakeVariant(uint32(geoclue.AccuracyExact)), peer); err != nil {
		t.Fatalf("Set(RequestedAccuracyLevel) error = %v", err)
	}
	if loc.cap != geoclue.AccuracyCity {
		t.Errorf("expected config max-accuracy-level to still clamp an Exact request, got %v", loc.cap)
	}
}

func TestServiceDisabledDesktopIdDeniesAndDisposes(t *testing.T) {
	bus := busserver.NewFakeBus()
	loc := &fakeCappedLocator{}
	path := busserver.ObjectPath("/org/freedesktop/GeoClue2/Manager/Client/0")
	policy := PolicyLookup{
		Disabled: func(desktopID string) bool { return desktopID == "org.example.Blocked" },
	}
	svc := New(bus, testLogger(), path, peer, loc, geoclue.AccuracyExact, policy)
	if err := svc.Export(); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	err := svc.props.Set(clientInterface, "DesktopId", busserver.MakeVariant("org.example.Blocked"), peer)
	if err == nil {
		t.Fatal("expected Set(DesktopId) for a disabled desktop id to fail")
	}

	deadline := time.After(time.Second)
	for svc.State() != StateDisposed {
		select {
		case <-deadline:
			t.Fatalf("expected Service to dispose itself, state = %v", svc.State())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestServiceThresholdFilteringRefinesInPlace(t *testing.T) {
	bus := busserver.NewFakeBus()
	loc := &fakeLocator{}
	path := busserver.ObjectPath("/org/freedesktop/GeoClue2/Manager/Client/0")
	svc := New(bus, testLogger(), path, peer, loc, geoclue.AccuracyExact, PolicyLookup{})
	if err := svc.Export(); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	// DistanceThreshold is read-write via the Properties interface.
	if err := svc.props.Set(clientInterface, "DistanceThreshold", busserver.MakeVariant(uint32(10000)), peer); err != nil {
		t.Fatalf("Set(DistanceThreshold) error = %v", err)
	}
	if err := svc.Start(peer); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	first, _ := geoclue.New(0, 0, 10)
	loc.push(first)
	time.Sleep(10 * time.Millisecond)

	second, _ := geoclue.New(0, 0.0001, 10) // well within 10km threshold
	loc.push(second)
	time.Sleep(10 * time.Millisecond)

	if got := len(bus.Signals()); got != 1 {
		t.Errorf("expected exactly one LocationUpdated signal (second fix refined in place), got %d", got)
	}
}
