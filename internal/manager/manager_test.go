// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package manager

import (
	"log/slog"
	"testing"
	"time"

	"github.com/geoclued/geoclued/internal/busserver"
	"github.com/geoclued/geoclued/internal/config"
	"github.com/geoclued/geoclued/internal/geoclue"
	"github.com/geoclued/geoclued/internal/logger"
)

// cappedLocator additionally implements geoclue.AccuracyCapper, so
// tests can observe the cap a client.Service reconfigures it with.
type cappedLocator struct {
	noopLocator
	cap geoclue.AccuracyLevel
}

func (c *cappedLocator) SetCap(level geoclue.AccuracyLevel) { c.cap = level }
func (c *cappedLocator) Cap() geoclue.AccuracyLevel          { return c.cap }

// propertySetter matches client.accessControlledProps' exported-object
// shape, letting a test drive a property write the way the real bus
// dispatcher would, without depending on internal/client's unexported
// type.
type propertySetter interface {
	Set(iface, name string, value busserver.Variant, sender busserver.Sender) *busserver.Error
}

const clientInterfaceName = "org.freedesktop.GeoClue2.Client"

type noopLocator struct{}

func (noopLocator) Name() string                               { return "noop" }
func (noopLocator) Start() bool                                 { return true }
func (noopLocator) Stop() bool                                  { return true }
func (noopLocator) Active() bool                                { return false }
func (noopLocator) Location() *geoclue.Location                 { return nil }
func (noopLocator) AvailableAccuracyLevel() geoclue.AccuracyLevel { return geoclue.AccuracyNone }
func (noopLocator) Subscribe() (<-chan *geoclue.Location, func()) {
	ch := make(chan *geoclue.Location)
	return ch, func() {}
}

func testManager(t *testing.T, idleTimeout time.Duration) (*Manager, *busserver.FakeBus) {
	t.Helper()
	bus := busserver.NewFakeBus()
	cfg := &config.Config{BusName: config.DefaultBusName, IdleTimeout: idleTimeout}
	mgr, err := New(bus, logger.New(slog.LevelError), cfg, func(busserver.Sender, geoclue.AccuracyLevel) geoclue.LocationSource {
		return noopLocator{}
	}, func() {})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = mgr.Shutdown() })
	return mgr, bus
}

func TestGetClientIsIdempotentPerPeer(t *testing.T) {
	mgr, _ := testManager(t, time.Second)

	path1, rerr := mgr.GetClient(":1.1")
	if rerr != nil {
		t.Fatalf("GetClient() error = %v", rerr)
	}
	path2, rerr := mgr.GetClient(":1.1")
	if rerr != nil {
		t.Fatalf("second GetClient() error = %v", rerr)
	}
	if path1 != path2 {
		t.Errorf("expected the same path for repeated GetClient from one peer, got %q and %q", path1, path2)
	}

	path3, rerr := mgr.GetClient(":1.2")
	if rerr != nil {
		t.Fatalf("GetClient() for second peer error = %v", rerr)
	}
	if path3 == path1 {
		t.Errorf("expected distinct paths for distinct peers, both got %q", path1)
	}

	if got := mgr.ConnectedClients(); got != 2 {
		t.Errorf("ConnectedClients() = %d, want 2", got)
	}
}

func TestIdleShutdownFiresAfterTimeout(t *testing.T) {
	quitCalled := make(chan struct{}, 2)
	bus := busserver.NewFakeBus()
	cfg := &config.Config{BusName: config.DefaultBusName, IdleTimeout: 30 * time.Millisecond}
	mgr, err := New(bus, logger.New(slog.LevelError), cfg, func(busserver.Sender, geoclue.AccuracyLevel) geoclue.LocationSource {
		return noopLocator{}
	}, func() {
		select {
		case quitCalled <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = mgr.Shutdown() }()

	// With zero clients from the start, the timer is armed at
	// construction and fires after IdleTimeout.
	select {
	case <-quitCalled:
	case <-time.After(time.Second):
		t.Fatal("expected idle-shutdown to fire with no clients ever connected")
	}

	if _, rerr := mgr.GetClient(":1.1"); rerr != nil {
		t.Fatalf("GetClient() error = %v", rerr)
	}
	mgr.removeClient(":1.1")

	select {
	case <-quitCalled:
	case <-time.After(time.Second):
		t.Fatal("expected idle-shutdown to fire after the last client disconnected")
	}
}

func TestIdleShutdownDisarmedByNewConnection(t *testing.T) {
	quitCalled := make(chan struct{})
	bus := busserver.NewFakeBus()
	cfg := &config.Config{BusName: config.DefaultBusName, IdleTimeout: 40 * time.Millisecond}
	mgr, err := New(bus, logger.New(slog.LevelError), cfg, func(busserver.Sender, geoclue.AccuracyLevel) geoclue.LocationSource {
		return noopLocator{}
	}, func() { close(quitCalled) })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = mgr.Shutdown() }()

	if _, rerr := mgr.GetClient(":1.1"); rerr != nil {
		t.Fatalf("GetClient() error = %v", rerr)
	}
	mgr.removeClient(":1.1")

	// Reconnect before the idle timeout elapses; this must disarm it.
	time.Sleep(10 * time.Millisecond)
	if _, rerr := mgr.GetClient(":1.2"); rerr != nil {
		t.Fatalf("GetClient() error = %v", rerr)
	}

	select {
	case <-quitCalled:
		t.Fatal("expected idle-shutdown to be disarmed by the new connection")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGetClientMaxAccuracyClampsLocatorCapOnDesktopIdWrite(t *testing.T) {
	bus := busserver.NewFakeBus()
	var locator *cappedLocator
	cfg := &config.Config{
		BusName:     config.DefaultBusName,
		IdleTimeout: time.Second,
		MaxAccuracy: map[string]string{"org.example.App": "city"},
	}
	mgr, err := New(bus, logger.New(slog.LevelError), cfg, func(busserver.Sender, geoclue.AccuracyLevel) geoclue.LocationSource {
		locator = &cappedLocator{}
		return locator
	}, func() {})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = mgr.Shutdown() })

	path, rerr := mgr.GetClient(":1.1")
	if rerr != nil {
		t.Fatalf("GetClient() error = %v", rerr)
	}
	if locator.cap != geoclue.AccuracyExact {
		t.Fatalf("expected initial cap to be Exact before DesktopId is known, got %v", locator.cap)
	}

	obj, ok := bus.Object(path, busserver.PropertiesInterface)
	if !ok {
		t.Fatalf("expected properties object exported at %s", path)
	}
	setter := obj.(propertySetter)
	if serr := setter.Set(clientInterfaceName, "DesktopId", busserver.MakeVariant("org.example.App"), ":1.1"); serr != nil {
		t.Fatalf("Set(DesktopId) error = %v", serr)
	}

	if locator.cap != geoclue.AccuracyCity {
		t.Errorf("expected config max-accuracy-level to clamp the cap to City, got %v", locator.cap)
	}
}

func TestGetClientDisabledDesktopIdDeniesWrite(t *testing.T) {
	bus := busserver.NewFakeBus()
	cfg := &config.Config{
		BusName:     config.DefaultBusName,
		IdleTimeout: time.Second,
		Disabled:    map[string]bool{"org.example.Blocked": true},
	}
	mgr, err := New(bus, logger.New(slog.LevelError), cfg, func(busserver.Sender, geoclue.AccuracyLevel) geoclue.LocationSource {
		return &cappedLocator{}
	}, func() {})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = mgr.Shutdown() })

	path, rerr := mgr.GetClient(":1.1")
	if rerr != nil {
		t.Fatalf("GetClient() error = %v", rerr)
	}

	obj, ok := bus.Object(path, busserver.PropertiesInterface)
	if !ok {
		t.Fatalf("expected properties object exported at %s", path)
	}
	setter := obj.(propertySetter)
	if serr := setter.Set(clientInterfaceName, "DesktopId", busserver.MakeVariant("org.example.Blocked"), ":1.1"); serr == nil {
		t.Fatal("expected Set(DesktopId) for a disabled desktop id to fail")
	}
}
