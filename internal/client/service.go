// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package client implements the per-peer ClientService (§4.9): the
// state machine a Manager hands out on GetClient, wrapping a Locator
// with distance-threshold filtering, a monotonic Location object
// counter, and peer-identity access control over every RPC surface.
package client

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/geoclued/geoclued/internal/busserver"
	"github.com/geoclued/geoclued/internal/geoclue"
	"github.com/geoclued/geoclued/internal/logger"
)

// clientInterface is the D-Bus interface name the Client object and
// its method table are exported under.
const clientInterface = "org.freedesktop.GeoClue2.Client"

// PolicyLookup resolves desktop-id-keyed config policy (§6
// max-accuracy-level, Disabled) against the caller's DesktopId. The
// Manager supplies concrete closures over config.Config so this
// package stays decoupled from the config package, matching the
// LocatorFactory hook in internal/manager. Either field may be nil,
// meaning no policy is configured.
type PolicyLookup struct {
	// MaxAccuracy reports the configured ceiling for desktopID, if any.
	MaxAccuracy func(desktopID string) (geoclue.AccuracyLevel, bool)
	// Disabled reports whether desktopID is denied outright.
	Disabled func(desktopID string) bool
}

// State is the ClientService lifecycle (§4.9).
type State int

const (
	StateCreated State = iota
	StateActive
	StateStopped
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Service is one peer's ClientService.
type Service struct {
	bus     busserver.Bus
	log     *logger.Logger
	locator geoclue.LocationSource
	peer    busserver.Sender
	path    busserver.ObjectPath
	props   *accessControlledProps
	policy  PolicyLookup

	// onVanished is wired by the Manager to remove this Service from
	// its registry once the peer-vanished signal fires (§4.9/§4.10).
	onVanished func()

	mu                sync.Mutex
	state             State
	desktopID         string
	distanceThreshold uint32
	requestedAccuracy geoclue.AccuracyLevel
	counter           uint64
	current           *locationObject
	unsubscribe       func()
}

// New constructs a ClientService for peer at path, wrapping locator and
// initially budgeted at requestedAccuracy. If locator implements
// geoclue.AccuracyCapper, the budget is re-applied (coerced per §4.2
// and clamped against policy.MaxAccuracy) on every DesktopId or
// RequestedAccuracyLevel write; policy.Disabled denies a DesktopId
// write outright (§6).
func New(bus busserver.Bus, log *logger.Logger, path busserver.ObjectPath, peer busserver.Sender, locator geoclue.LocationSource, requestedAccuracy geoclue.AccuracyLevel, policy PolicyLookup) *Service {
	s := &Service{
		bus:               bus,
		log:               log,
		locator:           locator,
		peer:              peer,
		path:              path,
		state:             StateCreated,
		requestedAccuracy: requestedAccuracy,
		policy:            policy,
	}
	s.props = newAccessControlledProps(peer, clientInterface)
	s.props.define("DesktopId", func() any { return s.getDesktopID() }, func(v any) *busserver.Error {
		id, ok := v.(string)
		if !ok {
			return busserver.NewError(busserver.ErrNameNotSupported)
		}
		if s.policy.Disabled != nil && s.policy.Disabled(id) {
			// Real GetClient() takes no arguments, so a desktop-id deny
			// list can only be enforced once the id itself is known;
			// tearing the Service down here is the closest analogue to
			// GetClient returning transport-denied outright (§6).
			go s.Dispose()
			return busserver.ErrAccessDenied
		}
		s.mu.Lock()
		s.desktopID = id
		s.mu.Unlock()
		s.applyAccuracyBudget()
		return nil
	})
	s.props.define("DistanceThreshold", func() any { return s.getDistanceThreshold() }, func(v any) *busserver.Error {
		t, ok := v.(uint32)
		if !ok {
			return busserver.NewError(busserver.ErrNameNotSupported)
		}
		s.mu.Lock()
		s.distanceThreshold = t
		s.mu.Unlock()
		return nil
	})
	s.props.define("RequestedAccuracyLevel", func() any { return uint(s.getRequestedAccuracy()) }, func(v any) *busserver.Error {
		lvl, ok := v.(uint32)
		if !ok {
			return busserver.NewError(busserver.ErrNameNotSupported)
		}
		s.mu.Lock()
		s.requestedAccuracy = geoclue.AccuracyLevel(lvl)
		s.mu.Unlock()
		s.applyAccuracyBudget()
		return nil
	})
	s.props.define("Location", func() any { return s.currentPath() }, nil)
	s.props.define("Active", func() any { return s.Active() }, nil)
	s.applyAccuracyBudget()
	return s
}

// applyAccuracyBudget recomputes the Locator's accuracy cap from the
// peer's RequestedAccuracyLevel, coerced per §4.2 (COUNTRY -> CITY) and
// clamped to the DesktopId's configured max-accuracy-level, if any
// (§6). A locator that does not implement geoclue.AccuracyCapper (e.g.
// a test double) is left alone.
func (s *Service) applyAccuracyBudget() {
	capper, ok := s.locator.(geoclue.AccuracyCapper)
	if !ok {
		return
	}

	s.mu.Lock()
	level := geoclue.CoerceRequestedLevel(s.requestedAccuracy)
	desktopID := s.desktopID
	s.mu.Unlock()

	if s.policy.MaxAccuracy != nil {
		if max, has := s.policy.MaxAccuracy(desktopID); has && max < level {
			level = max
		}
	}
	capper.SetCap(level)
}

func (s *Service) getDesktopID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desktopID
}

func (s *Service) getDistanceThreshold() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.distanceThreshold
}

func (s *Service) getRequestedAccuracy() geoclue.AccuracyLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestedAccuracy
}

func (s *Service) currentPath() busserver.ObjectPath {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return busserver.NoObjectPath
	}
	return s.current.path
}

// Path is the object path the Manager registered this Service at.
func (s *Service) Path() busserver.ObjectPath { return s.path }

// SetOnVanished wires the Manager's removal hook, invoked once from
// Dispose.
func (s *Service) SetOnVanished(fn func()) {
	s.mu.Lock()
	s.onVanished = fn
	s.mu.Unlock()
}

// State reports the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active implements the read-only Active property.
func (s *Service) Active() bool {
	return s.State() == StateActive
}

// Export registers the Service's method table and property table on
// the bus.
func (s *Service) Export() error {
	if err := s.bus.Export(s, s.path, clientInterface); err != nil {
		return fmt.Errorf("failed to export client at %s: %w", s.path, err)
	}
	if err := s.bus.Export(s.props, s.path, busserver.PropertiesInterface); err != nil {
		return fmt.Errorf("failed to export client properties at %s: %w", s.path, err)
	}
	return nil
}

// Start implements the Client.Start() method (§4.9): idempotent once
// ACTIVE, subscribes to the Locator's location notifications.
func (s *Service) Start(sender busserver.Sender) *busserver.Error {
	if sender != s.peer {
		return busserver.ErrAccessDenied
	}
	s.mu.Lock()
	if s.state == StateActive {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateDisposed {
		s.mu.Unlock()
		return busserver.ErrAccessDenied
	}
	s.state = StateActive
	s.mu.Unlock()

	ch, unsub := s.locator.Subscribe()
	s.mu.Lock()
	s.unsubscribe = unsub
	s.mu.Unlock()
	s.locator.Start()

	go s.consume(ch)
	return nil
}

// Stop implements the Client.Stop() method: suspends the location
// subscription without destroying the Locator, which other clients
// may still be using.
func (s *Service) Stop(sender busserver.Sender) *busserver.Error {
	if sender != s.peer {
		return busserver.ErrAccessDenied
	}
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopped
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.locator.Stop()
	return nil
}

// Dispose transitions to DISPOSED on peer-vanished detection (§4.9),
// tearing down the subscription and every exported object.
func (s *Service) Dispose() {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return
	}
	prevState := s.state
	s.state = StateDisposed
	unsub := s.unsubscribe
	s.unsubscribe = nil
	current := s.current
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if prevState == StateActive {
		s.locator.Stop()
	}
	if current != nil {
		_ = s.bus.Unexport(current.path, clientInterface+".Location")
		_ = s.bus.Unexport(current.path, busserver.PropertiesInterface)
	}
	_ = s.bus.Unexport(s.path, clientInterface)
	_ = s.bus.Unexport(s.path, busserver.PropertiesInterface)

	if s.onVanished != nil {
		s.onVanished()
	}
}

func (s *Service) consume(ch <-chan *geoclue.Location) {
	for loc := range ch {
		s.onLocation(loc)
	}
}

// onLocation implements §4.9's threshold-filter/publish decision.
func (s *Service) onLocation(loc *geoclue.Location) {
	s.mu.Lock()
	threshold := s.distanceThreshold
	current := s.current
	s.mu.Unlock()

	if current != nil && threshold > 0 {
		prev := current.snapshot()
		if prev.DistanceMeters(loc) < float64(threshold) {
			current.refine(loc)
			return
		}
	}

	s.mu.Lock()
	n := s.counter
	s.counter++
	oldPath := busserver.NoObjectPath
	if s.current != nil {
		oldPath = s.current.path
	}
	newPath := busserver.ObjectPath(fmt.Sprintf("%s/Location/%d", s.path, n))
	lo := newLocationObject(newPath, s.peer, loc)
	s.current = lo
	s.mu.Unlock()

	if err := s.bus.Export(lo, newPath, clientInterface+".Location"); err != nil {
		s.log.Error("failed to export location object", logger.Err(err), slog.String("path", string(newPath)))
		return
	}
	if err := s.bus.Export(lo, newPath, busserver.PropertiesInterface); err != nil {
		s.log.Error("failed to export location properties", logger.Err(err), slog.String("path", string(newPath)))
		return
	}

	if err := s.bus.EmitSignal(s.path, clientInterface, "LocationUpdated", s.peer, oldPath, newPath); err != nil {
		s.log.Error("failed to emit LocationUpdated", logger.Err(err))
	}
}
