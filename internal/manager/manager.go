// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package manager implements the Manager (§4.10): the single
// well-known object that issues ClientService instances on demand,
// tracks the connected-client count, and requests process shutdown
// after NO_CLIENT_TIMEOUT idle seconds.
package manager

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/geoclued/geoclued/internal/busserver"
	"github.com/geoclued/geoclued/internal/client"
	"github.com/geoclued/geoclued/internal/config"
	"github.com/geoclued/geoclued/internal/geoclue"
	"github.com/geoclued/geoclued/internal/logger"
)

const managerInterface = "org.freedesktop.GeoClue2.Manager"

// DefaultPath is the conventional Manager object path, one per process.
const DefaultPath busserver.ObjectPath = "/org/freedesktop/GeoClue2/Manager"

// LocatorFactory builds the Locator backing a fresh ClientService,
// already capped at requestedAccuracy per §4.8's constructor rule.
type LocatorFactory func(peer busserver.Sender, requestedAccuracy geoclue.AccuracyLevel) geoclue.LocationSource

// Manager issues and tracks ClientService instances for one process.
type Manager struct {
	bus        busserver.Bus
	log        *logger.Logger
	cfg        *config.Config
	newLocator LocatorFactory
	quit       func()
	scheduler  gocron.Scheduler

	mu         sync.Mutex
	clients    map[busserver.Sender]*client.Service
	counter    uint64
	idleJob    gocron.Job
	idleArmed  bool
}

// New constructs a Manager. quit is invoked once per idle period, from
// the idle-shutdown job, when ConnectedClients has been zero for
// cfg.IdleTimeout, counted from construction or from the last client
// leaving.
func New(bus busserver.Bus, log *logger.Logger, cfg *config.Config, newLocator LocatorFactory, quit func()) (*Manager, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	m := &Manager{
		bus:        bus,
		log:        log,
		cfg:        cfg,
		newLocator: newLocator,
		quit:       quit,
		scheduler:  scheduler,
		clients:    make(map[busserver.Sender]*client.Service),
	}
	scheduler.Start()
	m.onCountChanged(0)
	return m, nil
}

// Export registers the Manager's method and property table on the bus.
func (m *Manager) Export() error {
	if err := m.bus.Export(m, DefaultPath, managerInterface); err != nil {
		return fmt.Errorf("failed to export manager at %s: %w", DefaultPath, err)
	}
	props := busserver.PropMap{
		"ConnectedClients": {Get: func() (any, error) { return uint32(m.ConnectedClients()), nil }},
	}
	if err := m.bus.ExportProperties(DefaultPath, managerInterface, props); err != nil {
		return fmt.Errorf("failed to export manager properties at %s: %w", DefaultPath, err)
	}
	return nil
}

// ConnectedClients is the read-only client count property.
func (m *Manager) ConnectedClients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// GetClient implements the Manager.GetClient() method (§4.10): returns
// the existing ClientService path for a peer that already has one,
// otherwise creates and registers a fresh one. GetClient itself takes
// no desktop-id argument, so cfg.Disabled/cfg.MaxAccuracy (§6) cannot
// be applied here; they are enforced by the returned Service once the
// peer writes DesktopId (see client.Service's policy lookup).
func (m *Manager) GetClient(sender busserver.Sender) (busserver.ObjectPath, *busserver.Error) {
	m.mu.Lock()
	if svc, ok := m.clients[sender]; ok {
		path := svc.Path()
		m.mu.Unlock()
		return path, nil
	}
	n := m.counter
	m.counter++
	m.mu.Unlock()

	path := busserver.ObjectPath(fmt.Sprintf("%s/Client/%d", DefaultPath, n))
	// A freshly issued client starts budgeted at the highest level;
	// the Locator's cap is reconfigured in place by client.Service
	// (via geoclue.AccuracyCapper) on every DesktopId or
	// RequestedAccuracyLevel write, clamped against cfg.MaxAccuracy.
	accuracyCap := geoclue.AccuracyExact
	locator := m.newLocator(sender, accuracyCap)
	svc := client.New(m.bus, m.log, path, sender, locator, accuracyCap, m.policy())
	svc.SetOnVanished(func() { m.removeClient(sender) })

	if err := svc.Export(); err != nil {
		m.log.Error("failed to export client", logger.Err(err), slog.String("path", string(path)))
		return "", busserver.NewError(busserver.ErrNameNotSupported)
	}

	m.mu.Lock()
	m.clients[sender] = svc
	count := len(m.clients)
	m.mu.Unlock()
	m.onCountChanged(count)

	return path, nil
}

// policy closes over cfg.MaxAccuracy/cfg.Disabled for client.Service,
// keeping internal/client decoupled from internal/config (§6).
func (m *Manager) policy() client.PolicyLookup {
	return client.PolicyLookup{
		MaxAccuracy: m.maxAccuracyFor,
		Disabled:    m.isDisabled,
	}
}

// maxAccuracyFor resolves the configured max-accuracy-level ceiling for
// desktopID, if any is configured and well-formed.
func (m *Manager) maxAccuracyFor(desktopID string) (geoclue.AccuracyLevel, bool) {
	if desktopID == "" || m.cfg.MaxAccuracy == nil {
		return geoclue.AccuracyNone, false
	}
	name, ok := m.cfg.MaxAccuracy[desktopID]
	if !ok {
		return geoclue.AccuracyNone, false
	}
	level, ok := geoclue.ParseAccuracyLevel(name)
	if !ok {
		m.log.Warn("ignoring unrecognised max-accuracy-level",
			slog.String("desktop_id", desktopID), slog.String("value", name))
		return geoclue.AccuracyNone, false
	}
	return level, true
}

// isDisabled reports whether desktopID is outright denied (§6's
// Disabled deny-list).
func (m *Manager) isDisabled(desktopID string) bool {
	return desktopID != "" && m.cfg.Disabled[desktopID]
}

// removeClient drops sender's ClientService on peer-vanished (§4.9/§4.10).
func (m *Manager) removeClient(sender busserver.Sender) {
	m.mu.Lock()
	delete(m.clients, sender)
	count := len(m.clients)
	m.mu.Unlock()
	m.onCountChanged(count)
}

// onCountChanged implements the idle-shutdown arm/disarm rule: armed
// at construction (zero clients) and on every transition to zero,
// disarmed on any transition away from zero. Re-observing zero while already armed is a no-op.
func (m *Manager) onCountChanged(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if count == 0 {
		if m.idleArmed {
			return
		}
		m.idleArmed = true
		job, err := m.scheduler.NewJob(
			gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(m.cfg.IdleTimeout))),
			gocron.NewTask(m.onIdleTimeout),
		)
		if err != nil {
			m.log.Error("failed to arm idle-shutdown timer", logger.Err(err))
			return
		}
		m.idleJob = job
		return
	}

	if m.idleArmed && m.idleJob != nil {
		if err := m.scheduler.RemoveJob(m.idleJob.ID()); err != nil {
			m.log.Debug("failed to disarm idle-shutdown timer", logger.Err(err))
		}
	}
	m.idleArmed = false
	m.idleJob = nil
}

func (m *Manager) onIdleTimeout() {
	m.mu.Lock()
	stillIdle := len(m.clients) == 0 && m.idleArmed
	m.mu.Unlock()
	if !stillIdle {
		return
	}
	m.log.Info("no clients connected within idle timeout, requesting shutdown")
	m.quit()
}

// Shutdown releases the scheduler. Call once at process exit.
func (m *Manager) Shutdown() error {
	return m.scheduler.Shutdown()
}
