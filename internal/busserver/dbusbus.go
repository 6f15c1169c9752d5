// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package busserver

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

// DBusBus is the production Bus, backed by a system bus connection.
type DBusBus struct {
	conn *dbus.Conn

	mu    sync.Mutex
	props map[ObjectPath]*prop.Properties
}

// Connect opens a connection to the system bus, the same bus GeoClue2
// is conventionally registered on.
func Connect() (*DBusBus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return &DBusBus{conn: conn, props: make(map[ObjectPath]*prop.Properties)}, nil
}

func (b *DBusBus) RequestName(name string) error {
	reply, err := b.conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request bus name %q: %w", name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %q already owned", name)
	}
	return nil
}

func (b *DBusBus) Export(obj any, path ObjectPath, iface string) error {
	if err := b.conn.Export(obj, path, iface); err != nil {
		return fmt.Errorf("failed to export %s at %s: %w", iface, path, err)
	}

	node := &introspect.Node{
		Name: string(path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: iface},
		},
	}
	return b.conn.Export(introspect.NewIntrospectable(node), path, "org.freedesktop.DBus.Introspectable")
}

func (b *DBusBus) Unexport(path ObjectPath, iface string) error {
	if err := b.conn.Export(nil, path, iface); err != nil {
		return fmt.Errorf("failed to unexport %s at %s: %w", iface, path, err)
	}
	return nil
}

func (b *DBusBus) ExportProperties(path ObjectPath, iface string, props PropMap) error {
	specs := make(prop.Map)
	specs[iface] = make(map[string]*prop.Prop, len(props))
	for name, p := range props {
		p := p
		emit := prop.EmitTrue
		writable := p.Set != nil
		specs[iface][name] = &prop.Prop{
			Value:    mustInitial(p.Get),
			Writable: writable,
			Emit:     emit,
			Callback: func(c *prop.Change) *dbus.Error {
				if p.Set == nil {
					return ErrAccessDenied
				}
				return p.Set(Sender(c.Name), c.Value)
			},
		}
	}

	exported, err := prop.Export(b.conn, path, specs)
	if err != nil {
		return fmt.Errorf("failed to export properties at %s: %w", path, err)
	}
	b.mu.Lock()
	b.props[path] = exported
	b.mu.Unlock()
	return nil
}

func (b *DBusBus) UnexportProperties(path ObjectPath) {
	b.mu.Lock()
	delete(b.props, path)
	b.mu.Unlock()
	_ = b.conn.Export(nil, path, PropertiesInterface)
}

// EmitSignal always broadcasts at the D-Bus protocol level: per-peer
// scoping (destination) is advisory here, not a wire-level filter. In
// practice this still delivers only to the owning peer, the same way
// upstream GeoClue2 relies on it: a client only ever adds a match rule
// on its own Client object path, so no other peer observes the signal.
func (b *DBusBus) EmitSignal(path ObjectPath, iface, name string, destination Sender, args ...any) error {
	if err := b.conn.Emit(path, iface+"."+name, args...); err != nil {
		return fmt.Errorf("failed to emit signal %s.%s at %s: %w", iface, name, path, err)
	}
	return nil
}

func (b *DBusBus) PeerUID(sender Sender) (uint32, error) {
	var uid uint32
	err := b.conn.BusObject().Call("org.freedesktop.DBus.GetConnectionUnixUser", 0, string(sender)).Store(&uid)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve peer uid for %s: %w", sender, err)
	}
	return uid, nil
}

func (b *DBusBus) Close() error {
	return b.conn.Close()
}

// mustInitial reads a property's current value for the initial prop.Prop
// registration; a failing Get at export time degrades to nil rather
// than aborting the export, since prop.Export has no error channel per-value.
func mustInitial(get func() (any, error)) any {
	v, err := get()
	if err != nil {
		return nil
	}
	return v
}
