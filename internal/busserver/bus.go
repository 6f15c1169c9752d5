// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package busserver is the transport abstraction every RPC-exposing
// geoclued component (Manager, ClientService, the per-fix Location
// objects) depends on. The production implementation is backed by
// github.com/godbus/dbus/v5 and its introspect/prop sub-packages;
// FakeBus drives the same interface from tests without a running bus.
package busserver

import "github.com/godbus/dbus/v5"

// ObjectPath, Sender and Error are re-exported so callers never need
// to import godbus/dbus/v5 directly; FakeBus uses the same types,
// keeping a component's code transport-agnostic.
type (
	ObjectPath = dbus.ObjectPath
	Sender     = dbus.Sender
	Error      = dbus.Error
	Variant    = dbus.Variant
)

// MakeVariant wraps a value for the Properties.Get/GetAll wire format.
func MakeVariant(v any) Variant { return dbus.MakeVariant(v) }

// NoObjectPath is the conventional "no object" value geoclue's
// Client.Location property reports when no fix has been published yet.
const NoObjectPath ObjectPath = "/"

// NewError builds a D-Bus-style named error, matching the
// org.freedesktop.GeoClue2.Error.* namespace the RPC surface reports.
func NewError(name string) *Error {
	return dbus.NewError(name, nil)
}

// Error names used throughout §4.9's access control and §7's error
// taxonomy. These are the only error identities ever handed back
// across the RPC surface; internal sentinel errors (internal/geoclue)
// are logged and never reach a caller directly.
const (
	ErrNameAccessDenied = "org.freedesktop.GeoClue2.Error.AccessDenied"
	ErrNameNotSupported = "org.freedesktop.GeoClue2.Error.NotSupported"
)

// PropertiesInterface is the standard D-Bus properties interface name,
// exported alongside an object's own interface whenever per-peer
// access control on property reads is required (prop.Export's generic
// Properties implementation has no access-control hook, so components
// needing it, like ClientService and its Location children, implement
// Get/GetAll/Set natively and export them under this name instead).
const PropertiesInterface = "org.freedesktop.DBus.Properties"

// ErrAccessDenied is returned by a method or property operation when
// the caller does not match the peer identity an object was issued for.
var ErrAccessDenied = NewError(ErrNameAccessDenied)

// Prop describes one exported property. Get is called on every read;
// Set is nil for read-only properties, and receives the calling peer
// so implementations can enforce §4.9's access control.
type Prop struct {
	Get func() (any, error)
	Set func(sender Sender, value any) *Error
}

// PropMap is a flat name -> Prop table for a single exported interface.
type PropMap map[string]*Prop

// Bus is the full transport surface a component needs: acquiring the
// well-known name, exporting Go objects and property tables, emitting
// signals, and resolving a peer's identity for access control.
type Bus interface {
	// RequestName acquires the process's well-known bus name.
	RequestName(name string) error

	// Export publishes obj's own methods (written in godbus's native
	// convention: a trailing Sender parameter, a trailing *Error
	// return) at path under iface.
	Export(obj any, path ObjectPath, iface string) error

	// Unexport removes a previously exported object.
	Unexport(path ObjectPath, iface string) error

	// ExportProperties publishes a read/write property table at path
	// under iface, with the org.freedesktop.DBus.Properties machinery.
	ExportProperties(path ObjectPath, iface string, props PropMap) error

	// UnexportProperties removes a previously exported property table.
	UnexportProperties(path ObjectPath)

	// EmitSignal dispatches name under path/iface. destination names
	// the peer the signal is for (e.g. LocationUpdated's owning peer);
	// FakeBus records it, but DBusBus does not filter on it and
	// broadcasts every signal.
	EmitSignal(path ObjectPath, iface, name string, destination Sender, args ...any) error

	// PeerUID resolves sender's UNIX UID. The access control in
	// internal/client compares sender names and does not call it.
	PeerUID(sender Sender) (uint32, error)

	// Close releases the underlying transport connection.
	Close() error
}
