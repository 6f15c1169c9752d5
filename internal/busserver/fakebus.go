// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package busserver

import (
	"fmt"
	"sync"
)

// EmittedSignal records one EmitSignal call for test assertions.
type EmittedSignal struct {
	Path        ObjectPath
	Interface   string
	Name        string
	Destination Sender
	Args        []any
}

// FakeBus drives the Bus interface in-process, with no real transport.
// It records exported objects/properties and every emitted signal so
// tests can assert on both without a running D-Bus daemon.
type FakeBus struct {
	mu sync.Mutex

	name      string
	objects   map[objKey]any
	props     map[ObjectPath]PropMap
	signals   []EmittedSignal
	nameTaken bool
}

type objKey struct {
	path ObjectPath
	face string
}

// NewFakeBus returns an empty FakeBus.
func NewFakeBus() *FakeBus {
	return &FakeBus{
		objects: make(map[objKey]any),
		props:   make(map[ObjectPath]PropMap),
	}
}

func (f *FakeBus) RequestName(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nameTaken {
		return fmt.Errorf("bus name %q already owned", name)
	}
	f.name = name
	f.nameTaken = true
	return nil
}

// Name returns the acquired well-known name, for assertions.
func (f *FakeBus) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name
}

func (f *FakeBus) Export(obj any, path ObjectPath, iface string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objKey{path, iface}] = obj
	return nil
}

func (f *FakeBus) Unexport(path ObjectPath, iface string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objKey{path, iface})
	return nil
}

func (f *FakeBus) ExportProperties(path ObjectPath, iface string, props PropMap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props[path] = props
	return nil
}

func (f *FakeBus) UnexportProperties(path ObjectPath) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.props, path)
}

func (f *FakeBus) EmitSignal(path ObjectPath, iface, name string, destination Sender, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, EmittedSignal{Path: path, Interface: iface, Name: name, Destination: destination, Args: args})
	return nil
}

// PeerUID is deterministic in tests: the sender string itself, hashed
// trivially, so distinct fake peers resolve to distinct UIDs.
func (f *FakeBus) PeerUID(sender Sender) (uint32, error) {
	var h uint32 = 2166136261
	for i := 0; i < len(sender); i++ {
		h ^= uint32(sender[i])
		h *= 16777619
	}
	return h, nil
}

func (f *FakeBus) Close() error { return nil }

// Signals returns every signal emitted so far, for assertions.
func (f *FakeBus) Signals() []EmittedSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]EmittedSignal, len(f.signals))
	copy(out, f.signals)
	return out
}

// GetProperty reads the current value of a property registered with
// ExportProperties directly, with no peer check. Objects exported with
// Export under PropertiesInterface are not visible to it.
func (f *FakeBus) GetProperty(path ObjectPath, name string) (any, error) {
	f.mu.Lock()
	props, ok := f.props[path]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no properties exported at %s", path)
	}
	p, ok := props[name]
	if !ok {
		return nil, fmt.Errorf("no property %q at %s", name, path)
	}
	return p.Get()
}

// SetProperty simulates a property write from sender, running the same
// access-control callback the real bus would invoke.
func (f *FakeBus) SetProperty(path ObjectPath, name string, sender Sender, value any) *Error {
	f.mu.Lock()
	props, ok := f.props[path]
	f.mu.Unlock()
	if !ok {
		return ErrAccessDenied
	}
	p, ok := props[name]
	if !ok || p.Set == nil {
		return ErrAccessDenied
	}
	return p.Set(sender, value)
}

// Object returns a previously exported object for direct invocation in
// tests (e.g. calling its Go methods with a chosen Sender).
func (f *FakeBus) Object(path ObjectPath, iface string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[objKey{path, iface}]
	return obj, ok
}
