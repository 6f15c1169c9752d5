// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package client

import (
	"sync"

	"github.com/geoclued/geoclued/internal/busserver"
)

// propEntry is one property's accessors. set is nil for read-only
// properties.
type propEntry struct {
	get func() any
	set func(value any) *busserver.Error
}

// accessControlledProps implements org.freedesktop.DBus.Properties by
// hand rather than via the prop package, because §4.9 requires every
// property read *and* write to be rejected for a non-owning peer — the
// prop package only gates writes.
type accessControlledProps struct {
	mu    sync.RWMutex
	owner busserver.Sender
	iface string
	table map[string]propEntry
}

func newAccessControlledProps(owner busserver.Sender, iface string) *accessControlledProps {
	return &accessControlledProps{owner: owner, iface: iface, table: make(map[string]propEntry)}
}

func (p *accessControlledProps) define(name string, get func() any, set func(value any) *busserver.Error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table[name] = propEntry{get: get, set: set}
}

// Get implements org.freedesktop.DBus.Properties.Get.
func (p *accessControlledProps) Get(iface, name string, sender busserver.Sender) (busserver.Variant, *busserver.Error) {
	if sender != p.owner {
		return busserver.Variant{}, busserver.ErrAccessDenied
	}
	p.mu.RLock()
	entry, ok := p.table[name]
	p.mu.RUnlock()
	if !ok {
		return busserver.Variant{}, busserver.NewError(busserver.ErrNameNotSupported)
	}
	return busserver.MakeVariant(entry.get()), nil
}

// GetAll implements org.freedesktop.DBus.Properties.GetAll.
func (p *accessControlledProps) GetAll(iface string, sender busserver.Sender) (map[string]busserver.Variant, *busserver.Error) {
	if sender != p.owner {
		return nil, busserver.ErrAccessDenied
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]busserver.Variant, len(p.table))
	for name, entry := range p.table {
		out[name] = busserver.MakeVariant(entry.get())
	}
	return out, nil
}

// Set implements org.freedesktop.DBus.Properties.Set.
func (p *accessControlledProps) Set(iface, name string, value busserver.Variant, sender busserver.Sender) *busserver.Error {
	if sender != p.owner {
		return busserver.ErrAccessDenied
	}
	p.mu.RLock()
	entry, ok := p.table[name]
	p.mu.RUnlock()
	if !ok {
		return busserver.NewError(busserver.ErrNameNotSupported)
	}
	if entry.set == nil {
		return busserver.ErrAccessDenied
	}
	return entry.set(value.Value())
}
